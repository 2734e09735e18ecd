/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command dhcp-server-detector sends a single DHCPDISCOVER burst on an
// interface and reports whether any server answered, per spec §7's "the
// server detector exits 0 iff at least one offer arrived".
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/netlinkgo/pkg/dhcp4/fsm"
	"github.com/google/netlinkgo/pkg/dhcpclient"
	"github.com/google/netlinkgo/pkg/dhcpclient/lease"
	"github.com/google/netlinkgo/pkg/netlinksock"
	"github.com/google/netlinkgo/pkg/rawsocket"
	"github.com/google/netlinkgo/pkg/rtnl"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

const dhcpClientPort = 68

var (
	ifaceName string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "dhcp-server-detector",
	Short: "Detect whether a DHCPv4 server answers on an interface",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&ifaceName, "interface", "", "network interface to probe (required)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for an offer")
	klog.InitFlags(nil)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		klog.Errorf("ERROR: %v", err)
		os.Exit(1)
	}
}

// discardSink never touches disk: the detector discards any offer it
// would otherwise turn into a lease.
type discardSink struct{}

func (discardSink) Save(*lease.Lease) error          { return nil }
func (discardSink) Load(string) (*lease.Lease, error) { return nil, nil }

func run(cmd *cobra.Command, args []string) error {
	if ifaceName == "" {
		return fmt.Errorf("--interface is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := netlinksock.New(ctx, unix.NETLINK_ROUTE)
	if err != nil {
		return fmt.Errorf("opening netlink socket: %w", err)
	}
	rtnlClient := rtnl.New(conn)

	sock, err := rawsocket.New(ctx, rtnlClient, ifaceName, rawsocket.DHCPFilter(dhcpClientPort, 0))
	if err != nil {
		return fmt.Errorf("opening raw socket on %s: %w", ifaceName, err)
	}

	cfg := dhcpclient.DefaultConfig(ifaceName)
	cfg.Sink = discardSink{}
	cfg.NoRelease = true
	client := dhcpclient.New(sock, rtnlClient, cfg)

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	offered := waitForOffer(ctx, client)
	cancel()
	<-runErr

	if !offered {
		return fmt.Errorf("no DHCP offer received on %s within %s", ifaceName, timeout)
	}
	fmt.Printf("DHCP offer received on %s\n", ifaceName)
	return nil
}

// waitForOffer polls the client's FSM state: it only leaves SELECTING for
// REQUESTING once a valid OFFER has passed every guard, so reaching
// REQUESTING (or beyond) within the burst window is exactly "an offer
// arrived".
func waitForOffer(ctx context.Context, client *dhcpclient.Client) bool {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			switch client.State() {
			case fsm.Off, fsm.Init, fsm.Selecting:
				// Not bootstrapped yet, or still waiting for an offer.
			default:
				return true
			}
		}
	}
}
