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

// Command dhcp-client runs a long-lived DHCPv4 client on one interface,
// logging one-line ERROR records and exiting non-zero on fatal errors per
// spec §6's CLI contract.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/netlinkgo/pkg/dhcpclient"
	"github.com/google/netlinkgo/pkg/dhcpclient/lease"
	"github.com/google/netlinkgo/pkg/netlinksock"
	"github.com/google/netlinkgo/pkg/procsup"
	"github.com/google/netlinkgo/pkg/rawsocket"
	"github.com/google/netlinkgo/pkg/rtnl"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

var (
	ifaceName      string
	leaseType      string
	leasePath      string
	hookNames      []string
	exitOnTimeout  time.Duration
	writePidfile   string
	noRelease      bool
	metricsAddress string
)

var rootCmd = &cobra.Command{
	Use:   "dhcp-client",
	Short: "Run a DHCPv4 client on one network interface",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&ifaceName, "interface", "", "network interface to acquire a lease on (required)")
	rootCmd.Flags().StringVar(&leaseType, "lease-type", "json", "lease persistence backend: json, stdout, or bolt")
	rootCmd.Flags().StringVar(&leasePath, "lease-path", "", "file/directory the lease backend writes to (defaults: cwd for json, ./leases.db for bolt)")
	rootCmd.Flags().StringArrayVar(&hookNames, "hook", nil, "post-bind hook to run, repeatable: address, default-route")
	rootCmd.Flags().DurationVar(&exitOnTimeout, "exit-on-timeout", 0, "exit 1 if no lease is bound within this duration (0 disables)")
	rootCmd.Flags().StringVar(&writePidfile, "write-pidfile", "", "write the process id to this path on startup")
	rootCmd.Flags().BoolVar(&noRelease, "no-release", false, "skip sending DHCPRELEASE on shutdown")
	rootCmd.Flags().StringVar(&metricsAddress, "metrics-address", "", "serve Prometheus metrics on this address (disabled if empty)")

	klog.InitFlags(nil)
	pflag.CommandLine.AddGoFlag(flag.CommandLine.Lookup("v"))
	pflag.CommandLine.AddGoFlag(flag.CommandLine.Lookup("logtostderr"))
	rootCmd.Flags().AddFlagSet(pflag.CommandLine)
}

func main() {
	procsup.MaybeRunChild()

	if err := rootCmd.Execute(); err != nil {
		klog.Errorf("ERROR: %v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if ifaceName == "" {
		return fmt.Errorf("--interface is required")
	}

	sink, err := buildSink()
	if err != nil {
		return err
	}

	if writePidfile != "" {
		if err := os.WriteFile(writePidfile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("writing pidfile %s: %w", writePidfile, err)
		}
		defer os.Remove(writePidfile)
	}

	if metricsAddress != "" {
		registry := prometheus.NewRegistry()
		dhcpclient.RegisterMetrics(registry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddress, mux); err != nil {
				klog.Errorf("dhcp-client: metrics server on %s: %v", metricsAddress, err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
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
	cfg.Sink = sink
	cfg.NoRelease = noRelease
	hooks, err := buildHooks(rtnlClient)
	if err != nil {
		return err
	}
	cfg.Hooks = hooks

	var boundOnce sync.Once
	bound := make(chan struct{})
	cfg.Hooks = append(cfg.Hooks, func(_ context.Context, _ *lease.Lease, trigger dhcpclient.Trigger) error {
		if trigger == dhcpclient.Bound {
			boundOnce.Do(func() { close(bound) })
		}
		return nil
	})

	client := dhcpclient.New(sock, rtnlClient, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	var timeoutCh <-chan time.Time
	if exitOnTimeout > 0 {
		timer := time.NewTimer(exitOnTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case sig := <-sigCh:
		klog.Infof("received %s, shutting down", sig)
		cancel()
		<-runErr
		return nil
	case <-timeoutCh:
		cancel()
		<-runErr
		return fmt.Errorf("no lease bound on %s within %s", ifaceName, exitOnTimeout)
	case <-bound:
		klog.Infof("lease bound on %s, state %s", ifaceName, client.State())
		select {
		case sig := <-sigCh:
			klog.Infof("received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
		<-runErr
		return nil
	case err := <-runErr:
		return fmt.Errorf("client exited: %w", err)
	}
}

const dhcpClientPort = 68

func buildSink() (lease.Sink, error) {
	switch leaseType {
	case "", "json":
		return lease.JSONFileSink{Dir: leasePath}, nil
	case "stdout":
		return lease.StdoutSink{}, nil
	case "bolt":
		path := leasePath
		if path == "" {
			path = "leases.db"
		}
		return lease.OpenBoltSink(path)
	default:
		return nil, fmt.Errorf("unknown --lease-type %q (want json, stdout, or bolt)", leaseType)
	}
}

func buildHooks(client *rtnl.Client) ([]dhcpclient.Hook, error) {
	var hooks []dhcpclient.Hook
	for _, name := range hookNames {
		switch name {
		case "address":
			hooks = append(hooks, dhcpclient.ConfigureAddress(client))
		case "default-route":
			hooks = append(hooks, dhcpclient.ConfigureDefaultRoute(client))
		default:
			return nil, fmt.Errorf("unknown --hook %q (want address or default-route)", name)
		}
	}
	return hooks, nil
}
