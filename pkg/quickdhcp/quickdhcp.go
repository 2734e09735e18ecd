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

// Package quickdhcp is a one-shot "just get me an IP" front door: no FSM,
// no renewal, a single DISCOVER/OFFER/REQUEST/ACK exchange. It is not a
// replacement for pkg/dhcpclient, whose state machine is what a
// long-running client wants; this exists for scripts and init-time
// provisioning that just need an address once. Adapted from the retrieved
// pkg/driver/dhcp.go's getDHCP, swapping vishvananda/netlink for this
// module's own pkg/rtnl.
package quickdhcp

import (
	"context"
	"fmt"
	"net"

	"github.com/google/netlinkgo/pkg/rtnl"

	"github.com/insomniacslk/dhcp/dhcpv4/nclient4"
	"golang.org/x/sys/unix"
)

// Route is one classless static route (DHCP option 121) returned by the
// server alongside the lease.
type Route struct {
	Destination string // CIDR
	Gateway     string
}

// Result is the address and routes a one-shot acquisition obtained.
type Result struct {
	Address string // CIDR
	Routes  []Route
}

// Acquire brings ifname up if needed, runs a single DHCPDISCOVER/OFFER/
// REQUEST/ACK exchange via nclient4, and returns the offered address and
// any classless static routes (option 121; option 33 router routes are
// not supported, matching the teacher's own scope).
func Acquire(ctx context.Context, client *rtnl.Client, ifname string) (*Result, error) {
	link, ok, err := client.GetLink(ctx, ifname)
	if err != nil {
		return nil, fmt.Errorf("quickdhcp: resolving %s: %w", ifname, err)
	}
	if !ok {
		return nil, fmt.Errorf("quickdhcp: interface %q not found", ifname)
	}
	if link.Flags&unix.IFF_UP == 0 {
		if err := client.SetLink(ctx, ifname, rtnl.LinkSpec{Up: true}); err != nil {
			return nil, fmt.Errorf("quickdhcp: bringing %s up: %w", ifname, err)
		}
	}

	dhclient, err := nclient4.New(ifname)
	if err != nil {
		return nil, fmt.Errorf("quickdhcp: opening DHCP client on %s: %w", ifname, err)
	}
	defer dhclient.Close()

	lease, err := dhclient.Request(ctx)
	if err != nil {
		return nil, fmt.Errorf("quickdhcp: requesting a lease on %s: %w", ifname, err)
	}
	if lease.ACK == nil {
		return nil, fmt.Errorf("quickdhcp: server did not ACK the request on %s", ifname)
	}

	res := &Result{
		Address: (&net.IPNet{IP: lease.ACK.YourIPAddr, Mask: lease.ACK.SubnetMask()}).String(),
	}
	for _, route := range lease.ACK.ClasslessStaticRoute() {
		res.Routes = append(res.Routes, Route{
			Destination: route.Dest.String(),
			Gateway:     route.Router.String(),
		})
	}
	return res, nil
}

// Apply installs a previously acquired Result onto ifname via pkg/rtnl:
// the address, then every classless static route.
func (r *Result) Apply(ctx context.Context, client *rtnl.Client, ifname string) error {
	link, ok, err := client.GetLink(ctx, ifname)
	if err != nil {
		return fmt.Errorf("quickdhcp: resolving %s: %w", ifname, err)
	}
	if !ok {
		return fmt.Errorf("quickdhcp: interface %q not found", ifname)
	}

	ip, ipnet, err := net.ParseCIDR(r.Address)
	if err != nil {
		return fmt.Errorf("quickdhcp: parsing address %q: %w", r.Address, err)
	}
	ones, _ := ipnet.Mask.Size()
	if err := client.EnsureAddr(ctx, true, link.Index, ip, byte(ones)); err != nil {
		return fmt.Errorf("quickdhcp: adding %s to %s: %w", r.Address, ifname, err)
	}

	for _, route := range r.Routes {
		_, dst, err := net.ParseCIDR(route.Destination)
		if err != nil {
			return fmt.Errorf("quickdhcp: parsing route destination %q: %w", route.Destination, err)
		}
		spec := rtnl.RouteSpec{
			Dst:      dst,
			Gateway:  net.ParseIP(route.Gateway),
			OutIndex: link.Index,
			Table:    rtnl.RouteTableMain,
			Protocol: rtnl.RouteProtoStatic,
			Scope:    rtnl.RouteScopeUniverse,
		}
		if err := client.EnsureRoute(ctx, true, spec); err != nil {
			return fmt.Errorf("quickdhcp: adding route %s via %s: %w", route.Destination, route.Gateway, err)
		}
	}
	return nil
}
