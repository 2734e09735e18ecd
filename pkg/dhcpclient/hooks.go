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

package dhcpclient

import (
	"context"
	"fmt"

	"github.com/google/netlinkgo/pkg/dhcpclient/lease"
	"github.com/google/netlinkgo/pkg/rtnl"

	"k8s.io/klog/v2"
)

// Trigger names why a hook fired, per spec §4.10.
type Trigger int

const (
	Bound Trigger = iota
	Renewed
	Rebound
	Expired
)

func (t Trigger) String() string {
	switch t {
	case Bound:
		return "BOUND"
	case Renewed:
		return "RENEWED"
	case Rebound:
		return "REBOUND"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Hook reacts to a lease transition. A returned error is logged and
// swallowed -- a broken hook must never take down the client, per spec §7.
type Hook func(ctx context.Context, l *lease.Lease, trigger Trigger) error

func runHooks(ctx context.Context, hooks []Hook, l *lease.Lease, trigger Trigger) {
	for _, h := range hooks {
		if err := h(ctx, l, trigger); err != nil {
			klog.Errorf("dhcpclient: hook failed for %s on %s: %v", trigger, l.Interface, err)
		}
	}
}

// ConfigureAddress is the default IP-configuration hook, grounded on the
// retrieved pyroute2/dhcp/hooks.py's ConfigureIP: it adds the leased
// address on Bound/Renewed/Rebound and removes it on Expired.
func ConfigureAddress(client *rtnl.Client) Hook {
	return func(ctx context.Context, l *lease.Lease, trigger Trigger) error {
		link, ok, err := client.GetLink(ctx, l.Interface)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("dhcpclient: interface %q not found", l.Interface)
		}
		mask := l.SubnetMask()
		if mask == nil {
			return fmt.Errorf("dhcpclient: lease for %s has no subnet mask", l.Interface)
		}
		ones, _ := mask.Size()
		return client.EnsureAddr(ctx, trigger != Expired, link.Index, l.IP(), byte(ones))
	}
}

// ConfigureDefaultRoute is the default routing hook, grounded on the
// retrieved pyroute2/dhcp/hooks.py's ConfigureDefaultRoute: it installs a
// default route through the first router option on Bound/Renewed/Rebound
// and removes it on Expired. A lease with no router option is a no-op.
func ConfigureDefaultRoute(client *rtnl.Client) Hook {
	return func(ctx context.Context, l *lease.Lease, trigger Trigger) error {
		routers := l.Routers()
		if len(routers) == 0 {
			return nil
		}
		link, ok, err := client.GetLink(ctx, l.Interface)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("dhcpclient: interface %q not found", l.Interface)
		}
		spec := rtnl.RouteSpec{
			Dst:      nil, // default route
			Gateway:  routers[0],
			OutIndex: link.Index,
			Table:    rtnl.RouteTableMain,
			Protocol: rtnl.RouteProtoStatic,
			Scope:    rtnl.RouteScopeUniverse,
		}
		return client.EnsureRoute(ctx, trigger != Expired, spec)
	}
}
