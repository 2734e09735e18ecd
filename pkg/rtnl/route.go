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

package rtnl

import (
	"context"
	"net"

	"github.com/google/netlinkgo/pkg/netlinksock"
	"github.com/google/netlinkgo/pkg/nlmsg"
)

// RouteTableMain is RT_TABLE_MAIN, the default routing table.
const RouteTableMain byte = 254

// RouteProtoStatic is RTPROT_STATIC, the default protocol stamp for
// administratively installed routes (as opposed to ones the kernel or a
// routing daemon installed).
const RouteProtoStatic byte = 4

// RouteScopeUniverse/RouteScopeLink are RT_SCOPE_* values; a route to a
// directly-connected subnet uses Link scope, everything else Universe.
const (
	RouteScopeUniverse byte = 0
	RouteScopeLink     byte = 253
)

// Route is the decoded view of one RTM_*ROUTE object.
type Route struct {
	Dst      *net.IPNet
	Gateway  net.IP
	OutIndex int32
	Table    byte
	Protocol byte
	Scope    byte
	Priority uint32
}

var routePolicy = nlmsg.Policy{
	rtaGateway:  {Name: "gateway", Kind: nlmsg.KindIPAddr},
	rtaOif:      {Name: "oif", Kind: nlmsg.KindUint32},
	rtaPriority: {Name: "priority", Kind: nlmsg.KindUint32},
}

func decodeRoute(msg nlmsg.Message) Route {
	var r Route
	if len(msg.Data) < 12 {
		return r
	}
	family, dstLen := msg.Data[0], msg.Data[1]
	r.Table, r.Protocol, r.Scope = msg.Data[4], msg.Data[5], msg.Data[6]

	ad, _ := nlmsg.NewAttributeDecoder(msg.Data[12:])
	var dstIP net.IP
	for ad.Next() {
		if ad.Type() == rtaDst {
			dstIP = ad.IP()
		}
	}
	if dstIP != nil {
		bits := 32
		if family == 10 {
			bits = 128
		}
		r.Dst = &net.IPNet{IP: dstIP, Mask: net.CIDRMask(int(dstLen), bits)}
	}
	attrs, _ := routePolicy.Decode(msg.Data[12:])
	for _, attr := range attrs {
		switch attr.Type {
		case rtaGateway:
			r.Gateway, _ = attr.Value.(net.IP)
		case rtaOif:
			oif, _ := attr.Value.(uint32)
			r.OutIndex = int32(oif)
		case rtaPriority:
			r.Priority, _ = attr.Value.(uint32)
		}
	}
	return r
}

// RouteSpec describes a route to add/replace/delete.
type RouteSpec struct {
	Dst      *net.IPNet // nil means the default route
	Gateway  net.IP
	OutIndex int32
	Table    byte
	Protocol byte
	Scope    byte
	Priority uint32
}

func (s RouteSpec) family() byte {
	if s.Dst != nil {
		return familyOf(s.Dst.IP)
	}
	if s.Gateway != nil {
		return familyOf(s.Gateway)
	}
	return 2 // AF_INET default route
}

func (s RouteSpec) dstLen() byte {
	if s.Dst == nil {
		return 0
	}
	ones, _ := s.Dst.Mask.Size()
	return byte(ones)
}

func (s RouteSpec) encode() []byte {
	enc := nlmsg.NewAttributeEncoder()
	if s.Dst != nil {
		enc.IP(rtaDst, s.Dst.IP)
	}
	if s.Gateway != nil {
		enc.IP(rtaGateway, s.Gateway)
	}
	if s.OutIndex != 0 {
		enc.Uint32(rtaOif, uint32(s.OutIndex))
	}
	if s.Priority != 0 {
		enc.Uint32(rtaPriority, s.Priority)
	}
	b, _ := enc.Encode()
	return b
}

func (s RouteSpec) normalize() RouteSpec {
	if s.Table == 0 {
		s.Table = RouteTableMain
	}
	if s.Protocol == 0 {
		s.Protocol = RouteProtoStatic
	}
	return s
}

// AddRoute installs spec as a new route (verb Add: NLM_F_CREATE|NLM_F_EXCL).
func (c *Client) AddRoute(ctx context.Context, spec RouteSpec) error {
	spec = spec.normalize()
	data := append(rtmsg(spec.family(), spec.dstLen(), 0, spec.Table, spec.Protocol, spec.Scope, 1 /* RTN_UNICAST */, 0), spec.encode()...)
	return execute(ctx, c.conn, rtmNewroute, requestFlags(VerbAdd)|nlmsg.Acknowledge, data)
}

// SetRoute overlays patch onto the currently installed route matching
// patch's destination and table (e.g. changing only the gateway of an
// existing default route on lease renewal) and replaces it in one
// RTM_NEWROUTE with NLM_F_REPLACE.
func (c *Client) SetRoute(ctx context.Context, patch RouteSpec) error {
	patch = patch.normalize()
	routes, err := c.DumpRoutes(ctx)
	if err != nil {
		return err
	}
	var base RouteSpec
	for _, r := range routes {
		if r.Table == patch.Table && sameDst(r.Dst, patch.Dst) {
			base = RouteSpec{Dst: r.Dst, Gateway: r.Gateway, OutIndex: r.OutIndex, Table: r.Table, Protocol: r.Protocol, Scope: r.Scope, Priority: r.Priority}
			break
		}
	}
	merged, err := mergeRouteSpec(base, patch)
	if err != nil {
		return err
	}
	data := append(rtmsg(merged.family(), merged.dstLen(), 0, merged.Table, merged.Protocol, merged.Scope, 1, 0), merged.encode()...)
	return execute(ctx, c.conn, rtmNewroute, requestFlags(VerbReplace)|nlmsg.Acknowledge, data)
}

// DelRoute removes the route matching spec's destination and table.
func (c *Client) DelRoute(ctx context.Context, spec RouteSpec) error {
	spec = spec.normalize()
	data := append(rtmsg(spec.family(), spec.dstLen(), 0, spec.Table, spec.Protocol, spec.Scope, 1, 0), spec.encode()...)
	return execute(ctx, c.conn, rtmDelroute, requestFlags(VerbDel)|nlmsg.Acknowledge, data)
}

// DumpRoutes lists every route in every table visible to this connection.
func (c *Client) DumpRoutes(ctx context.Context) ([]Route, error) {
	var out []Route
	for msg, err := range c.conn.Dump(ctx, nlmsg.Message{Header: nlmsg.Header{Type: rtmGetroute}, Data: rtmsg(0, 0, 0, 0, 0, 0, 0, 0)}) {
		if err != nil {
			return out, err
		}
		out = append(out, decodeRoute(msg))
	}
	return out, nil
}

func sameDst(a *net.IPNet, b *net.IPNet) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.String() == b.String()
}

func hasRoute(routes []Route, spec RouteSpec) bool {
	for _, r := range routes {
		if r.Table == spec.Table && sameDst(r.Dst, spec.Dst) {
			return true
		}
	}
	return false
}

// EnsureRoute adds or removes spec idempotently, the default-route and
// per-prefix install/teardown path used by pkg/dhcpclient (spec §6 "ensure
// default route").
func (c *Client) EnsureRoute(ctx context.Context, present bool, spec RouteSpec) error {
	spec = spec.normalize()
	return netlinksock.Ensure(ctx, present,
		func(ctx context.Context) (bool, error) {
			routes, err := c.DumpRoutes(ctx)
			return hasRoute(routes, spec), err
		},
		func(ctx context.Context) error { return c.AddRoute(ctx, spec) },
		func(ctx context.Context) error { return c.DelRoute(ctx, spec) },
	)
}
