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

// Link is the decoded view of one RTM_*LINK object (spec §6 "Link").
type Link struct {
	Index   int32
	Name    string
	Type    uint16
	Flags   uint32
	MTU     uint32
	Address net.HardwareAddr
	Master  int32
	Kind    string // IFLA_LINKINFO/IFLA_INFO_KIND, e.g. "wireguard", "veth"
}

var linkPolicy = nlmsg.Policy{
	iflaIfname:  {Name: "ifname", Kind: nlmsg.KindString},
	iflaAddress: {Name: "address", Kind: nlmsg.KindHardwareAddr},
	iflaMTU:     {Name: "mtu", Kind: nlmsg.KindUint32},
	iflaMaster:  {Name: "master", Kind: nlmsg.KindUint32},
	iflaLinkinfo: {Name: "linkinfo", Kind: nlmsg.KindNested, Nested: &nlmsg.Policy{
		iflaInfoKind: {Name: "kind", Kind: nlmsg.KindAsciiz},
	}},
}

// DecodeLinkMessage decodes a raw RTM_NEWLINK/RTM_DELLINK broadcast, the
// entry point pkg/ndbcache uses to keep its index current without a second
// copy of the ifinfomsg layout.
func DecodeLinkMessage(msg nlmsg.Message) Link { return decodeLink(msg) }

func decodeLink(msg nlmsg.Message) Link {
	var l Link
	if len(msg.Data) < 16 {
		return l
	}
	l.Type = nativeU16(msg.Data[2:4])
	l.Index = int32(getU32(msg.Data[4:8]))
	l.Flags = getU32(msg.Data[8:12])
	attrs, _ := linkPolicy.Decode(msg.Data[16:])
	for _, a := range attrs {
		switch a.Type {
		case iflaIfname:
			l.Name, _ = a.Value.(string)
		case iflaAddress:
			l.Address, _ = a.Value.(net.HardwareAddr)
		case iflaMTU:
			l.MTU, _ = a.Value.(uint32)
		case iflaMaster:
			m, _ := a.Value.(uint32)
			l.Master = int32(m)
		case iflaLinkinfo:
			if children, ok := a.Value.([]nlmsg.Attr); ok {
				for _, c := range children {
					if c.Type == iflaInfoKind {
						l.Kind, _ = c.Value.(string)
					}
				}
			}
		}
	}
	return l
}

// LinkSpec describes the attributes to set on Add/Set/Replace.
type LinkSpec struct {
	Name    string
	MTU     uint32
	Address net.HardwareAddr
	Up      bool
	Kind    string // e.g. "veth", "wireguard", "dummy", "vlan"
	Master  int32
	NetnsFD int32 // move the link into a namespace by open fd, 0 = unset
}

func (s LinkSpec) encode() []byte {
	enc := nlmsg.NewAttributeEncoder()
	if s.Name != "" {
		enc.String(iflaIfname, s.Name)
	}
	if s.MTU != 0 {
		enc.Uint32(iflaMTU, s.MTU)
	}
	if s.Address != nil {
		enc.HardwareAddr(iflaAddress, s.Address)
	}
	if s.Master != 0 {
		enc.Uint32(iflaMaster, uint32(s.Master))
	}
	if s.NetnsFD != 0 {
		enc.Uint32(iflaNetnsFD, uint32(s.NetnsFD))
	}
	if s.Kind != "" {
		enc.Nested(iflaLinkinfo, func(n *nlmsg.AttributeEncoder) error {
			n.String(iflaInfoKind, s.Kind)
			return nil
		})
	}
	b, _ := enc.Encode()
	return b
}

// GetLink fetches one link by name. ok is false if it does not exist.
func (c *Client) GetLink(ctx context.Context, name string) (Link, bool, error) {
	enc := nlmsg.NewAttributeEncoder()
	enc.String(iflaIfname, name)
	data, _ := enc.Encode()
	reply, err := c.conn.Execute(ctx, nlmsg.Message{
		Header: nlmsg.Header{Type: rtmGetlink, Flags: nlmsg.Request},
		Data:   append(ifinfomsg(0, 0, 0, 0), data...),
	})
	if err != nil {
		if isENOENT(err) {
			return Link{}, false, nil
		}
		return Link{}, false, err
	}
	return decodeLink(reply), true, nil
}

// DumpLinks returns every link visible to this Conn's namespace.
func (c *Client) DumpLinks(ctx context.Context) ([]Link, error) {
	var out []Link
	for msg, err := range c.conn.Dump(ctx, nlmsg.Message{Header: nlmsg.Header{Type: rtmGetlink}, Data: ifinfomsg(0, 0, 0, 0)}) {
		if err != nil {
			return out, err
		}
		out = append(out, decodeLink(msg))
	}
	return out, nil
}

// AddLink creates a link (verb add) and returns it once the kernel has
// assigned an index. A veth/wireguard/dummy Kind applies the matching
// IFLA_LINKINFO nest.
func (c *Client) AddLink(ctx context.Context, spec LinkSpec) (Link, error) {
	flags := requestFlags(VerbAdd) | nlmsg.Acknowledge
	data := append(ifinfomsg(0, 0, 0, 0), spec.encode()...)
	if _, err := c.conn.Execute(ctx, nlmsg.Message{Header: nlmsg.Header{Type: rtmNewlink, Flags: flags}, Data: data}); err != nil {
		return Link{}, err
	}
	link, _, err := c.GetLink(ctx, spec.Name)
	return link, err
}

// SetLink applies spec to the link named name (verb set): setting IFF_UP,
// MTU, master enslavement, or namespace migration. Up=false does not clear
// IFF_UP; the link's current flags are left as they are.
func (c *Client) SetLink(ctx context.Context, name string, spec LinkSpec) error {
	link, ok, err := c.GetLink(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return errLinkNotFound(name)
	}
	base := LinkSpec{Name: link.Name, MTU: link.MTU, Address: link.Address, Master: link.Master}
	merged, err := mergeLinkSpec(base, spec)
	if err != nil {
		return err
	}
	flags := link.Flags
	if merged.Up {
		flags |= 0x1 // IFF_UP
	}
	data := append(ifinfomsg(link.Index, 0, flags, 0x1), merged.encode()...)
	return execute(ctx, c.conn, rtmNewlink, requestFlags(VerbSet)|nlmsg.Acknowledge, data)
}

// DelLink removes the link named name.
func (c *Client) DelLink(ctx context.Context, name string) error {
	enc := nlmsg.NewAttributeEncoder()
	enc.String(iflaIfname, name)
	body, _ := enc.Encode()
	data := append(ifinfomsg(0, 0, 0, 0), body...)
	return execute(ctx, c.conn, rtmDellink, requestFlags(VerbDel)|nlmsg.Acknowledge, data)
}

// EnsureLink implements spec §6's idempotent verb: creates spec if no link
// named spec.Name exists, otherwise leaves it untouched (present=true), or
// deletes it if present=false.
func (c *Client) EnsureLink(ctx context.Context, present bool, spec LinkSpec) error {
	return netlinksock.Ensure(ctx, present,
		func(ctx context.Context) (bool, error) { _, ok, err := c.GetLink(ctx, spec.Name); return ok, err },
		func(ctx context.Context) error { _, err := c.AddLink(ctx, spec); return err },
		func(ctx context.Context) error { return c.DelLink(ctx, spec.Name) },
	)
}
