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
	"golang.org/x/sys/unix"
)

// Addr is the decoded view of one RTM_*ADDR object.
type Addr struct {
	Index     int32
	Family    byte
	PrefixLen byte
	Address   net.IP
	Local     net.IP
	Label     string
}

var addrPolicy = nlmsg.Policy{
	ifaAddress: {Name: "address", Kind: nlmsg.KindIPAddr},
	ifaLocal:   {Name: "local", Kind: nlmsg.KindIPAddr},
	ifaLabel:   {Name: "label", Kind: nlmsg.KindAsciiz},
}

func decodeAddr(msg nlmsg.Message) Addr {
	var a Addr
	if len(msg.Data) < 8 {
		return a
	}
	a.Family, a.PrefixLen = msg.Data[0], msg.Data[1]
	a.Index = int32(getU32(msg.Data[4:8]))
	attrs, _ := addrPolicy.Decode(msg.Data[8:])
	for _, attr := range attrs {
		switch attr.Type {
		case ifaAddress:
			a.Address, _ = attr.Value.(net.IP)
		case ifaLocal:
			a.Local, _ = attr.Value.(net.IP)
		case ifaLabel:
			a.Label, _ = attr.Value.(string)
		}
	}
	if a.Local == nil {
		a.Local = a.Address
	}
	return a
}

func familyOf(ip net.IP) byte {
	if ip.To4() != nil {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func encodeAddrAttrs(ip net.IP) []byte {
	enc := nlmsg.NewAttributeEncoder()
	enc.IP(ifaAddress, ip)
	enc.IP(ifaLocal, ip)
	b, _ := enc.Encode()
	return b
}

// AddAddr assigns ip/prefixLen to the link indexed by linkIndex.
func (c *Client) AddAddr(ctx context.Context, linkIndex int32, ip net.IP, prefixLen byte) error {
	data := append(ifaddrmsg(familyOf(ip), prefixLen, 0, linkIndex), encodeAddrAttrs(ip)...)
	return execute(ctx, c.conn, rtmNewaddr, requestFlags(VerbAdd)|nlmsg.Acknowledge, data)
}

// DelAddr removes ip/prefixLen from the link indexed by linkIndex.
func (c *Client) DelAddr(ctx context.Context, linkIndex int32, ip net.IP, prefixLen byte) error {
	data := append(ifaddrmsg(familyOf(ip), prefixLen, 0, linkIndex), encodeAddrAttrs(ip)...)
	return execute(ctx, c.conn, rtmDeladdr, requestFlags(VerbDel)|nlmsg.Acknowledge, data)
}

// DumpAddrs lists every address on every link, or linkIndex's only when
// linkIndex != 0.
func (c *Client) DumpAddrs(ctx context.Context, linkIndex int32) ([]Addr, error) {
	var out []Addr
	for msg, err := range c.conn.Dump(ctx, nlmsg.Message{Header: nlmsg.Header{Type: rtmGetaddr}, Data: ifaddrmsg(0, 0, 0, 0)}) {
		if err != nil {
			return out, err
		}
		a := decodeAddr(msg)
		if linkIndex != 0 && a.Index != linkIndex {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func hasAddr(addrs []Addr, ip net.IP, prefixLen byte) bool {
	for _, a := range addrs {
		if a.PrefixLen == prefixLen && a.Address.Equal(ip) {
			return true
		}
	}
	return false
}

// EnsureAddr adds or removes ip/prefixLen on linkIndex idempotently.
func (c *Client) EnsureAddr(ctx context.Context, present bool, linkIndex int32, ip net.IP, prefixLen byte) error {
	return netlinksock.Ensure(ctx, present,
		func(ctx context.Context) (bool, error) {
			addrs, err := c.DumpAddrs(ctx, linkIndex)
			return hasAddr(addrs, ip, prefixLen), err
		},
		func(ctx context.Context) error { return c.AddAddr(ctx, linkIndex, ip, prefixLen) },
		func(ctx context.Context) error { return c.DelAddr(ctx, linkIndex, ip, prefixLen) },
	)
}
