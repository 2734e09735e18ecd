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

// Package rtnl implements the RTNL service layer of spec §6: typed
// link/address/route/rule/neighbor/FDB operations built on top of one
// netlinksock.Conn, with an "ensure present/absent" idempotent verb for
// links, addresses, routes and the clsact qdisc. Grounded on pyroute2.iproute.IPRoute's verb surface
// (link, addr, route, rule, neigh, fdb, tc) translated into Go methods on a
// Client.
package rtnl

import (
	"context"

	"github.com/google/netlinkgo/pkg/netlinksock"
	"github.com/google/netlinkgo/pkg/nlmsg"
)

// Verb selects the netlink request semantics layered onto an object's
// base RTM_* message type, mirroring pyroute2's positional "command"
// argument (add/set/del/get/dump).
type Verb int

const (
	VerbAdd Verb = iota
	VerbDel
	VerbSet
	VerbGet
	VerbDump
	VerbReplace
)

const (
	rtmNewlink  nlmsg.HeaderType = 16
	rtmDellink  nlmsg.HeaderType = 17
	rtmGetlink  nlmsg.HeaderType = 18
	rtmSetlink  nlmsg.HeaderType = 19
	rtmNewaddr  nlmsg.HeaderType = 20
	rtmDeladdr  nlmsg.HeaderType = 21
	rtmGetaddr  nlmsg.HeaderType = 22
	rtmNewroute nlmsg.HeaderType = 24
	rtmDelroute nlmsg.HeaderType = 25
	rtmGetroute nlmsg.HeaderType = 26
	rtmNewrule  nlmsg.HeaderType = 32
	rtmDelrule  nlmsg.HeaderType = 33
	rtmGetrule  nlmsg.HeaderType = 34
	rtmNewneigh nlmsg.HeaderType = 28
	rtmDelneigh nlmsg.HeaderType = 29
	rtmGetneigh nlmsg.HeaderType = 30
)

const (
	iflaIfname uint16 = 3
	iflaAddress uint16 = 1
	iflaMTU    uint16 = 4
	iflaLinkinfo uint16 = 18
	iflaInfoKind uint16 = 1
	iflaInfoData uint16 = 2
	iflaMaster uint16 = 10
	iflaNetnsFD uint16 = 28

	ifaAddress uint16 = 1
	ifaLocal   uint16 = 2
	ifaLabel   uint16 = 3

	rtaDst     uint16 = 1
	rtaGateway uint16 = 5
	rtaOif     uint16 = 4
	rtaPrefsrc uint16 = 7
	rtaPriority uint16 = 6

	ndaDst    uint16 = 1
	ndaLLAddr uint16 = 2
)

// Client is the entry point for every verb in this package: one
// netlinksock.Interface (real or mock) plus the RTNL attribute policies
// needed to decode replies.
type Client struct {
	conn netlinksock.Interface
}

// New wraps conn, which the caller is responsible for opening with
// netlinksock.New(ctx, unix.NETLINK_ROUTE, ...) or mock.Dial.
func New(conn netlinksock.Interface) *Client {
	return &Client{conn: conn}
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func ifinfomsg(index int32, typ uint16, flags, change uint32) []byte {
	b := make([]byte, 16)
	putU16(b[2:4], typ)
	putU32(b[4:8], uint32(index))
	putU32(b[8:12], flags)
	putU32(b[12:16], change)
	return b
}

func ifaddrmsg(family byte, prefixlen byte, scope byte, index int32) []byte {
	b := make([]byte, 8)
	b[0], b[1], b[3] = family, prefixlen, scope
	putU32(b[4:8], uint32(index))
	return b
}

func rtmsg(family, dstLen, srcLen, table, protocol, scope, typ byte, flags uint32) []byte {
	b := make([]byte, 12)
	b[0], b[1], b[2] = family, dstLen, srcLen
	b[4], b[5], b[6], b[7] = table, protocol, scope, typ
	putU32(b[8:12], flags)
	return b
}

func ndmsg(family byte, index int32, state uint16) []byte {
	b := make([]byte, 8)
	b[0] = family
	putU16(b[2:4], state)
	putU32(b[4:8], uint32(index))
	return b
}

func requestFlags(verb Verb) nlmsg.HeaderFlags {
	switch verb {
	case VerbAdd:
		return nlmsg.Request | nlmsg.Create | nlmsg.Excl
	case VerbReplace:
		return nlmsg.Request | nlmsg.Create | nlmsg.Replace
	case VerbSet:
		return nlmsg.Request | nlmsg.Replace
	case VerbDel:
		return nlmsg.Request
	default:
		return nlmsg.Request
	}
}

func execute(ctx context.Context, conn netlinksock.Interface, typ nlmsg.HeaderType, flags nlmsg.HeaderFlags, data []byte) error {
	_, err := conn.Execute(ctx, nlmsg.Message{Header: nlmsg.Header{Type: typ, Flags: flags}, Data: data})
	return err
}
