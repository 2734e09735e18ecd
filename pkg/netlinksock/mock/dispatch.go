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

package mock

import (
	"bytes"
	"encoding/binary"

	"github.com/google/netlinkgo/pkg/nlmsg"
	"golang.org/x/sys/unix"
)

func (c *MockConn) dispatch(msg nlmsg.Message) (nlmsg.Message, error) {
	c.db.lock()
	defer c.db.unlock()

	switch msg.Header.Type {
	case rtmNewlink:
		return c.newlink(msg)
	case rtmDellink:
		return c.dellink(msg)
	case rtmGetlink:
		return c.getlink(msg)
	case rtmNewaddr:
		return c.newaddr(msg)
	case rtmDeladdr:
		return c.deladdr(msg)
	case rtmNewroute:
		return c.newroute(msg)
	case rtmDelroute:
		return c.delroute(msg)
	case rtmNewneigh:
		return c.newneigh(msg)
	case rtmDelneigh:
		return c.delneigh(msg)
	default:
		return ackMessage(msg.Header.Sequence), nil
	}
}

// ifinfomsg: family(1) pad(1) type(2) index(4) flags(4) change(4) = 16 bytes
func parseIfinfomsg(b []byte) (typ uint16, index int32, flags, change uint32, attrs []byte) {
	if len(b) < 16 {
		return
	}
	typ = binary.NativeEndian.Uint16(b[2:4])
	index = int32(binary.NativeEndian.Uint32(b[4:8]))
	flags = binary.NativeEndian.Uint32(b[8:12])
	change = binary.NativeEndian.Uint32(b[12:16])
	attrs = b[16:]
	return
}

func (c *MockConn) newlink(msg nlmsg.Message) (nlmsg.Message, error) {
	typ, index, flags, change, attrBytes := parseIfinfomsg(msg.Data)
	attrs, _ := (nlmsg.Policy{}).Decode(attrBytes)
	name := attrString(attrs, iflaIfname)

	existing := c.db.Links[index]
	if existing == nil && name != "" {
		existing = c.db.LinkByName(name)
	}

	flagExcl := msg.Header.Flags&nlmsg.Excl != 0
	flagCreate := msg.Header.Flags&nlmsg.Create != 0

	if existing != nil {
		if flagExcl && flagCreate {
			return errnoMessage(msg.Header.Sequence, -int32(unix.EEXIST)), nil
		}
		existing.Flags = flags
		existing.Change = change
		if name != "" {
			existing.Name = name
		}
		existing.Attrs = stripAttr(attrBytes, iflaIfname)
		c.notify(rtmNewlink, existing)
		return ackMessage(msg.Header.Sequence), nil
	}
	if !flagCreate {
		return errnoMessage(msg.Header.Sequence, -int32(unix.ENODEV)), nil
	}
	if index == 0 {
		index = c.db.AllocIndex()
	}
	le := &LinkEntry{Index: index, Type: typ, Flags: flags, Change: change, Name: name, Attrs: stripAttr(attrBytes, iflaIfname)}
	c.db.Links[index] = le
	c.notify(rtmNewlink, le)
	return ackMessage(msg.Header.Sequence), nil
}

func (c *MockConn) dellink(msg nlmsg.Message) (nlmsg.Message, error) {
	_, index, _, _, attrBytes := parseIfinfomsg(msg.Data)
	attrs, _ := (nlmsg.Policy{}).Decode(attrBytes)
	if index == 0 {
		if name := attrString(attrs, iflaIfname); name != "" {
			if l := c.db.LinkByName(name); l != nil {
				index = l.Index
			}
		}
	}
	le, ok := c.db.Links[index]
	if !ok {
		return errnoMessage(msg.Header.Sequence, -int32(unix.ENODEV)), nil
	}
	delete(c.db.Links, index)
	c.notify(rtmDellink, le)
	return ackMessage(msg.Header.Sequence), nil
}

func (c *MockConn) getlink(msg nlmsg.Message) (nlmsg.Message, error) {
	_, index, _, _, attrBytes := parseIfinfomsg(msg.Data)
	attrs, _ := (nlmsg.Policy{}).Decode(attrBytes)
	if index == 0 {
		if name := attrString(attrs, iflaIfname); name != "" {
			if l := c.db.LinkByName(name); l != nil {
				index = l.Index
			}
		}
	}
	le, ok := c.db.Links[index]
	if !ok {
		return errnoMessage(msg.Header.Sequence, -int32(unix.ENODEV)), nil
	}
	return encodeLink(le, msg.Header.Sequence, rtmNewlink), nil
}

// ifaddrmsg: family(1) prefixlen(1) flags(1) scope(1) index(4) = 8 bytes
func parseIfaddrmsg(b []byte) (family, prefixlen, scope, flags byte, index int32, attrs []byte) {
	if len(b) < 8 {
		return
	}
	family, prefixlen, flags, scope = b[0], b[1], b[2], b[3]
	index = int32(binary.NativeEndian.Uint32(b[4:8]))
	attrs = b[8:]
	return
}

func (c *MockConn) newaddr(msg nlmsg.Message) (nlmsg.Message, error) {
	family, prefixlen, scope, flags, index, attrBytes := parseIfaddrmsg(msg.Data)
	attrs, _ := (nlmsg.Policy{}).Decode(attrBytes)
	addr := attrBytesValue(attrs, ifaAddress)
	local := attrBytesValue(attrs, ifaLocal)
	if local == nil {
		local = addr
	}
	for _, a := range c.db.Addrs {
		if a.Index == index && a.PrefixLen == prefixlen && bytes.Equal(a.Address, addr) {
			if msg.Header.Flags&nlmsg.Excl != 0 {
				return errnoMessage(msg.Header.Sequence, -int32(unix.EEXIST)), nil
			}
			a.Scope, a.Flags = scope, flags
			c.notify(rtmNewaddr, a)
			return ackMessage(msg.Header.Sequence), nil
		}
	}
	ae := &AddrEntry{Index: index, Family: family, PrefixLen: prefixlen, Scope: scope, Flags: flags, Address: addr, Local: local, Attrs: attrBytes}
	c.db.Addrs = append(c.db.Addrs, ae)
	c.notify(rtmNewaddr, ae)
	return ackMessage(msg.Header.Sequence), nil
}

func (c *MockConn) deladdr(msg nlmsg.Message) (nlmsg.Message, error) {
	_, prefixlen, _, _, index, attrBytes := parseIfaddrmsg(msg.Data)
	attrs, _ := (nlmsg.Policy{}).Decode(attrBytes)
	addr := attrBytesValue(attrs, ifaAddress)
	for i, a := range c.db.Addrs {
		if a.Index == index && a.PrefixLen == prefixlen && bytes.Equal(a.Address, addr) {
			c.db.Addrs = append(c.db.Addrs[:i], c.db.Addrs[i+1:]...)
			c.notify(rtmDeladdr, a)
			return ackMessage(msg.Header.Sequence), nil
		}
	}
	return errnoMessage(msg.Header.Sequence, -int32(unix.EADDRNOTAVAIL)), nil
}

// rtmsg: family dst_len src_len tos table protocol scope type(8 bytes) flags(4) = 12 bytes
func parseRtmsg(b []byte) (family, dstLen, srcLen, tos, table, protocol, scope, typ byte, flags uint32, attrs []byte) {
	if len(b) < 12 {
		return
	}
	family, dstLen, srcLen, tos = b[0], b[1], b[2], b[3]
	table, protocol, scope, typ = b[4], b[5], b[6], b[7]
	flags = binary.NativeEndian.Uint32(b[8:12])
	attrs = b[12:]
	return
}

const (
	rtaDst = 1
	rtaGateway = 5
	rtaOif = 4
)

func (c *MockConn) newroute(msg nlmsg.Message) (nlmsg.Message, error) {
	family, dstLen, srcLen, tos, table, protocol, scope, typ, flags, attrBytes := parseRtmsg(msg.Data)
	attrs, _ := (nlmsg.Policy{}).Decode(attrBytes)
	dst := attrBytesValue(attrs, rtaDst)
	gw := attrBytesValue(attrs, rtaGateway)
	oif := attrUint32(attrs, rtaOif)

	for _, r := range c.db.Routes {
		if r.DstLen == dstLen && bytes.Equal(r.Dst, dst) && r.Table == table {
			if msg.Header.Flags&nlmsg.Excl != 0 {
				return errnoMessage(msg.Header.Sequence, -int32(unix.EEXIST)), nil
			}
			r.Gateway, r.OutIndex = gw, int32(oif)
			c.notify(rtmNewroute, r)
			return ackMessage(msg.Header.Sequence), nil
		}
	}
	re := &RouteEntry{Family: family, DstLen: dstLen, SrcLen: srcLen, Tos: tos, Table: table, Protocol: protocol,
		Scope: scope, Type: typ, Flags: flags, OutIndex: int32(oif), Dst: dst, Gateway: gw, Attrs: attrBytes}
	c.db.Routes = append(c.db.Routes, re)
	c.notify(rtmNewroute, re)
	return ackMessage(msg.Header.Sequence), nil
}

func (c *MockConn) delroute(msg nlmsg.Message) (nlmsg.Message, error) {
	_, dstLen, _, _, table, _, _, _, _, attrBytes := parseRtmsg(msg.Data)
	attrs, _ := (nlmsg.Policy{}).Decode(attrBytes)
	dst := attrBytesValue(attrs, rtaDst)
	for i, r := range c.db.Routes {
		if r.DstLen == dstLen && bytes.Equal(r.Dst, dst) && r.Table == table {
			c.db.Routes = append(c.db.Routes[:i], c.db.Routes[i+1:]...)
			c.notify(rtmDelroute, r)
			return ackMessage(msg.Header.Sequence), nil
		}
	}
	return errnoMessage(msg.Header.Sequence, -int32(unix.ESRCH)), nil
}

const ndaDst = 1
const ndaLLAddr = 2

func (c *MockConn) newneigh(msg nlmsg.Message) (nlmsg.Message, error) {
	if len(msg.Data) < 8 {
		return errnoMessage(msg.Header.Sequence, -int32(unix.EINVAL)), nil
	}
	family := msg.Data[0]
	state := binary.NativeEndian.Uint16(msg.Data[2:4])
	index := int32(binary.NativeEndian.Uint32(msg.Data[4:8]))
	attrs, _ := (nlmsg.Policy{}).Decode(msg.Data[8:])
	dst := attrBytesValue(attrs, ndaDst)
	ll := attrBytesValue(attrs, ndaLLAddr)

	for _, n := range c.db.Neighs {
		if n.Index == index && bytes.Equal(n.Dst, dst) {
			n.State, n.LLAddr = state, ll
			c.notify(rtmNewneigh, n)
			return ackMessage(msg.Header.Sequence), nil
		}
	}
	ne := &NeighEntry{Index: index, Family: family, State: state, Dst: dst, LLAddr: ll}
	c.db.Neighs = append(c.db.Neighs, ne)
	c.notify(rtmNewneigh, ne)
	return ackMessage(msg.Header.Sequence), nil
}

func (c *MockConn) delneigh(msg nlmsg.Message) (nlmsg.Message, error) {
	if len(msg.Data) < 8 {
		return errnoMessage(msg.Header.Sequence, -int32(unix.EINVAL)), nil
	}
	index := int32(binary.NativeEndian.Uint32(msg.Data[4:8]))
	attrs, _ := (nlmsg.Policy{}).Decode(msg.Data[8:])
	dst := attrBytesValue(attrs, ndaDst)
	for i, n := range c.db.Neighs {
		if n.Index == index && bytes.Equal(n.Dst, dst) {
			c.db.Neighs = append(c.db.Neighs[:i], c.db.Neighs[i+1:]...)
			c.notify(rtmDelneigh, n)
			return ackMessage(msg.Header.Sequence), nil
		}
	}
	return errnoMessage(msg.Header.Sequence, -int32(unix.ENOENT)), nil
}

func (c *MockConn) notify(typ nlmsg.HeaderType, entry any) {
	if c.callback == nil {
		return
	}
	var msg nlmsg.Message
	switch e := entry.(type) {
	case *LinkEntry:
		msg = encodeLink(e, 0, typ)
	case *AddrEntry:
		msg = encodeAddr(e, 0, typ)
	case *RouteEntry:
		msg = encodeRoute(e, 0, typ)
	case *NeighEntry:
		msg = encodeNeigh(e, 0, typ)
	default:
		return
	}
	c.callback(msg)
}
