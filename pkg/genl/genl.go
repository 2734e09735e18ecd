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

// Package genl implements generic netlink family resolution (CTRL_CMD_GETFAMILY)
// and the genlmsghdr framing that pkg/wireguard builds on, the way
// mdlayher/genetlink layers over mdlayher/netlink -- except here both
// layers are ours. Grounded on driver/ethtool.go's use of genetlink.Dial
// and genetlink.Conn.GetFamily/Execute, translated onto netlinksock.Conn.
package genl

import (
	"context"
	"fmt"

	"github.com/google/netlinkgo/pkg/netlinksock"
	"github.com/google/netlinkgo/pkg/nlmsg"

	"golang.org/x/sys/unix"
)

const (
	genlIDCtrl        nlmsg.HeaderType = 0x10
	ctrlCmdGetfamily  uint8            = 3
	ctrlAttrFamilyID  uint16           = 1
	ctrlAttrFamilyName uint16          = 2

	genlHeaderLen = 4
)

// Header is the 4-byte genlmsghdr prefixing every generic netlink message's
// body: command, interface version, and two reserved bytes.
type Header struct {
	Command uint8
	Version uint8
}

// Message is a decoded generic netlink message.
type Message struct {
	Header Header
	Data   []byte
}

func (h Header) encode() []byte {
	b := make([]byte, genlHeaderLen)
	b[0], b[1] = h.Command, h.Version
	return b
}

func decodeGenlHeader(b []byte) (Header, []byte) {
	if len(b) < genlHeaderLen {
		return Header{}, nil
	}
	return Header{Command: b[0], Version: b[1]}, b[genlHeaderLen:]
}

// Conn wraps a netlinksock.Conn opened against NETLINK_GENERIC, adding
// per-family id resolution.
type Conn struct {
	conn netlinksock.Interface
}

// Dial opens NETLINK_GENERIC on the current (or mocked) namespace.
func Dial(ctx context.Context) (*Conn, error) {
	c, err := netlinksock.New(ctx, unix.NETLINK_GENERIC)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: c}, nil
}

// Wrap adapts an already-open netlinksock.Interface (e.g. a mock) instead
// of dialing a new one.
func Wrap(conn netlinksock.Interface) *Conn { return &Conn{conn: conn} }

func (c *Conn) Close() error { return c.conn.Close() }

// GetFamily resolves name to its numeric family id via CTRL_CMD_GETFAMILY,
// the lookup every genetlink consumer (ethtool, wireguard, nl80211, ...)
// performs before it can address its own family-specific commands.
func (c *Conn) GetFamily(ctx context.Context, name string) (uint16, error) {
	enc := nlmsg.NewAttributeEncoder()
	enc.String(ctrlAttrFamilyName, name)
	body, _ := enc.Encode()
	data := append(Header{Command: ctrlCmdGetfamily, Version: 1}.encode(), body...)

	reply, err := c.conn.Execute(ctx, nlmsg.Message{
		Header: nlmsg.Header{Type: genlIDCtrl, Flags: nlmsg.Request},
		Data:   data,
	})
	if err != nil {
		return 0, fmt.Errorf("genl: resolve family %q: %w", name, err)
	}
	_, attrBytes := decodeGenlHeader(reply.Data)
	ad, _ := nlmsg.NewAttributeDecoder(attrBytes)
	for ad.Next() {
		if ad.Type() == ctrlAttrFamilyID {
			return ad.Uint16(), nil
		}
	}
	return 0, fmt.Errorf("genl: family %q not found", name)
}

// Execute sends a command to familyID and returns the single reply's body,
// stripped of its genlmsghdr.
func (c *Conn) Execute(ctx context.Context, familyID uint16, hdr Header, body []byte) (Message, error) {
	data := append(hdr.encode(), body...)
	reply, err := c.conn.Execute(ctx, nlmsg.Message{
		Header: nlmsg.Header{Type: nlmsg.HeaderType(familyID), Flags: nlmsg.Request},
		Data:   data,
	})
	if err != nil {
		return Message{}, err
	}
	rhdr, rbody := decodeGenlHeader(reply.Data)
	return Message{Header: rhdr, Data: rbody}, nil
}

// Dump sends a dump command to familyID and lazily yields each reply's body.
func (c *Conn) Dump(ctx context.Context, familyID uint16, hdr Header, body []byte) func(func(Message, error) bool) {
	data := append(hdr.encode(), body...)
	return func(yield func(Message, error) bool) {
		for msg, err := range c.conn.Dump(ctx, nlmsg.Message{Header: nlmsg.Header{Type: nlmsg.HeaderType(familyID)}, Data: data}) {
			if err != nil {
				yield(Message{}, err)
				return
			}
			rhdr, rbody := decodeGenlHeader(msg.Data)
			if !yield(Message{Header: rhdr, Data: rbody}, nil) {
				return
			}
		}
	}
}
