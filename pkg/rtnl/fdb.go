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

	"github.com/google/netlinkgo/pkg/nlmsg"
)

// AFBridge is the AF_BRIDGE family id that turns an RTM_*NEIGH request into
// an FDB (forwarding database) operation instead of an ARP/NDP one -- the
// same wire message, interpreted differently by the kernel based on
// ndmsg.family (spec §6 "FDB entries reuse the neighbor message format").
const AFBridge byte = 7

// FDBEntry is one bridge forwarding database entry: a MAC address learned
// or statically pinned on a bridge port.
type FDBEntry struct {
	Index  int32
	LLAddr net.HardwareAddr
	State  uint16
}

// AddFDB pins a static FDB entry for mac on the bridge port linkIndex.
func (c *Client) AddFDB(ctx context.Context, linkIndex int32, mac net.HardwareAddr) error {
	enc := nlmsg.NewAttributeEncoder()
	enc.HardwareAddr(ndaLLAddr, mac)
	body, _ := enc.Encode()
	data := append(ndmsgBridge(linkIndex, NeighStatePermanent), body...)
	return execute(ctx, c.conn, rtmNewneigh, requestFlags(VerbAdd)|nlmsg.Acknowledge, data)
}

// DelFDB removes the FDB entry for mac on the bridge port linkIndex.
func (c *Client) DelFDB(ctx context.Context, linkIndex int32, mac net.HardwareAddr) error {
	enc := nlmsg.NewAttributeEncoder()
	enc.HardwareAddr(ndaLLAddr, mac)
	body, _ := enc.Encode()
	data := append(ndmsgBridge(linkIndex, 0), body...)
	return execute(ctx, c.conn, rtmDelneigh, requestFlags(VerbDel)|nlmsg.Acknowledge, data)
}

// DumpFDB lists every FDB entry on linkIndex, or on every bridge port when
// linkIndex is 0.
func (c *Client) DumpFDB(ctx context.Context, linkIndex int32) ([]FDBEntry, error) {
	var out []FDBEntry
	for msg, err := range c.conn.Dump(ctx, nlmsg.Message{Header: nlmsg.Header{Type: rtmGetneigh}, Data: ndmsgBridge(0, 0)}) {
		if err != nil {
			return out, err
		}
		n := decodeNeigh(msg)
		if linkIndex != 0 && n.Index != linkIndex {
			continue
		}
		out = append(out, FDBEntry{Index: n.Index, LLAddr: n.LLAddr, State: n.State})
	}
	return out, nil
}

func ndmsgBridge(index int32, state uint16) []byte {
	return ndmsg(AFBridge, index, state)
}
