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

// NeighStatePermanent is NUD_PERMANENT: a static ARP/NDP entry that never
// expires or gets probed, the state AddFDB uses for static FDB entries.
const NeighStatePermanent uint16 = 0x80

// Neigh is the decoded view of one RTM_*NEIGH object (an ARP/NDP cache
// entry).
type Neigh struct {
	Index  int32
	Family byte
	State  uint16
	Dst    net.IP
	LLAddr net.HardwareAddr
}

var neighPolicy = nlmsg.Policy{
	ndaDst:    {Name: "dst", Kind: nlmsg.KindIPAddr},
	ndaLLAddr: {Name: "lladdr", Kind: nlmsg.KindHardwareAddr},
}

func decodeNeigh(msg nlmsg.Message) Neigh {
	var n Neigh
	if len(msg.Data) < 8 {
		return n
	}
	n.Family = msg.Data[0]
	n.State = nativeU16(msg.Data[2:4])
	n.Index = int32(getU32(msg.Data[4:8]))
	attrs, _ := neighPolicy.Decode(msg.Data[8:])
	for _, a := range attrs {
		switch a.Type {
		case ndaDst:
			n.Dst, _ = a.Value.(net.IP)
		case ndaLLAddr:
			n.LLAddr, _ = a.Value.(net.HardwareAddr)
		}
	}
	return n
}

func encodeNeighAttrs(dst net.IP, ll net.HardwareAddr) []byte {
	enc := nlmsg.NewAttributeEncoder()
	enc.IP(ndaDst, dst)
	if ll != nil {
		enc.HardwareAddr(ndaLLAddr, ll)
	}
	b, _ := enc.Encode()
	return b
}

// AddNeigh installs a neighbor cache entry for dst on linkIndex with the
// given link-layer address and NUD state.
func (c *Client) AddNeigh(ctx context.Context, linkIndex int32, dst net.IP, ll net.HardwareAddr, state uint16) error {
	data := append(ndmsg(familyOf(dst), linkIndex, state), encodeNeighAttrs(dst, ll)...)
	return execute(ctx, c.conn, rtmNewneigh, requestFlags(VerbAdd)|nlmsg.Acknowledge, data)
}

// DelNeigh removes the neighbor cache entry for dst on linkIndex.
func (c *Client) DelNeigh(ctx context.Context, linkIndex int32, dst net.IP) error {
	data := append(ndmsg(familyOf(dst), linkIndex, 0), encodeNeighAttrs(dst, nil)...)
	return execute(ctx, c.conn, rtmDelneigh, requestFlags(VerbDel)|nlmsg.Acknowledge, data)
}

// DumpNeighs lists every neighbor cache entry, or linkIndex's only when
// linkIndex != 0.
func (c *Client) DumpNeighs(ctx context.Context, linkIndex int32) ([]Neigh, error) {
	var out []Neigh
	for msg, err := range c.conn.Dump(ctx, nlmsg.Message{Header: nlmsg.Header{Type: rtmGetneigh}, Data: ndmsg(0, 0, 0)}) {
		if err != nil {
			return out, err
		}
		n := decodeNeigh(msg)
		if linkIndex != 0 && n.Index != linkIndex {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
