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

	"github.com/google/netlinkgo/pkg/nlmsg"
)

const (
	iflaAFSpec        uint16 = 26
	afBridgeVlanInfo  uint16 = 2
	bridgeFlagPVID    uint16 = 0x2
	bridgeFlagUntagged uint16 = 0x4
)

// VLANFilter describes one 802.1Q VLAN membership entry to apply to a
// bridge port via IFLA_AF_SPEC, the nested attribute the kernel overlays
// on ifinfomsg for per-address-family link configuration.
type VLANFilter struct {
	VID      uint16
	PVID     bool
	Untagged bool
}

func (v VLANFilter) flags() uint16 {
	var f uint16
	if v.PVID {
		f |= bridgeFlagPVID
	}
	if v.Untagged {
		f |= bridgeFlagUntagged
	}
	return f
}

func (v VLANFilter) encodeInfo() []byte {
	b := make([]byte, 4)
	putU16(b[0:2], v.flags())
	putU16(b[2:4], v.VID)
	return b
}

// SetVLANFilter applies filters to the bridge port linkIndex by sending an
// RTM_SETLINK carrying IFLA_AF_SPEC(AF_BRIDGE nested bridge_vlan_info*).
func (c *Client) SetVLANFilter(ctx context.Context, linkIndex int32, filters []VLANFilter) error {
	enc := nlmsg.NewAttributeEncoder()
	enc.Nested(iflaAFSpec, func(n *nlmsg.AttributeEncoder) error {
		for _, f := range filters {
			n.Bytes(afBridgeVlanInfo, f.encodeInfo())
		}
		return nil
	})
	body, _ := enc.Encode()
	data := append(ifinfomsg(linkIndex, 0, 0, 0), body...)
	data[0] = AFBridge // ifi_family
	return execute(ctx, c.conn, rtmSetlink, requestFlags(VerbSet)|nlmsg.Acknowledge, data)
}
