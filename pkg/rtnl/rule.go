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

const (
	fraTable    uint16 = 15
	fraPriority uint16 = 6
	fraSrc      uint16 = 2
	fraDst      uint16 = 1
)

// Rule is the decoded view of one RTM_*RULE object (an entry in the policy
// routing rule database, `ip rule`).
type Rule struct {
	Family   byte
	Priority uint32
	Table    uint32
	Src      *net.IPNet
	Dst      *net.IPNet
}

var rulePolicy = nlmsg.Policy{
	fraTable:    {Name: "table", Kind: nlmsg.KindUint32},
	fraPriority: {Name: "priority", Kind: nlmsg.KindUint32},
	fraSrc:      {Name: "src", Kind: nlmsg.KindIPAddr},
	fraDst:      {Name: "dst", Kind: nlmsg.KindIPAddr},
}

func decodeRule(msg nlmsg.Message) Rule {
	var r Rule
	if len(msg.Data) < 12 {
		return r
	}
	r.Family = msg.Data[0]
	srcLen, dstLen := msg.Data[1], msg.Data[2]
	attrs, _ := rulePolicy.Decode(msg.Data[12:])
	for _, a := range attrs {
		switch a.Type {
		case fraTable:
			r.Table, _ = a.Value.(uint32)
		case fraPriority:
			r.Priority, _ = a.Value.(uint32)
		case fraSrc:
			ip, _ := a.Value.(net.IP)
			if ip != nil {
				r.Src = &net.IPNet{IP: ip, Mask: net.CIDRMask(int(srcLen), bitsFor(r.Family))}
			}
		case fraDst:
			ip, _ := a.Value.(net.IP)
			if ip != nil {
				r.Dst = &net.IPNet{IP: ip, Mask: net.CIDRMask(int(dstLen), bitsFor(r.Family))}
			}
		}
	}
	return r
}

func bitsFor(family byte) int {
	if family == 10 {
		return 128
	}
	return 32
}

// RuleSpec describes a policy routing rule to add or delete.
type RuleSpec struct {
	Family   byte
	Priority uint32
	Table    uint32
	Src      *net.IPNet
}

func (s RuleSpec) encode() []byte {
	enc := nlmsg.NewAttributeEncoder()
	enc.Uint32(fraTable, s.Table)
	enc.Uint32(fraPriority, s.Priority)
	if s.Src != nil {
		enc.IP(fraSrc, s.Src.IP)
	}
	b, _ := enc.Encode()
	return b
}

func (s RuleSpec) srcLen() byte {
	if s.Src == nil {
		return 0
	}
	ones, _ := s.Src.Mask.Size()
	return byte(ones)
}

// AddRule installs a policy routing rule.
func (c *Client) AddRule(ctx context.Context, spec RuleSpec) error {
	data := append(rtmsg(spec.Family, spec.srcLen(), 0, 0, 0, 0, 0, 0), spec.encode()...)
	return execute(ctx, c.conn, rtmNewrule, requestFlags(VerbAdd)|nlmsg.Acknowledge, data)
}

// DelRule removes a policy routing rule matching spec's priority and table.
func (c *Client) DelRule(ctx context.Context, spec RuleSpec) error {
	data := append(rtmsg(spec.Family, spec.srcLen(), 0, 0, 0, 0, 0, 0), spec.encode()...)
	return execute(ctx, c.conn, rtmDelrule, requestFlags(VerbDel)|nlmsg.Acknowledge, data)
}

// DumpRules lists every policy routing rule.
func (c *Client) DumpRules(ctx context.Context) ([]Rule, error) {
	var out []Rule
	for msg, err := range c.conn.Dump(ctx, nlmsg.Message{Header: nlmsg.Header{Type: rtmGetrule}, Data: rtmsg(0, 0, 0, 0, 0, 0, 0, 0)}) {
		if err != nil {
			return out, err
		}
		out = append(out, decodeRule(msg))
	}
	return out, nil
}
