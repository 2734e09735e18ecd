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

	"github.com/google/netlinkgo/pkg/netlinksock"
	"github.com/google/netlinkgo/pkg/nlmsg"
)

const (
	rtmNewqdisc nlmsg.HeaderType = 36
	rtmDelqdisc nlmsg.HeaderType = 37
	rtmGetqdisc nlmsg.HeaderType = 38
)

const (
	tcaKind    uint16 = 1
	tcaHandleRoot        = 0xffffffff
	tcaIngressParent      = 0xfffffff1
)

// Qdisc is the decoded view of one RTM_*QDISC object, scoped to the kind
// field: enough to tell whether an ingress/clsact qdisc is already attached
// to a link.
type Qdisc struct {
	Index  int32
	Handle uint32
	Parent uint32
	Kind   string
}

var tcPolicy = nlmsg.Policy{
	tcaKind: {Name: "kind", Kind: nlmsg.KindAsciiz},
}

func tcmsg(index int32, handle, parent uint32) []byte {
	b := make([]byte, 20)
	putU32(b[4:8], uint32(index))
	putU32(b[8:12], handle)
	putU32(b[12:16], parent)
	return b
}

func decodeQdisc(msg nlmsg.Message) Qdisc {
	var q Qdisc
	if len(msg.Data) < 20 {
		return q
	}
	q.Index = int32(getU32(msg.Data[4:8]))
	q.Handle = getU32(msg.Data[8:12])
	q.Parent = getU32(msg.Data[12:16])
	attrs, _ := tcPolicy.Decode(msg.Data[20:])
	for _, a := range attrs {
		if a.Type == tcaKind {
			q.Kind, _ = a.Value.(string)
		}
	}
	return q
}

// AddClsactQdisc attaches the clsact qdisc to linkIndex, the attachment
// point a tc classifier needs on an interface before a filter can be
// installed on its ingress hook.
func (c *Client) AddClsactQdisc(ctx context.Context, linkIndex int32) error {
	enc := nlmsg.NewAttributeEncoder()
	enc.String(tcaKind, "clsact")
	body, _ := enc.Encode()
	data := append(tcmsg(linkIndex, tcaHandleRoot, tcaIngressParent), body...)
	return execute(ctx, c.conn, rtmNewqdisc, requestFlags(VerbAdd)|nlmsg.Acknowledge, data)
}

// DelQdisc removes the qdisc installed at handle/parent on linkIndex.
func (c *Client) DelQdisc(ctx context.Context, linkIndex int32, handle, parent uint32) error {
	data := tcmsg(linkIndex, handle, parent)
	return execute(ctx, c.conn, rtmDelqdisc, requestFlags(VerbDel)|nlmsg.Acknowledge, data)
}

// DumpQdiscs lists every qdisc on linkIndex.
func (c *Client) DumpQdiscs(ctx context.Context, linkIndex int32) ([]Qdisc, error) {
	var out []Qdisc
	for msg, err := range c.conn.Dump(ctx, nlmsg.Message{Header: nlmsg.Header{Type: rtmGetqdisc}, Data: tcmsg(linkIndex, 0, 0)}) {
		if err != nil {
			return out, err
		}
		out = append(out, decodeQdisc(msg))
	}
	return out, nil
}

func hasClsact(qdiscs []Qdisc) bool {
	for _, q := range qdiscs {
		if q.Kind == "clsact" {
			return true
		}
	}
	return false
}

// EnsureClsactQdisc idempotently attaches or removes the clsact qdisc on
// linkIndex.
func (c *Client) EnsureClsactQdisc(ctx context.Context, present bool, linkIndex int32) error {
	return netlinksock.Ensure(ctx, present,
		func(ctx context.Context) (bool, error) {
			qdiscs, err := c.DumpQdiscs(ctx, linkIndex)
			return hasClsact(qdiscs), err
		},
		func(ctx context.Context) error { return c.AddClsactQdisc(ctx, linkIndex) },
		func(ctx context.Context) error { return c.DelQdisc(ctx, linkIndex, tcaHandleRoot, tcaIngressParent) },
	)
}
