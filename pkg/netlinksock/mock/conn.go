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
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/netlinkgo/pkg/marshal"
	"github.com/google/netlinkgo/pkg/nlerrors"
	"github.com/google/netlinkgo/pkg/nlmsg"
)

// RTM_* message types, duplicated from linux/rtnetlink.h rather than
// imported from pkg/rtnl to avoid a dependency cycle (pkg/rtnl depends on
// this package's MockConn for its own tests).
const (
	rtmNewlink  = 16
	rtmDellink  = 17
	rtmGetlink  = 18
	rtmNewaddr  = 20
	rtmDeladdr  = 21
	rtmGetaddr  = 22
	rtmNewroute = 24
	rtmDelroute = 25
	rtmGetroute = 26
	rtmNewneigh = 28
	rtmDelneigh = 29
	rtmGetneigh = 30
)

const (
	iflaIfname = 3
	ifaAddress = 1
	ifaLocal   = 2
)

// MockConn satisfies netlinksock.Interface against a Database instead of a
// live AF_NETLINK socket. It does not run a read loop: Execute and Dump
// synthesize their replies directly from Database state.
type MockConn struct {
	db       *Database
	pid      uint32
	callback func(nlmsg.Message)
}

// Dial returns a MockConn bound to db. pid is an arbitrary stand-in for the
// kernel-assigned port id real sockets get from bind(2).
func Dial(db *Database, pid uint32) *MockConn {
	return &MockConn{db: db, pid: pid}
}

func (c *MockConn) PID() uint32 { return c.pid }
func (c *MockConn) Close() error { return nil }

// RegisterCallback is a no-op: the mock only ever speaks RTNL's own message
// types, so there's nothing for a protocol subclass to extend.
func (c *MockConn) RegisterCallback(map[nlmsg.HeaderType]marshal.ClassDecoder) {}

// SetBroadcast installs cb, invoked for every NEWLINK/DELLINK/... reply this
// MockConn synthesizes -- the mock equivalent of netlinksock.WithBroadcast,
// used to exercise pkg/ndbcache against the fixture.
func (c *MockConn) SetBroadcast(cb func(nlmsg.Message)) { c.callback = cb }

func errnoMessage(seq uint32, errno int32) nlmsg.Message {
	data := make([]byte, 4+16)
	binary.NativeEndian.PutUint32(data[:4], uint32(errno))
	msg := nlmsg.Message{Header: nlmsg.Header{Type: nlmsg.Error, Sequence: seq}, Data: data}
	if errno != 0 {
		nlerrors.AttachNetlinkError(&msg, -errno)
	}
	return msg
}

func ackMessage(seq uint32) nlmsg.Message { return errnoMessage(seq, 0) }

// Execute dispatches one request against db synchronously.
func (c *MockConn) Execute(ctx context.Context, msg nlmsg.Message) (nlmsg.Message, error) {
	reply, err := c.dispatch(msg)
	reply.Header.Sequence = msg.Header.Sequence
	if reply.Err != nil {
		return reply, reply.Err
	}
	return reply, err
}

// Dump yields every stored object matching msg's RTM_GET* type.
func (c *MockConn) Dump(ctx context.Context, msg nlmsg.Message) func(func(nlmsg.Message, error) bool) {
	return func(yield func(nlmsg.Message, error) bool) {
		c.db.lock()
		defer c.db.unlock()
		switch msg.Header.Type {
		case rtmGetlink:
			for _, idx := range c.db.SortedLinkIndices() {
				if !yield(encodeLink(c.db.Links[idx], msg.Header.Sequence, rtmNewlink), nil) {
					return
				}
			}
		case rtmGetaddr:
			for _, a := range c.db.Addrs {
				if !yield(encodeAddr(a, msg.Header.Sequence, rtmNewaddr), nil) {
					return
				}
			}
		case rtmGetroute:
			for _, r := range c.db.Routes {
				if !yield(encodeRoute(r, msg.Header.Sequence, rtmNewroute), nil) {
					return
				}
			}
		case rtmGetneigh:
			for _, n := range c.db.Neighs {
				if !yield(encodeNeigh(n, msg.Header.Sequence, rtmNewneigh), nil) {
					return
				}
			}
		default:
			yield(nlmsg.Message{}, fmt.Errorf("mock: unsupported dump type %d", msg.Header.Type))
		}
	}
}
