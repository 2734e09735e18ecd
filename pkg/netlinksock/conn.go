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

// Package netlinksock implements the asynchronous core socket of spec §4.4
// and the request/response/dump verbs of spec §4.5: one AF_NETLINK fd, one
// read loop, one Marshal, one nlqueue.Queue, and a pool of sequence numbers
// handed out to concurrent callers. The single-goroutine read loop plus
// buffered per-sequence channels stand in for pyroute2's single-threaded
// asyncio event loop.
package netlinksock

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/netlinkgo/pkg/config"
	"github.com/google/netlinkgo/pkg/marshal"
	"github.com/google/netlinkgo/pkg/nlerrors"
	"github.com/google/netlinkgo/pkg/nlmsg"
	"github.com/google/netlinkgo/pkg/nlqueue"
	"github.com/google/netlinkgo/pkg/procsup"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// Interface is the surface pkg/rtnl and friends program against, satisfied
// by both *Conn and pkg/netlinksock/mock.MockConn so RTNL verb code never
// needs a build tag to run against the in-memory fixture (spec §4.4 "mock
// mode").
type Interface interface {
	Execute(ctx context.Context, msg nlmsg.Message) (nlmsg.Message, error)
	Dump(ctx context.Context, msg nlmsg.Message) func(func(nlmsg.Message, error) bool)
	RegisterCallback(map[nlmsg.HeaderType]marshal.ClassDecoder)
	PID() uint32
	Close() error
}

var _ Interface = (*Conn)(nil)

// Broadcast is invoked from the read loop for every message, before it is
// routed to a per-sequence queue; used by pkg/ndbcache to observe RTNL
// notifications (multicast group traffic carries sequence 0).
type Broadcast func(nlmsg.Message)

// Conn is one netlink socket plus its demultiplexing machinery. The zero
// value is not usable; construct with New.
type Conn struct {
	fd       int
	family   int
	pid      uint32
	groups   uint32
	marshal  *marshal.Marshal
	queue    *nlqueue.Queue
	pool     *addrPool
	mu       sync.Mutex
	closed   bool
	callback Broadcast

	readDone chan struct{}
}

// Option configures a Conn at construction time.
type Option func(*Conn)

// WithGroups joins the given multicast groups (bitmask, RTMGRP_*-style) at
// bind time.
func WithGroups(groups uint32) Option {
	return func(c *Conn) { c.groups = groups }
}

// WithBroadcast installs cb to observe every message the read loop parses,
// in addition to normal sequence-based delivery.
func WithBroadcast(cb Broadcast) Option {
	return func(c *Conn) { c.callback = cb }
}

// New opens family (unix.NETLINK_ROUTE, NETLINK_NETFILTER, NETLINK_GENERIC,
// ...), binds it, and starts the read loop. When config.MockNetlink is set,
// callers should use pkg/netlinksock/mock instead; New refuses to run
// against a live kernel socket in that mode so a misconfigured test cannot
// silently touch real interfaces.
func New(ctx context.Context, family int, opts ...Option) (*Conn, error) {
	if config.MockNetlink {
		return nil, errors.New("netlinksock: config.MockNetlink is set, use pkg/netlinksock/mock.Dial instead")
	}
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, family)
	if err != nil {
		return nil, &nlerrors.ResourceError{Kind: "socket", Err: err}
	}
	return newWithFD(ctx, fd, family, opts)
}

// NewInNamespace is New for a netlink socket that must be created inside a
// different network namespace -- a container's, typically -- than the
// calling process's own. The socket itself is opened by a pkg/procsup
// helper that briefly enters ns (a bare name resolved against
// config.NetnsPath, or an absolute path) and hands the fd back over
// SCM_RIGHTS; everything after that (bind, getsockname, the read loop)
// runs locally, since a netlink socket's namespace is fixed at creation
// and unaffected by which process later operates on its fd.
func NewInNamespace(ctx context.Context, family int, ns string, opts ...Option) (*Conn, error) {
	if config.MockNetlink {
		return nil, errors.New("netlinksock: config.MockNetlink is set, use pkg/netlinksock/mock.Dial instead")
	}
	fd, err := procsup.SocketInNamespace(ns, unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, family, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return newWithFD(ctx, fd, family, opts)
}

func newWithFD(ctx context.Context, fd, family int, opts []Option) (*Conn, error) {
	c := &Conn{
		fd:       fd,
		family:   family,
		marshal:  marshal.New(),
		queue:    nlqueue.New(),
		pool:     newAddrPool(),
		readDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: c.groups}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, &nlerrors.ResourceError{Kind: "bind", Err: err}
	}
	addr, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, &nlerrors.ResourceError{Kind: "getsockname", Err: err}
	}
	if nl, ok := addr.(*unix.SockaddrNetlink); ok {
		c.pid = nl.Pid
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, 32*1024*1024); err != nil {
		klog.V(4).Infof("netlinksock: SO_RCVBUF: %v", err)
	}
	go c.readLoop()
	go func() {
		<-ctx.Done()
		c.Close()
	}()
	return c, nil
}

// RegisterCallback extends the message-type decoder registry for this
// Conn's protocol subclass (e.g. ipset's NFNL_MSG_* range).
func (c *Conn) RegisterCallback(cls map[nlmsg.HeaderType]marshal.ClassDecoder) {
	c.marshal.RegisterPolicy(cls)
}

// PID returns the kernel-assigned port id this socket bound to.
func (c *Conn) PID() uint32 { return c.pid }

func (c *Conn) readLoop() {
	defer close(c.readDone)
	buf := make([]byte, 64*1024)
	for {
		n, _, err := unix.Recvfrom(c.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			c.handleReadError(err)
			return
		}
		if n == 0 {
			continue
		}
		frame := append([]byte(nil), buf[:n]...)
		for msg := range c.marshal.Parse(frame, nil, nil) {
			if c.callback != nil {
				c.callback(msg)
			}
			enc, err := msg.MarshalBinary()
			if err != nil {
				continue
			}
			c.queue.PutNowait(msg.Header.Sequence, enc)
		}
	}
}

func binaryPutErrno(data []byte, errno int32) {
	binary.NativeEndian.PutUint32(data[:4], uint32(errno))
}

// decodeReply unmarshals a queued frame and, for NLMSG_ERROR, sets
// Message.Err from the errno (the queue carries bytes, so the Err that
// Parse attached in the read loop does not survive the trip).
func decodeReply(raw []byte) (nlmsg.Message, error) {
	var reply nlmsg.Message
	if err := reply.UnmarshalBinary(raw); err != nil {
		return reply, err
	}
	if reply.Header.Type == nlmsg.Error && len(reply.Data) >= 4 {
		if code := int32(binary.NativeEndian.Uint32(reply.Data[:4])); code != 0 {
			nlerrors.AttachNetlinkError(&reply, -code)
		}
	}
	return reply, nil
}

func (c *Conn) handleReadError(err error) {
	klog.Errorf("netlinksock: read loop exiting: %v", err)
	// Synthesize an ECONNRESET NLMSG_ERROR so blocked Execute/Dump callers
	// wake with an error instead of hanging (spec §4.3/§4.4).
	data := make([]byte, 4+16)
	binaryPutErrno(data, -int32(unix.ECONNRESET))
	errMsg := nlmsg.Message{
		Header: nlmsg.Header{Type: nlmsg.Error, Flags: 0, Sequence: 0, PID: c.pid},
		Data:   data,
	}
	enc, _ := errMsg.MarshalBinary()
	c.queue.ConnReset(enc)
	c.queue.Close()
}

// Close shuts down the read loop and releases the socket fd. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	err := unix.Close(c.fd)
	c.queue.Close()
	<-c.readDone
	return err
}

// send writes msg to the kernel, filling in PID and a fresh sequence number
// if msg.Header.Sequence is zero. It returns the sequence number used.
func (c *Conn) send(msg nlmsg.Message) (uint32, error) {
	if msg.Header.Sequence == 0 {
		msg.Header.Sequence = c.pool.next()
	}
	msg.Header.PID = c.pid
	c.queue.EnsureTag(msg.Header.Sequence)
	enc, err := msg.MarshalBinary()
	if err != nil {
		return 0, errors.Wrap(err, "netlinksock: marshal request")
	}
	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Sendto(c.fd, enc, 0, sa); err != nil {
		c.queue.FreeTag(msg.Header.Sequence)
		return 0, errors.Wrap(err, "netlinksock: sendto")
	}
	return msg.Header.Sequence, nil
}

// Execute sends a single request and blocks for exactly one reply, freeing
// the sequence's queue afterward. It is the non-dump half of spec §4.5.
func (c *Conn) Execute(ctx context.Context, msg nlmsg.Message) (nlmsg.Message, error) {
	msg.Header.Flags |= nlmsg.Request
	seq, err := c.send(msg)
	if err != nil {
		return nlmsg.Message{}, err
	}
	defer c.queue.FreeTag(seq)

	raw, err := c.queue.Get(ctx, seq)
	if err != nil {
		return nlmsg.Message{}, err
	}
	if raw == nil {
		return nlmsg.Message{}, fmt.Errorf("netlinksock: connection closed while awaiting reply to sequence %d", seq)
	}
	reply, err := decodeReply(raw)
	if err != nil {
		return nlmsg.Message{}, err
	}
	if reply.Err != nil {
		return reply, reply.Err
	}
	return reply, nil
}

// Dump sends msg with NLM_F_DUMP and lazily yields every reply message up
// to (not including) the terminating NLMSG_DONE. Stopping iteration early
// frees the sequence immediately; spec §4.5's DumpInterrupted, like any
// other error, is yielded as the error half of the final pair.
func (c *Conn) Dump(ctx context.Context, msg nlmsg.Message) func(func(nlmsg.Message, error) bool) {
	return func(yield func(nlmsg.Message, error) bool) {
		msg.Header.Flags |= nlmsg.Request | nlmsg.Dump
		seq, err := c.send(msg)
		if err != nil {
			yield(nlmsg.Message{}, err)
			return
		}
		defer c.queue.FreeTag(seq)
		for {
			raw, err := c.queue.Get(ctx, seq)
			if err != nil {
				yield(nlmsg.Message{}, err)
				return
			}
			if raw == nil {
				yield(nlmsg.Message{}, fmt.Errorf("netlinksock: connection closed mid-dump for sequence %d", seq))
				return
			}
			reply, err := decodeReply(raw)
			if err != nil {
				yield(nlmsg.Message{}, err)
				return
			}
			if reply.Header.Type == nlmsg.Done {
				if reply.Header.Flags&nlmsg.DumpInterrupted != 0 {
					yield(nlmsg.Message{}, &nlerrors.DumpInterrupted{Sequence: seq})
				}
				return
			}
			if reply.Err != nil {
				yield(reply, reply.Err)
				return
			}
			if !yield(reply, nil) {
				return
			}
		}
	}
}
