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

// Package marshal implements the frame-level parser of spec §4.2: it splits
// a byte buffer into netlink messages and dispatches each to a per-type
// decoder registered in a Marshal's policy registry.
package marshal

import (
	"encoding/binary"
	"iter"
	"sync"

	"github.com/google/netlinkgo/pkg/nlerrors"
	"github.com/google/netlinkgo/pkg/nlmsg"

	"k8s.io/klog/v2"
)

// ClassDecoder further decodes a Message's Data given its type; protocol
// subclasses (RTNL, netfilter, genetlink) register one per message type.
type ClassDecoder func(nlmsg.Message) nlmsg.Message

// Callback optionally consumes a message during parsing. Returning true
// drops the message from the yielded sequence (spec §4.2 step 6). A panic
// inside the callback is recovered and logged so marshalling continues.
type Callback func(nlmsg.Message) bool

// Marshal holds a protocol-family-specific registry of message-type
// decoders. The registry is the one process-wide mutable resource in this
// package (spec §5 "Shared-resource policy") and is guarded by mu.
type Marshal struct {
	mu       sync.RWMutex
	registry map[nlmsg.HeaderType]ClassDecoder
}

// New returns a Marshal with an empty registry; NLMSG_ERROR payloads are
// still turned into Message.Err by Parse itself (see attachError).
func New() *Marshal {
	return &Marshal{registry: make(map[nlmsg.HeaderType]ClassDecoder)}
}

// RegisterPolicy merges cls into the registry, letting a protocol subclass
// (ipset, genetlink, ...) extend the base set of decodable message types.
func (m *Marshal) RegisterPolicy(cls map[nlmsg.HeaderType]ClassDecoder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range cls {
		m.registry[k] = v
	}
}

// UnregisterPolicy removes the given message types from the registry.
func (m *Marshal) UnregisterPolicy(types ...nlmsg.HeaderType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range types {
		delete(m.registry, t)
	}
}

func (m *Marshal) lookup(t nlmsg.HeaderType) (ClassDecoder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.registry[t]
	return d, ok
}

// attachError turns an NLMSG_ERROR message's payload into Message.Err,
// matching spec §3's "Extended ACKs may attach TLV children" handling: a
// non-zero errno becomes a *nlerrors.NetlinkError value, not a header-only
// flag, so callers can type-assert with errors.As.
func attachError(msg *nlmsg.Message) {
	if msg.Header.Type != nlmsg.Error {
		return
	}
	if len(msg.Data) < 4 {
		msg.Err = &nlmsg.DecodeError{Field: "nlmsgerr.error", Needed: 4, Available: len(msg.Data)}
		return
	}
	code := int32(binary.NativeEndian.Uint32(msg.Data[:4]))
	if code == 0 {
		return // ACK, not an error
	}
	nlerrors.AttachNetlinkError(msg, -code)
}

// Parse implements spec §4.2's five-step algorithm as a lazy Go 1.23
// range-over-func sequence: split buf into 16-byte-header-prefixed
// messages, optionally filter by sequence, dispatch to the registered
// class decoder, attach an error object for NLMSG_ERROR, and let cb
// suppress delivery.
func (m *Marshal) Parse(buf []byte, seqFilter *uint32, cb Callback) iter.Seq[nlmsg.Message] {
	return func(yield func(nlmsg.Message) bool) {
		offset := 0
		for offset+16 <= len(buf) {
			var msg nlmsg.Message
			if err := msg.UnmarshalBinary(buf[offset:]); err != nil {
				// length == 0 or length > remaining: treat as truncation, stop.
				return
			}
			consumed := int(msg.Header.Length)
			// messages are 4-byte aligned on the wire
			advance := (consumed + 3) &^ 3
			if advance <= 0 {
				return
			}
			offset += advance

			if seqFilter != nil && msg.Header.Sequence != *seqFilter {
				continue
			}

			if dec, ok := m.lookup(msg.Header.Type); ok {
				msg = dec(msg)
			}
			attachError(&msg)

			if cb != nil {
				if safeCallback(cb, msg) {
					continue
				}
			}

			if !yield(msg) {
				return
			}
		}
	}
}

func safeCallback(cb Callback, msg nlmsg.Message) (drop bool) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("marshal: callback panicked, continuing: %v", r)
			drop = false
		}
	}()
	return cb(msg)
}
