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

// Package xid implements the DHCP transaction-id scheme of spec §4.10: a
// 28-bit random prefix combined with a 4-bit state suffix, so the receiver
// can confirm a reply both belongs to this client run and matches the
// state the request was sent from, without a side table. Grounded on
// pyroute2/dhcp/xids.py (Xid.random_part, Xid.for_state, Xid.matches).
package xid

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/google/netlinkgo/pkg/dhcp4/fsm"
)

// Xid is a DHCP transaction id: bits [31:4] are a random per-client-run
// prefix, bits [3:0] encode the fsm.State the message carrying it was sent
// from.
type Xid uint32

const stateMask = 0xf

// NewPrefix draws a fresh 28-bit random prefix for one client run.
func NewPrefix() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:]) &^ stateMask
}

// ForState combines prefix with state's low nibble.
func ForState(prefix uint32, state fsm.State) Xid {
	return Xid((prefix &^ stateMask) | uint32(state)&stateMask)
}

// Prefix returns the random portion, masking out the state nibble.
func (x Xid) Prefix() uint32 { return uint32(x) &^ stateMask }

// State returns the state nibble this xid was stamped with.
func (x Xid) State() fsm.State { return fsm.State(uint32(x) & stateMask) }

// Matches reports whether x carries the given client prefix, regardless of
// the state nibble -- used by the receiver to accept a reply to any
// request sent during this client run.
func (x Xid) Matches(prefix uint32) bool { return x.Prefix() == (prefix &^ stateMask) }
