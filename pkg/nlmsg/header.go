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

// Package nlmsg implements the netlink wire codec: fixed headers, the TLV
// attribute tree, and the policy tables used to decode them.
package nlmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const headerLen = 16

// HeaderFlags are the generic NLM_F_* flags carried in a Header.
type HeaderFlags uint16

const (
	Request         HeaderFlags = 0x1
	Multi           HeaderFlags = 0x2
	Acknowledge     HeaderFlags = 0x4
	Echo            HeaderFlags = 0x8
	DumpInterrupted HeaderFlags = 0x10
	DumpFiltered    HeaderFlags = 0x20

	Root   HeaderFlags = 0x100
	Match  HeaderFlags = 0x200
	Atomic HeaderFlags = 0x400
	Dump   HeaderFlags = Root | Match

	Replace HeaderFlags = 0x100
	Excl    HeaderFlags = 0x200
	Create  HeaderFlags = 0x400
	Append  HeaderFlags = 0x800

	Capped          HeaderFlags = 0x100
	AcknowledgeTLVs HeaderFlags = 0x200
)

// HeaderType is the generic message type field (NLMSG_*). Protocol families
// layer their own type ranges (RTM_*, IPSET_CMD_*, ...) on top of the four
// reserved control values below.
type HeaderType uint16

const (
	Noop    HeaderType = 0x1
	Error   HeaderType = 0x2
	Done    HeaderType = 0x3
	Overrun HeaderType = 0x4
)

func (t HeaderType) String() string {
	switch t {
	case Noop:
		return "noop"
	case Error:
		return "error"
	case Done:
		return "done"
	case Overrun:
		return "overrun"
	default:
		return fmt.Sprintf("type(%d)", uint16(t))
	}
}

// Header is the 16-byte struct nlmsghdr. Field order and widths must match
// the kernel ABI exactly: Length, Type, Flags, Sequence, PID.
type Header struct {
	Length   uint32
	Type     HeaderType
	Flags    HeaderFlags
	Sequence uint32
	PID      uint32
}

// Message is a decoded or to-be-encoded netlink message: a Header plus the
// raw body bytes that follow it. Err carries a non-fatal decode or
// netlink-level failure attached during Marshal parsing (spec §4.1/§4.2
// "error policy"); it is either a *DecodeError or, for NLMSG_ERROR
// replies, a value implementing error from package nlerrors.
type Message struct {
	Header Header
	Data   []byte
	Err    error
}

var (
	errShortMessage     = errors.New("nlmsg: buffer shorter than header")
	errIncorrectLength  = errors.New("nlmsg: header length does not match buffer")
	errUnalignedMessage = errors.New("nlmsg: buffer is not 4-byte aligned")
)

func align(n int) int {
	return (n + 3) &^ 3
}

// MarshalBinary encodes the header and appends m.Data, padding the result
// to a 4-byte boundary as required by NLA alignment rules.
func (m Message) MarshalBinary() ([]byte, error) {
	unpadded := headerLen + len(m.Data)
	b := make([]byte, align(unpadded))
	binary.NativeEndian.PutUint32(b[0:4], uint32(unpadded))
	binary.NativeEndian.PutUint16(b[4:6], uint16(m.Header.Type))
	binary.NativeEndian.PutUint16(b[6:8], uint16(m.Header.Flags))
	binary.NativeEndian.PutUint32(b[8:12], m.Header.Sequence)
	binary.NativeEndian.PutUint32(b[12:16], m.Header.PID)
	copy(b[headerLen:], m.Data)
	return b, nil
}

// UnmarshalBinary decodes a single message from b. b must contain exactly
// one (aligned) message; use marshal.Parse to split a multi-message buffer.
func (m *Message) UnmarshalBinary(b []byte) error {
	if len(b) < headerLen {
		return errShortMessage
	}
	length := binary.NativeEndian.Uint32(b[0:4])
	if int(length) > len(b) {
		return errIncorrectLength
	}
	if align(len(b)) != len(b) {
		return errUnalignedMessage
	}
	m.Header.Length = length
	m.Header.Type = HeaderType(binary.NativeEndian.Uint16(b[4:6]))
	m.Header.Flags = HeaderFlags(binary.NativeEndian.Uint16(b[6:8]))
	m.Header.Sequence = binary.NativeEndian.Uint32(b[8:12])
	m.Header.PID = binary.NativeEndian.Uint32(b[12:16])
	end := int(length)
	if end < headerLen {
		return errIncorrectLength
	}
	m.Data = b[headerLen:end]
	return nil
}
