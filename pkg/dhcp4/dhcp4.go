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

// Package dhcp4 encodes and decodes the full Ethernet→IPv4→UDP→BOOTP→DHCP
// options stack into a single frame (spec §4.8), since pkg/dhcpclient
// speaks to a not-yet-configured interface over pkg/rawsocket rather than a
// UDP socket. The BOOTP/option layer is ported from the driver package's
// own hand-rolled DHCPPacket codec; the Ethernet/IPv4/UDP encapsulation
// below it is new, since that version handed its payload straight to a
// net.PacketConn.
package dhcp4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"k8s.io/klog/v2"
)

// BOOTP op codes.
const (
	OpBootRequest = 1
	OpBootReply   = 2
)

// Hardware address type/length for Ethernet.
const (
	HtypeEthernet = 1
	HlenEthernet  = 6
)

// MessageType is DHCP option 53's value (RFC 2131 table 2).
type MessageType uint8

const (
	Discover MessageType = 1
	Offer    MessageType = 2
	Request  MessageType = 3
	Decline  MessageType = 4
	Ack      MessageType = 5
	Nak      MessageType = 6
	Release  MessageType = 7
	Inform   MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case Discover:
		return "DISCOVER"
	case Offer:
		return "OFFER"
	case Request:
		return "REQUEST"
	case Decline:
		return "DECLINE"
	case Ack:
		return "ACK"
	case Nak:
		return "NAK"
	case Release:
		return "RELEASE"
	case Inform:
		return "INFORM"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// DHCP option codes used by this package (RFC 2132).
const (
	OptPad               = 0
	OptSubnetMask        = 1
	OptRouter            = 3
	OptNameServer        = 6
	OptRequestedIP       = 50
	OptLeaseTime         = 51
	OptMessageType       = 53
	OptServerID          = 54
	OptParameterList     = 55
	OptRenewalTime       = 58
	OptRebindingTime     = 59
	OptEnd               = 255
)

const magicCookie uint32 = 0x63825363

const ethTypeIPv4 = 0x0800
const ipProtoUDP = 17

const (
	ClientPort = 68
	ServerPort = 67
)

// Option is one DHCP option TLV.
type Option struct {
	Code  uint8
	Value []byte
}

// Message is a fully-decoded BOOTP/DHCP packet, independent of the
// Ethernet/IPv4/UDP layers that carried it.
type Message struct {
	Op      uint8
	Htype   uint8
	Hlen    uint8
	Hops    uint8
	Xid     uint32
	Secs    uint16
	Flags   uint16
	Ciaddr  net.IP
	Yiaddr  net.IP
	Siaddr  net.IP
	Giaddr  net.IP
	Chaddr  net.HardwareAddr
	Sname   [64]byte
	File    [128]byte
	Options []Option
}

// TruncatedError names the field that ran out of buffer during decode and
// how many more bytes it needed, per spec §4.8's "structured error".
type TruncatedError struct {
	Field string
	Need  int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("dhcp4: truncated frame decoding %s: need %d more bytes", e.Field, e.Need)
}

// GetOption returns the raw value of option code, or nil if absent.
func (m *Message) GetOption(code uint8) []byte {
	for _, o := range m.Options {
		if o.Code == code {
			return o.Value
		}
	}
	return nil
}

// Type returns the decoded message type (option 53), or 0 if absent.
func (m *Message) Type() MessageType {
	v := m.GetOption(OptMessageType)
	if len(v) != 1 {
		return 0
	}
	return MessageType(v[0])
}

// SetOption replaces or appends an option.
func (m *Message) SetOption(code uint8, value []byte) {
	for i, o := range m.Options {
		if o.Code == code {
			m.Options[i].Value = value
			return
		}
	}
	m.Options = append(m.Options, Option{Code: code, Value: value})
}

func ip4(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return net.IPv4zero.To4()
}

// MarshalBOOTP encodes the fixed BOOTP fields and options, magic cookie
// included, terminated by option 255.
func (m *Message) MarshalBOOTP() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(m.Op)
	buf.WriteByte(m.Htype)
	buf.WriteByte(m.Hlen)
	buf.WriteByte(m.Hops)
	binary.Write(buf, binary.BigEndian, m.Xid)
	binary.Write(buf, binary.BigEndian, m.Secs)
	binary.Write(buf, binary.BigEndian, m.Flags)
	buf.Write(ip4(m.Ciaddr))
	buf.Write(ip4(m.Yiaddr))
	buf.Write(ip4(m.Siaddr))
	buf.Write(ip4(m.Giaddr))

	chaddr := make([]byte, 16)
	copy(chaddr, m.Chaddr)
	buf.Write(chaddr)
	buf.Write(m.Sname[:])
	buf.Write(m.File[:])

	binary.Write(buf, binary.BigEndian, magicCookie)
	for _, opt := range m.Options {
		if opt.Code == OptPad || opt.Code == OptEnd {
			continue
		}
		buf.WriteByte(opt.Code)
		buf.WriteByte(byte(len(opt.Value)))
		buf.Write(opt.Value)
	}
	buf.WriteByte(OptEnd)
	return buf.Bytes()
}

// UnmarshalBOOTP decodes a BOOTP/DHCP payload (everything after the UDP
// header). A malformed option length terminates option parsing but keeps
// whatever was decoded so far, per spec §4.8's decoder-robustness rule.
func UnmarshalBOOTP(data []byte) (*Message, error) {
	const fixedLen = 236 // up to and including File, before the cookie
	if len(data) < fixedLen+4 {
		return nil, &TruncatedError{Field: "bootp header", Need: fixedLen + 4 - len(data)}
	}
	m := &Message{
		Op:     data[0],
		Htype:  data[1],
		Hlen:   data[2],
		Hops:   data[3],
		Xid:    binary.BigEndian.Uint32(data[4:8]),
		Secs:   binary.BigEndian.Uint16(data[8:10]),
		Flags:  binary.BigEndian.Uint16(data[10:12]),
		Ciaddr: net.IP(append([]byte(nil), data[12:16]...)),
		Yiaddr: net.IP(append([]byte(nil), data[16:20]...)),
		Siaddr: net.IP(append([]byte(nil), data[20:24]...)),
		Giaddr: net.IP(append([]byte(nil), data[24:28]...)),
	}
	hlen := int(m.Hlen)
	if hlen > 16 {
		hlen = 16
	}
	m.Chaddr = net.HardwareAddr(append([]byte(nil), data[28:28+hlen]...))
	copy(m.Sname[:], data[44:108])
	copy(m.File[:], data[108:236])

	cookie := binary.BigEndian.Uint32(data[236:240])
	if cookie != magicCookie {
		return nil, fmt.Errorf("dhcp4: bad magic cookie %#x", cookie)
	}

	rest := data[240:]
	for len(rest) > 0 {
		code := rest[0]
		rest = rest[1:]
		if code == OptPad {
			continue
		}
		if code == OptEnd {
			break
		}
		if len(rest) < 1 {
			klog.Errorf("dhcp4: option %d truncated length byte, stopping option parse", code)
			break
		}
		l := int(rest[0])
		rest = rest[1:]
		if len(rest) < l {
			klog.Errorf("dhcp4: option %d declares length %d but only %d bytes remain, stopping option parse", code, l, len(rest))
			break
		}
		m.Options = append(m.Options, Option{Code: code, Value: append([]byte(nil), rest[:l]...)})
		rest = rest[l:]
	}
	return m, nil
}
