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

package dhcp4

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// ip4Transform normalizes net.IP fields for cmp.Diff: a nil Ciaddr and an
// explicit 0.0.0.0 both decode to the same 4 zero bytes on the wire, so
// the comparison should treat them as equal.
var ip4Transform = cmp.Transformer("ip4", func(ip net.IP) [4]byte {
	var b [4]byte
	copy(b[:], ip.To4())
	return b
})

func discoverMessage(xid uint32, mac net.HardwareAddr) *Message {
	m := &Message{
		Op:     OpBootRequest,
		Htype:  HtypeEthernet,
		Hlen:   HlenEthernet,
		Xid:    xid,
		Flags:  0x8000,
		Chaddr: mac,
	}
	m.SetOption(OptMessageType, []byte{byte(Discover)})
	m.SetOption(OptParameterList, []byte{OptSubnetMask, OptRouter, OptLeaseTime})
	return m
}

func TestMarshalUnmarshalBOOTPRoundTrip(t *testing.T) {
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	orig := discoverMessage(0x22334455, mac)

	encoded := orig.MarshalBOOTP()
	decoded, err := UnmarshalBOOTP(encoded)
	if err != nil {
		t.Fatalf("UnmarshalBOOTP: %v", err)
	}

	if diff := cmp.Diff(orig, decoded, ip4Transform); diff != "" {
		t.Errorf("UnmarshalBOOTP(MarshalBOOTP(orig)) mismatch (-want +got):\n%s", diff)
	}
	if decoded.Type() != Discover {
		t.Errorf("Type() = %v, want DISCOVER", decoded.Type())
	}
	if got := decoded.GetOption(OptParameterList); len(got) != 3 {
		t.Errorf("parameter list = %v, want 3 entries", got)
	}
}

func TestUnmarshalBOOTPTruncated(t *testing.T) {
	_, err := UnmarshalBOOTP(make([]byte, 10))
	if err == nil {
		t.Fatal("UnmarshalBOOTP(short buffer) = nil error, want TruncatedError")
	}
	var trunc *TruncatedError
	if _, ok := err.(*TruncatedError); !ok {
		t.Errorf("err = %T, want *TruncatedError (%v)", err, trunc)
	}
}

func TestUnmarshalBOOTPStopsAtBadOptionLength(t *testing.T) {
	mac := net.HardwareAddr{0, 0, 0, 0, 0, 1}
	m := discoverMessage(1, mac)
	encoded := m.MarshalBOOTP()

	// Corrupt the length byte of the first option after the cookie (offset
	// 240 is the option code, 241 is its declared length).
	encoded[241] = 0xff

	decoded, err := UnmarshalBOOTP(encoded)
	if err != nil {
		t.Fatalf("UnmarshalBOOTP: %v", err)
	}
	if len(decoded.Options) != 0 {
		t.Errorf("Options = %v, want none decoded after a bad length byte", decoded.Options)
	}
}

func TestFrameMarshalParseRoundTrip(t *testing.T) {
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	msg := discoverMessage(0x22334455, mac)
	f := &Frame{
		SrcMAC:  mac,
		SrcIP:   net.IPv4zero,
		DstIP:   net.IPv4bcast,
		SrcPort: ClientPort,
		DstPort: ServerPort,
		Message: msg,
	}

	encoded := f.Marshal()
	if got := net.HardwareAddr(encoded[0:6]).String(); got != broadcastMAC.String() {
		t.Errorf("dst MAC = %v, want broadcast", got)
	}

	decoded, err := ParseFrame(encoded)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if decoded.SrcPort != ClientPort || decoded.DstPort != ServerPort {
		t.Errorf("ports = %d/%d, want %d/%d", decoded.SrcPort, decoded.DstPort, ClientPort, ServerPort)
	}
	if decoded.Message.Xid != msg.Xid {
		t.Errorf("Xid = %#x, want %#x", decoded.Message.Xid, msg.Xid)
	}
	if decoded.Message.Type() != Discover {
		t.Errorf("Type() = %v, want DISCOVER", decoded.Message.Type())
	}
}
