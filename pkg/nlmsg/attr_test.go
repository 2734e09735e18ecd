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

package nlmsg

import (
	"net"
	"testing"
)

func TestAttributeRoundTrip(t *testing.T) {
	ae := NewAttributeEncoder()
	ae.Uint32(1, 42)
	ae.String(2, "eth0")
	ae.IP(3, net.ParseIP("192.168.122.28"))
	ae.Nested(4, func(nae *AttributeEncoder) error {
		nae.Uint8(1, 24)
		return nil
	})
	b, err := ae.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	policy := Policy{
		1: {Name: "IFINDEX", Kind: KindUint32},
		2: {Name: "IFNAME", Kind: KindAsciiz},
		3: {Name: "ADDRESS", Kind: KindIPAddr},
		4: {Name: "NESTED", Kind: KindNested, Nested: &Policy{
			1: {Name: "PREFIXLEN", Kind: KindUint8},
		}},
	}

	attrs, errs := policy.Decode(b)
	if len(errs) != 0 {
		t.Fatalf("unexpected decode errors: %v", errs)
	}
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}
	if attrs[0].Value.(uint32) != 42 {
		t.Errorf("ifindex: got %v", attrs[0].Value)
	}
	if attrs[1].Value.(string) != "eth0" {
		t.Errorf("ifname: got %v", attrs[1].Value)
	}
	ip := attrs[2].Value.(net.IP)
	if !ip.Equal(net.ParseIP("192.168.122.28")) {
		t.Errorf("address: got %v", ip)
	}
}

func TestAttributeDecodeShortBuffer(t *testing.T) {
	policy := Policy{1: {Name: "X", Kind: KindUint32}}
	// type=1, length=8 (claims 4 bytes of value) but buffer only has the header.
	b := []byte{8, 0, 1, 0}
	attrs, errs := policy.Decode(b)
	if len(attrs) != 0 {
		t.Fatalf("expected no attributes from a truncated buffer, got %d", len(attrs))
	}
	if len(errs) == 0 {
		t.Fatalf("expected a decode error")
	}
}

func TestUnknownAttributeRetainedAsHex(t *testing.T) {
	ae := NewAttributeEncoder()
	ae.Uint32(99, 7)
	b, _ := ae.Encode()

	attrs, errs := Policy{}.Decode(b)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(attrs) != 1 || attrs[0].Kind != KindHex {
		t.Fatalf("expected one hex-retained attribute, got %+v", attrs)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := Message{
		Header: Header{Type: 16, Flags: Request | Acknowledge, Sequence: 7, PID: 1234},
		Data:   []byte{1, 2, 3, 4, 5},
	}
	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var got Message
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.Header.Type != m.Header.Type || got.Header.Flags != m.Header.Flags ||
		got.Header.Sequence != m.Header.Sequence || got.Header.PID != m.Header.PID {
		t.Fatalf("header mismatch: got %+v want %+v", got.Header, m.Header)
	}
	if len(got.Data) < 5 {
		t.Fatalf("data truncated: %v", got.Data)
	}
	for i := 0; i < 5; i++ {
		if got.Data[i] != m.Data[i] {
			t.Fatalf("data mismatch at %d: got %d want %d", i, got.Data[i], m.Data[i])
		}
	}
}
