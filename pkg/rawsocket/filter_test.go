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

package rawsocket

import (
	"encoding/binary"
	"testing"

	"golang.org/x/net/bpf"
)

func ipv4UDPFrame(dstPort uint16, moreFragments bool) []byte {
	eth := make([]byte, 14)
	binary.BigEndian.PutUint16(eth[12:14], 0x0800)
	ip := make([]byte, 20)
	ip[0] = 0x45 // version 4, IHL 5 (20 bytes, no options)
	if moreFragments {
		binary.BigEndian.PutUint16(ip[6:8], 0x2000)
	}
	ip[9] = 17 // UDP
	udp := make([]byte, 8)
	binary.BigEndian.PutUint16(udp[0:2], 12345)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	return append(append(eth, ip...), udp...)
}

func vlanIPv4UDPFrame(vlanID, dstPort uint16) []byte {
	hdr := make([]byte, 18)
	binary.BigEndian.PutUint16(hdr[12:14], 0x8100)
	binary.BigEndian.PutUint16(hdr[14:16], vlanID&0x0fff)
	binary.BigEndian.PutUint16(hdr[16:18], 0x0800)
	ip := make([]byte, 20)
	ip[0] = 0x45
	ip[9] = 17
	udp := make([]byte, 8)
	binary.BigEndian.PutUint16(udp[0:2], 12345)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	return append(append(hdr, ip...), udp...)
}

func runFilter(t *testing.T, prog []bpf.Instruction, frame []byte) int {
	t.Helper()
	vm, err := bpf.NewVM(prog)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	n, err := vm.Run(frame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return n
}

func TestNonVLANFilterAcceptsMatchingPort(t *testing.T) {
	prog := DHCPFilter(68, 0)
	if n := runFilter(t, prog, ipv4UDPFrame(68, false)); n == 0 {
		t.Error("frame to port 68 was dropped, want accepted")
	}
}

func TestNonVLANFilterRejectsOtherPort(t *testing.T) {
	prog := DHCPFilter(68, 0)
	if n := runFilter(t, prog, ipv4UDPFrame(53, false)); n != 0 {
		t.Error("frame to port 53 was accepted, want dropped")
	}
}

func TestNonVLANFilterRejectsFragments(t *testing.T) {
	prog := DHCPFilter(68, 0)
	if n := runFilter(t, prog, ipv4UDPFrame(68, true)); n != 0 {
		t.Error("fragmented frame was accepted, want dropped")
	}
}

func TestNonVLANFilterRejectsTaggedFrames(t *testing.T) {
	prog := DHCPFilter(68, 0)
	if n := runFilter(t, prog, vlanIPv4UDPFrame(10, 68)); n != 0 {
		t.Error("802.1Q-tagged frame accepted by a non-VLAN filter, want dropped")
	}
}

func TestVLANFilterAcceptsMatchingVIDAndPort(t *testing.T) {
	prog := DHCPFilter(68, 10)
	if n := runFilter(t, prog, vlanIPv4UDPFrame(10, 68)); n == 0 {
		t.Error("tagged frame with matching VID/port was dropped, want accepted")
	}
}

func TestVLANFilterRejectsWrongVID(t *testing.T) {
	prog := DHCPFilter(68, 10)
	if n := runFilter(t, prog, vlanIPv4UDPFrame(20, 68)); n != 0 {
		t.Error("frame with mismatched VID was accepted, want dropped")
	}
}

func TestVLANFilterRejectsUntaggedFrames(t *testing.T) {
	prog := DHCPFilter(68, 10)
	if n := runFilter(t, prog, ipv4UDPFrame(68, false)); n != 0 {
		t.Error("untagged frame was accepted by a VLAN-aware filter, want dropped")
	}
}
