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

import "golang.org/x/net/bpf"

// acceptSnaplen is the conventional "accept the whole frame" return value
// used by libpcap-generated programs (262144, an upper bound no real
// frame reaches).
const acceptSnaplen = 0x40000

// DHCPFilter builds the classic BPF program described by the kernel
// interface contract: accept only UDPv4 frames addressed to clientPort,
// dropping fragments, and -- when vlanID is non-zero -- requiring an
// 802.1Q tag carrying that VID; when vlanID is zero the plain IPv4
// ethertype check already rejects every 802.1Q-tagged frame, so a
// non-VLAN device needs no extra instructions to reject tagged traffic.
// Ported from the "udp dst port N" program tcpdump/libpcap compile for a
// physical interface, which is where the IHL-dependent X-register offset
// trick (ldx 4*([off]&0xf)) for a variable-length IP header comes from.
func DHCPFilter(clientPort uint16, vlanID uint16) []bpf.Instruction {
	if vlanID == 0 {
		return nonVLANFilter(clientPort)
	}
	return vlanFilter(clientPort, vlanID)
}

// nonVLANFilter assumes an untagged Ethernet frame: ethertype at 12,
// IPv4 header starting at 14.
func nonVLANFilter(clientPort uint16) []bpf.Instruction {
	const drop = 10
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2}, // 0: ethertype
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipTrue: 0, SkipFalse: drop - 2}, // 1: IPv4?
		bpf.LoadAbsolute{Off: 23, Size: 1},                                             // 2: IP protocol
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 17, SkipTrue: 0, SkipFalse: drop - 4},     // 3: UDP?
		bpf.LoadAbsolute{Off: 20, Size: 2},                                             // 4: flags+frag offset
		bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x3fff, SkipTrue: drop - 6, SkipFalse: 0}, // 5: fragment?
		bpf.LoadMemShift{Off: 14},          // 6: X = IP header length
		bpf.LoadIndirect{Off: 16, Size: 2}, // 7: UDP dst port ([X+14]+2)
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(clientPort), SkipTrue: 0, SkipFalse: drop - 9}, // 8
		bpf.RetConstant{Val: acceptSnaplen}, // 9: accept
		bpf.RetConstant{Val: 0},             // 10: drop
	}
}

// vlanFilter assumes a single 802.1Q tag: TPID at 12 (checked equal to
// 0x8100), TCI at 14 (low 12 bits are the VID), inner ethertype at 16,
// IPv4 header starting at 18.
func vlanFilter(clientPort, vlanID uint16) []bpf.Instruction {
	const drop = 15
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2}, // 0: TPID
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x8100, SkipTrue: 0, SkipFalse: drop - 2}, // 1: tagged?
		bpf.LoadAbsolute{Off: 14, Size: 2},                                             // 2: TCI
		bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: 0x0fff},                               // 3: VID
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(vlanID), SkipTrue: 0, SkipFalse: drop - 5}, // 4: VID matches?
		bpf.LoadAbsolute{Off: 16, Size: 2},                                             // 5: inner ethertype
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipTrue: 0, SkipFalse: drop - 7}, // 6: IPv4?
		bpf.LoadAbsolute{Off: 27, Size: 1},                                             // 7: IP protocol
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 17, SkipTrue: 0, SkipFalse: drop - 9},     // 8: UDP?
		bpf.LoadAbsolute{Off: 24, Size: 2},                                             // 9: flags+frag offset
		bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x3fff, SkipTrue: drop - 11, SkipFalse: 0}, // 10: fragment?
		bpf.LoadMemShift{Off: 18},          // 11: X = inner IP header length
		bpf.LoadIndirect{Off: 20, Size: 2}, // 12: UDP dst port ([X+18]+2)
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(clientPort), SkipTrue: 0, SkipFalse: drop - 14}, // 13
		bpf.RetConstant{Val: acceptSnaplen}, // 14: accept
		bpf.RetConstant{Val: 0},             // 15: drop
	}
}
