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
	"encoding/binary"

	"github.com/google/netlinkgo/pkg/nlmsg"
)

func encodeLink(le *LinkEntry, seq uint32, typ nlmsg.HeaderType) nlmsg.Message {
	hdr := make([]byte, 16)
	binary.NativeEndian.PutUint16(hdr[2:4], le.Type)
	binary.NativeEndian.PutUint32(hdr[4:8], uint32(le.Index))
	binary.NativeEndian.PutUint32(hdr[8:12], le.Flags)
	binary.NativeEndian.PutUint32(hdr[12:16], le.Change)

	enc := nlmsg.NewAttributeEncoder()
	enc.String(iflaIfname, le.Name)
	b, _ := enc.Encode()
	data := append(hdr, b...)
	data = append(data, le.Attrs...)
	return nlmsg.Message{Header: nlmsg.Header{Type: typ, Sequence: seq}, Data: data}
}

func encodeAddr(ae *AddrEntry, seq uint32, typ nlmsg.HeaderType) nlmsg.Message {
	hdr := make([]byte, 8)
	hdr[0], hdr[1], hdr[2], hdr[3] = ae.Family, ae.PrefixLen, ae.Flags, ae.Scope
	binary.NativeEndian.PutUint32(hdr[4:8], uint32(ae.Index))

	enc := nlmsg.NewAttributeEncoder()
	if ae.Address != nil {
		enc.Bytes(ifaAddress, ae.Address)
	}
	if ae.Local != nil {
		enc.Bytes(ifaLocal, ae.Local)
	}
	b, _ := enc.Encode()
	data := append(hdr, b...)
	data = append(data, ae.Attrs...)
	return nlmsg.Message{Header: nlmsg.Header{Type: typ, Sequence: seq}, Data: data}
}

func encodeRoute(re *RouteEntry, seq uint32, typ nlmsg.HeaderType) nlmsg.Message {
	hdr := make([]byte, 12)
	hdr[0], hdr[1], hdr[2], hdr[3] = re.Family, re.DstLen, re.SrcLen, re.Tos
	hdr[4], hdr[5], hdr[6], hdr[7] = re.Table, re.Protocol, re.Scope, re.Type
	binary.NativeEndian.PutUint32(hdr[8:12], re.Flags)

	enc := nlmsg.NewAttributeEncoder()
	if re.Dst != nil {
		enc.Bytes(rtaDst, re.Dst)
	}
	if re.Gateway != nil {
		enc.Bytes(rtaGateway, re.Gateway)
	}
	if re.OutIndex != 0 {
		enc.Uint32(rtaOif, uint32(re.OutIndex))
	}
	b, _ := enc.Encode()
	data := append(hdr, b...)
	data = append(data, re.Attrs...)
	return nlmsg.Message{Header: nlmsg.Header{Type: typ, Sequence: seq}, Data: data}
}

func encodeNeigh(ne *NeighEntry, seq uint32, typ nlmsg.HeaderType) nlmsg.Message {
	hdr := make([]byte, 8)
	hdr[0] = ne.Family
	binary.NativeEndian.PutUint16(hdr[2:4], ne.State)
	binary.NativeEndian.PutUint32(hdr[4:8], uint32(ne.Index))

	enc := nlmsg.NewAttributeEncoder()
	if ne.Dst != nil {
		enc.Bytes(ndaDst, ne.Dst)
	}
	if ne.LLAddr != nil {
		enc.Bytes(ndaLLAddr, ne.LLAddr)
	}
	b, _ := enc.Encode()
	data := append(hdr, b...)
	return nlmsg.Message{Header: nlmsg.Header{Type: typ, Sequence: seq}, Data: data}
}
