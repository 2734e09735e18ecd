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

func attrString(attrs []nlmsg.Attr, typ uint16) string {
	for _, a := range attrs {
		if a.Type == typ {
			if s, ok := a.Value.(string); ok {
				return s
			}
			if b, ok := a.Value.([]byte); ok {
				return string(b)
			}
		}
	}
	return ""
}

func attrBytesValue(attrs []nlmsg.Attr, typ uint16) []byte {
	for _, a := range attrs {
		if a.Type == typ {
			if b, ok := a.Value.([]byte); ok {
				return b
			}
		}
	}
	return nil
}

func attrUint32(attrs []nlmsg.Attr, typ uint16) uint32 {
	for _, a := range attrs {
		if a.Type == typ {
			if v, ok := a.Value.(uint32); ok {
				return v
			}
			if b, ok := a.Value.([]byte); ok && len(b) >= 4 {
				return binary.NativeEndian.Uint32(b)
			}
		}
	}
	return 0
}

// stripAttr re-encodes raw as a TLV stream with every attribute of type typ
// removed, used so a stored LinkEntry's Attrs blob doesn't duplicate the
// IFLA_IFNAME the entry already tracks as its Name field.
func stripAttr(raw []byte, typ uint16) []byte {
	ad, _ := nlmsg.NewAttributeDecoder(raw)
	enc := nlmsg.NewAttributeEncoder()
	for ad.Next() {
		if ad.Type() == typ {
			continue
		}
		enc.Bytes(ad.TypeFlags(), ad.Bytes())
	}
	b, _ := enc.Encode()
	return b
}
