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

import "reflect"

// Kind is the closed set of attribute decoder kinds named in spec §3's
// nla_map: nested, string, asciiz, uintN, ipaddr, hex, or a custom func.
type Kind int

const (
	KindNested Kind = iota
	KindString
	KindAsciiz
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindIPAddr
	KindHardwareAddr
	KindHex
	KindCustom
)

// AttrSpec describes how to decode one attribute type: its symbolic name,
// its Kind, and (for KindNested) the child Policy to recurse into.
type AttrSpec struct {
	Name   string
	Kind   Kind
	Nested *Policy
	// Decode overrides default Kind-based decoding; used for KindCustom.
	Decode func(*AttributeDecoder) (any, error)
}

// Policy is the nla_map of spec §3: attribute identifier to AttrSpec.
// Unknown identifiers are not an error -- they decode to KindHex and are
// retained so callers can round-trip unrecognized vendor TLVs.
type Policy map[uint16]AttrSpec

// Attr is one decoded attribute: its symbolic name (or "" if unknown to
// the policy) and its typed value.
type Attr struct {
	Type  uint16
	Name  string
	Kind  Kind
	Value any
}

// Decode walks b as a TLV stream using p to decide how to interpret each
// attribute. A per-attribute failure is recorded on the returned error
// slice but does not stop the walk (spec §4.1).
func (p Policy) Decode(b []byte) ([]Attr, []error) {
	ad, _ := NewAttributeDecoder(b)
	var attrs []Attr
	var errs []error
	for ad.Next() {
		typ := ad.Type()
		spec, ok := p[typ]
		if !ok {
			attrs = append(attrs, Attr{Type: typ, Kind: KindHex, Value: append([]byte(nil), ad.Bytes()...)})
			continue
		}
		a := Attr{Type: typ, Name: spec.Name, Kind: spec.Kind}
		switch spec.Kind {
		case KindNested:
			var children []Attr
			if spec.Nested != nil {
				var childErrs []error
				children, childErrs = spec.Nested.Decode(ad.Bytes())
				errs = append(errs, childErrs...)
			}
			a.Value = children
		case KindString, KindAsciiz:
			a.Value = ad.String()
		case KindUint8:
			a.Value = ad.Uint8()
		case KindUint16:
			a.Value = ad.Uint16()
		case KindUint32:
			a.Value = ad.Uint32()
		case KindUint64:
			a.Value = ad.Uint64()
		case KindIPAddr:
			a.Value = ad.IP()
		case KindHardwareAddr:
			a.Value = ad.HardwareAddr()
		case KindCustom:
			if spec.Decode != nil {
				v, err := spec.Decode(ad)
				if err != nil {
					errs = append(errs, err)
				}
				a.Value = v
			}
		default:
			a.Value = append([]byte(nil), ad.Bytes()...)
		}
		attrs = append(attrs, a)
	}
	if err := ad.Err(); err != nil {
		errs = append(errs, err)
	}
	return attrs, errs
}

// Equal reports whether two attribute lists are equal after normalizing
// for order -- testable property 1's round-trip check compares decoded
// output this way rather than requiring byte-identical re-encoding order.
func Equal(a, b []Attr) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make([]bool, len(b))
	for _, av := range a {
		found := false
		for i, bv := range b {
			if seen[i] {
				continue
			}
			if av.Type == bv.Type && equalValue(av.Value, bv.Value) {
				seen[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
