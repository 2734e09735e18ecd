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
	"encoding/binary"
	"net"
)

const (
	// Nested marks an attribute type as containing further attributes.
	Nested uint16 = 0x8000
	// NetByteOrder marks an attribute's payload as big-endian.
	NetByteOrder uint16 = 0x4000
	attrTypeMask uint16 = 0x3fff

	attrHeaderLen = 4
)

// AttributeEncoder builds a TLV chain in the order attributes are appended,
// matching spec §4.1's determinism requirement (callers control order).
type AttributeEncoder struct {
	ByteOrder binary.ByteOrder
	buf       []byte
	err       error
}

// NewAttributeEncoder returns an encoder using native byte order, the
// default for every netlink family this package targets.
func NewAttributeEncoder() *AttributeEncoder {
	return &AttributeEncoder{ByteOrder: binary.NativeEndian}
}

func (e *AttributeEncoder) appendTLV(typ uint16, value []byte) {
	l := attrHeaderLen + len(value)
	hdr := make([]byte, attrHeaderLen)
	binary.NativeEndian.PutUint16(hdr[0:2], uint16(l))
	binary.NativeEndian.PutUint16(hdr[2:4], typ)
	e.buf = append(e.buf, hdr...)
	e.buf = append(e.buf, value...)
	for len(e.buf)%4 != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *AttributeEncoder) Uint8(typ uint16, v uint8)   { e.appendTLV(typ, []byte{v}) }
func (e *AttributeEncoder) Uint16(typ uint16, v uint16) { b := make([]byte, 2); e.ByteOrder.PutUint16(b, v); e.appendTLV(typ, b) }
func (e *AttributeEncoder) Uint32(typ uint16, v uint32) { b := make([]byte, 4); e.ByteOrder.PutUint32(b, v); e.appendTLV(typ, b) }
func (e *AttributeEncoder) Uint64(typ uint16, v uint64) { b := make([]byte, 8); e.ByteOrder.PutUint64(b, v); e.appendTLV(typ, b) }
func (e *AttributeEncoder) String(typ uint16, s string) { e.appendTLV(typ, append([]byte(s), 0)) }
func (e *AttributeEncoder) Bytes(typ uint16, b []byte)  { e.appendTLV(typ, b) }
func (e *AttributeEncoder) IP(typ uint16, ip net.IP) {
	if v4 := ip.To4(); v4 != nil {
		e.appendTLV(typ, v4)
		return
	}
	e.appendTLV(typ, ip.To16())
}
func (e *AttributeEncoder) HardwareAddr(typ uint16, hw net.HardwareAddr) { e.appendTLV(typ, hw) }

// Nested encodes fn's output as the value of a nested (Type|Nested) attribute.
func (e *AttributeEncoder) Nested(typ uint16, fn func(*AttributeEncoder) error) {
	if e.err != nil {
		return
	}
	nae := NewAttributeEncoder()
	if err := fn(nae); err != nil {
		e.err = err
		return
	}
	b, err := nae.Encode()
	if err != nil {
		e.err = err
		return
	}
	e.appendTLV(typ|Nested, b)
}

// Encode returns the accumulated TLV bytes, or the first error recorded by
// a Nested call.
func (e *AttributeEncoder) Encode() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

// AttributeDecoder walks a TLV stream produced by AttributeEncoder (or the
// kernel). Next must be called before each of the accessor methods; a
// malformed attribute records a *DecodeError on Err() without stopping the
// walk of subsequent siblings (spec §4.1).
type AttributeDecoder struct {
	ByteOrder binary.ByteOrder
	b         []byte
	offset    int
	typ       uint16
	value     []byte
	err       error
}

// NewAttributeDecoder does no up-front validation of b and always returns a
// nil error; a malformed attribute ends the walk in Next.
func NewAttributeDecoder(b []byte) (*AttributeDecoder, error) {
	return &AttributeDecoder{ByteOrder: binary.NativeEndian, b: b}, nil
}

// Next advances to the following attribute, returning false at end of
// stream or on an unrecoverable short read.
func (d *AttributeDecoder) Next() bool {
	if d.offset+attrHeaderLen > len(d.b) {
		return false
	}
	length := binary.NativeEndian.Uint16(d.b[d.offset : d.offset+2])
	typ := binary.NativeEndian.Uint16(d.b[d.offset+2 : d.offset+4])
	if int(length) < attrHeaderLen {
		d.err = &DecodeError{Field: "nla.length", Needed: attrHeaderLen, Available: int(length)}
		return false
	}
	end := d.offset + int(length)
	if end > len(d.b) {
		d.err = &DecodeError{Field: "nla.value", Needed: int(length) - attrHeaderLen, Available: len(d.b) - d.offset - attrHeaderLen}
		return false
	}
	d.typ = typ
	d.value = d.b[d.offset+attrHeaderLen : end]
	d.offset = align(end)
	return true
}

// Type returns the current attribute's type, with the Nested/NetByteOrder
// flag bits masked off.
func (d *AttributeDecoder) Type() uint16 { return d.typ & attrTypeMask }

// TypeFlags returns the raw type including the Nested/NetByteOrder bits.
func (d *AttributeDecoder) TypeFlags() uint16 { return d.typ }

func (d *AttributeDecoder) Bytes() []byte { return d.value }

func (d *AttributeDecoder) Uint8() uint8 {
	if len(d.value) < 1 {
		d.err = &DecodeError{Field: "uint8", Needed: 1, Available: len(d.value)}
		return 0
	}
	return d.value[0]
}

func (d *AttributeDecoder) Uint16() uint16 {
	if len(d.value) < 2 {
		d.err = &DecodeError{Field: "uint16", Needed: 2, Available: len(d.value)}
		return 0
	}
	return d.ByteOrder.Uint16(d.value)
}

func (d *AttributeDecoder) Uint32() uint32 {
	if len(d.value) < 4 {
		d.err = &DecodeError{Field: "uint32", Needed: 4, Available: len(d.value)}
		return 0
	}
	return d.ByteOrder.Uint32(d.value)
}

func (d *AttributeDecoder) Uint64() uint64 {
	if len(d.value) < 8 {
		d.err = &DecodeError{Field: "uint64", Needed: 8, Available: len(d.value)}
		return 0
	}
	return d.ByteOrder.Uint64(d.value)
}

func (d *AttributeDecoder) String() string {
	b := d.value
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func (d *AttributeDecoder) IP() net.IP {
	switch len(d.value) {
	case 4, 16:
		ip := make(net.IP, len(d.value))
		copy(ip, d.value)
		return ip
	default:
		d.err = &DecodeError{Field: "ipaddr", Needed: 4, Available: len(d.value)}
		return nil
	}
}

func (d *AttributeDecoder) HardwareAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, len(d.value))
	copy(hw, d.value)
	return hw
}

// Nested re-enters fn with a fresh decoder over the current attribute's
// value, the recursive case of spec §4.1's schema.
func (d *AttributeDecoder) Nested(fn func(*AttributeDecoder) error) error {
	nd, _ := NewAttributeDecoder(d.value)
	if err := fn(nd); err != nil {
		return err
	}
	if nd.err != nil {
		d.err = nd.err
	}
	return nil
}

// Err returns the first decode error recorded while walking, if any.
func (d *AttributeDecoder) Err() error {
	if d.err != nil {
		return d.err
	}
	return nil
}
