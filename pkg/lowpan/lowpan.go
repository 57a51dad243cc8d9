// Copyright 2024 The sixlowpan Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lowpan provides the types shared by the 6LoWPAN adaptation
// layer: IPv6 and IEEE 802.15.4 link-layer addresses, the error space
// used by the compression and fragmentation engines, and the clock
// interface timeouts are measured against.
//
// The layer itself lives in sixlowpan.dev/sixlowpan/pkg/lowpan/stack; the
// wire encodings live in sixlowpan.dev/sixlowpan/pkg/lowpan/header.
package lowpan

import (
	"fmt"
	"time"
)

// Error represents an error in the lowpan error space. Using a special type
// ensures that errors outside of this space are not accidentally introduced.
type Error struct {
	msg string

	ignoreStats bool
}

// String implements fmt.Stringer.String.
func (e *Error) String() string {
	if e == nil {
		return "<nil>"
	}
	return e.msg
}

// IgnoreStats indicates whether this error type should be included in
// failure counts kept by the caller.
func (e *Error) IgnoreStats() bool {
	return e.ignoreStats
}

// Errors that can be returned by the adaptation layer.
var (
	ErrBusy              = &Error{msg: "engine is busy", ignoreStats: true}
	ErrMalformedHeader   = &Error{msg: "header is malformed"}
	ErrUnknownEncoding   = &Error{msg: "unsupported header encoding"}
	ErrNoBufferSpace     = &Error{msg: "no buffer space available"}
	ErrBadBuffer         = &Error{msg: "bad buffer"}
	ErrMessageTooLong    = &Error{msg: "message too long"}
	ErrNoContext         = &Error{msg: "no matching compression context"}
	ErrFragmentOverlap   = &Error{msg: "fragment overlaps received data"}
	ErrTimeout           = &Error{msg: "reassembly timed out"}
	ErrNoSlotAvailable   = &Error{msg: "no reassembly slot available", ignoreStats: true}
	ErrInvalidParameters = &Error{msg: "invalid parameters"}
)

const (
	// IPv6AddressSize is the size, in bytes, of an IPv6 address.
	IPv6AddressSize = 16

	// IIDSize is the size, in bytes, of an interface identifier, the low
	// 64 bits of an IPv6 address.
	IIDSize = 8
)

// Address is a fixed-size IPv6 address. The adaptation layer never
// allocates, so addresses are arrays rather than slices.
type Address [IPv6AddressSize]byte

// AddressFromSlice builds an Address from the first 16 bytes of b.
func AddressFromSlice(b []byte) Address {
	var a Address
	copy(a[:], b)
	return a
}

// String implements fmt.Stringer.String.
func (a Address) String() string {
	return fmt.Sprintf("%x:%x:%x:%x:%x:%x:%x:%x",
		uint16(a[0])<<8|uint16(a[1]), uint16(a[2])<<8|uint16(a[3]),
		uint16(a[4])<<8|uint16(a[5]), uint16(a[6])<<8|uint16(a[7]),
		uint16(a[8])<<8|uint16(a[9]), uint16(a[10])<<8|uint16(a[11]),
		uint16(a[12])<<8|uint16(a[13]), uint16(a[14])<<8|uint16(a[15]))
}

// IsUnspecified returns true if a is the unspecified address ::.
func (a Address) IsUnspecified() bool {
	return a == Address{}
}

// IsMulticast returns true if a is in ff00::/8.
func (a Address) IsMulticast() bool {
	return a[0] == 0xff
}

// IsLinkLocal returns true if a is a link-local unicast address, that is,
// in fe80::/64 with the intermediate bytes zero.
func (a Address) IsLinkLocal() bool {
	if a[0] != 0xfe || a[1] != 0x80 {
		return false
	}
	for _, b := range a[2:8] {
		if b != 0 {
			return false
		}
	}
	return true
}

// IID returns the interface identifier, the low 64 bits of the address.
func (a Address) IID() [IIDSize]byte {
	var iid [IIDSize]byte
	copy(iid[:], a[8:])
	return iid
}

// PANID is an IEEE 802.15.4 personal area network identifier.
type PANID uint16

// MacAddressType is the discriminant of the MacAddress union.
type MacAddressType uint8

const (
	// MacShort is a 16-bit short address assigned by the PAN coordinator.
	MacShort MacAddressType = iota

	// MacLong is a 64-bit EUI-64 extended address.
	MacLong
)

// MacAddress is an IEEE 802.15.4 link-layer address, either a 16-bit
// short address or a 64-bit extended address. The zero value is the short
// address 0.
type MacAddress struct {
	typ   MacAddressType
	short uint16
	long  [8]byte
}

// ShortMacAddress returns the short MacAddress addr.
func ShortMacAddress(addr uint16) MacAddress {
	return MacAddress{typ: MacShort, short: addr}
}

// LongMacAddress returns the extended MacAddress addr.
func LongMacAddress(addr [8]byte) MacAddress {
	return MacAddress{typ: MacLong, long: addr}
}

// Type returns the discriminant of the address union.
func (a MacAddress) Type() MacAddressType {
	return a.typ
}

// Short returns the 16-bit short address. It panics if the address is not
// short.
func (a MacAddress) Short() uint16 {
	if a.typ != MacShort {
		panic("lowpan: Short called on extended MacAddress")
	}
	return a.short
}

// Long returns the 64-bit extended address. It panics if the address is
// not extended.
func (a MacAddress) Long() [8]byte {
	if a.typ != MacLong {
		panic("lowpan: Long called on short MacAddress")
	}
	return a.long
}

// String implements fmt.Stringer.String.
func (a MacAddress) String() string {
	switch a.typ {
	case MacShort:
		return fmt.Sprintf("%04x", a.short)
	default:
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
			a.long[0], a.long[1], a.long[2], a.long[3],
			a.long[4], a.long[5], a.long[6], a.long[7])
	}
}

// IID returns the interface identifier derived from the link-layer
// address, per RFC 4944 section 6. A short address maps to the pattern
// 0000:00ff:fe00:XXXX; an extended address is the EUI-64 with the
// universal/local bit inverted.
func (a MacAddress) IID() [IIDSize]byte {
	var iid [IIDSize]byte
	switch a.typ {
	case MacShort:
		iid[3] = 0xff
		iid[4] = 0xfe
		iid[6] = byte(a.short >> 8)
		iid[7] = byte(a.short)
	case MacLong:
		iid = a.long
		iid[0] ^= 0x02
	}
	return iid
}

// SecurityLevel is an IEEE 802.15.4 frame security level.
type SecurityLevel uint8

// Security describes the link-layer security parameters of an outbound
// frame. A nil *Security means the frame is sent in the clear; the
// adaptation layer passes it through to the MAC untouched.
type Security struct {
	Level SecurityLevel
	KeyID uint8
}

// A Clock provides the time base reassembly timeouts are measured
// against.
type Clock interface {
	// NowMonotonic returns a monotonic time value in nanoseconds.
	NowMonotonic() int64
}

// StdClock implements Clock with the Go runtime's clock.
type StdClock struct{}

var _ Clock = (*StdClock)(nil)

var stdClockBase = time.Now()

// NowMonotonic implements Clock.NowMonotonic.
func (*StdClock) NowMonotonic() int64 {
	return int64(time.Since(stdClockBase))
}
