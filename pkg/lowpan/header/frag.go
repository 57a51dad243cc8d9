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

package header

import (
	"encoding/binary"
)

const (
	frag1Dispatch    = 0xc0
	fragNDispatch    = 0xe0
	fragDispatchMask = 0xe0

	fragTag    = 2
	fragOffset = 4

	// iphcDispatch is the 011xxxxx LOWPAN_IPHC dispatch pattern.
	iphcDispatch     = 0x60
	iphcDispatchMask = 0xe0

	// UncompressedIPv6Dispatch precedes a verbatim IPv6 header, per
	// RFC 4944 section 5.1.
	UncompressedIPv6Dispatch = 0x41
)

const (
	// Frag1HeaderSize is the size of the header of an initial fragment.
	Frag1HeaderSize = 4

	// FragNHeaderSize is the size of the header of a subsequent fragment.
	FragNHeaderSize = 5

	// FragmentDatagramSizeMax is the largest datagram size the 13-bit
	// size field of a fragment header can carry.
	FragmentDatagramSizeMax = 1<<13 - 1

	// FragmentGranularity is the unit, in bytes, of fragment offsets and
	// of reassembly completion tracking.
	FragmentGranularity = 8
)

// FragmentFields contains the fields of a fragmentation header. It is used
// to describe the fields of a fragment that needs to be encoded.
type FragmentFields struct {
	// DatagramSize is the size of the entire unfragmented datagram.
	DatagramSize uint16

	// DatagramTag identifies the datagram the fragment belongs to.
	DatagramTag uint16

	// DatagramOffset is the offset of the fragment payload within the
	// unfragmented datagram, in bytes. It must be a multiple of
	// FragmentGranularity and is zero for an initial fragment.
	DatagramOffset uint16
}

// IsFragment returns true if b starts with a fragmentation dispatch.
func IsFragment(b []byte) bool {
	return len(b) > 0 && b[0]&0xc0 == 0xc0
}

// IsFrag1 returns true if b starts with an initial-fragment dispatch.
func IsFrag1(b []byte) bool {
	return len(b) > 0 && b[0]&fragDispatchMask == frag1Dispatch
}

// IsFragN returns true if b starts with a subsequent-fragment dispatch.
func IsFragN(b []byte) bool {
	return len(b) > 0 && b[0]&fragDispatchMask == fragNDispatch
}

// IsIPHC returns true if b starts with a LOWPAN_IPHC dispatch.
func IsIPHC(b []byte) bool {
	return len(b) > 0 && b[0]&iphcDispatchMask == iphcDispatch
}

// Frag1 represents the 4-byte header of an initial fragment stored in a
// byte array. The 13-bit datagram size spans the first two bytes below
// the 3-bit dispatch pattern.
type Frag1 []byte

// IsValid performs basic validation on the fragment header.
func (b Frag1) IsValid() bool {
	return len(b) >= Frag1HeaderSize && IsFrag1(b)
}

// DatagramSize returns the "datagram size" field of the fragment header.
func (b Frag1) DatagramSize() uint16 {
	return binary.BigEndian.Uint16(b) & FragmentDatagramSizeMax
}

// DatagramTag returns the "datagram tag" field of the fragment header.
func (b Frag1) DatagramTag() uint16 {
	return binary.BigEndian.Uint16(b[fragTag:])
}

// Payload returns the bytes following the fragment header.
func (b Frag1) Payload() []byte {
	return b[Frag1HeaderSize:]
}

// Encode encodes all the fields of the initial-fragment header.
func (b Frag1) Encode(f *FragmentFields) {
	binary.BigEndian.PutUint16(b, f.DatagramSize&FragmentDatagramSizeMax)
	b[0] |= frag1Dispatch
	binary.BigEndian.PutUint16(b[fragTag:], f.DatagramTag)
}

// FragN represents the 5-byte header of a subsequent fragment stored in a
// byte array.
type FragN []byte

// IsValid performs basic validation on the fragment header.
func (b FragN) IsValid() bool {
	return len(b) >= FragNHeaderSize && IsFragN(b)
}

// DatagramSize returns the "datagram size" field of the fragment header.
func (b FragN) DatagramSize() uint16 {
	return binary.BigEndian.Uint16(b) & FragmentDatagramSizeMax
}

// DatagramTag returns the "datagram tag" field of the fragment header.
func (b FragN) DatagramTag() uint16 {
	return binary.BigEndian.Uint16(b[fragTag:])
}

// DatagramOffset returns the offset of the fragment payload within the
// unfragmented datagram, in bytes. The wire field counts
// FragmentGranularity units.
func (b FragN) DatagramOffset() uint16 {
	return uint16(b[fragOffset]) * FragmentGranularity
}

// Payload returns the bytes following the fragment header.
func (b FragN) Payload() []byte {
	return b[FragNHeaderSize:]
}

// Encode encodes all the fields of the subsequent-fragment header.
func (b FragN) Encode(f *FragmentFields) {
	binary.BigEndian.PutUint16(b, f.DatagramSize&FragmentDatagramSizeMax)
	b[0] |= fragNDispatch
	binary.BigEndian.PutUint16(b[fragTag:], f.DatagramTag)
	b[fragOffset] = byte(f.DatagramOffset / FragmentGranularity)
}
