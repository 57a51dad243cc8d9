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

// Package checksum provides the implementation of the internet checksum
// used by the transport headers the adaptation layer reconstructs.
package checksum

import (
	"encoding/binary"

	"sixlowpan.dev/sixlowpan/pkg/lowpan"
)

func calculateChecksum(buf []byte, initial uint32) uint16 {
	v := initial

	l := len(buf)
	if l&1 != 0 {
		l--
		v += uint32(buf[l]) << 8
	}

	for i := 0; i < l; i += 2 {
		v += (uint32(buf[i]) << 8) + uint32(buf[i+1])
	}

	return Combine(uint16(v), uint16(v>>16))
}

// Checksum calculates the checksum (as defined in RFC 1071) of the bytes
// in the given byte array.
//
// The initial checksum must have been computed on an even number of bytes.
func Checksum(buf []byte, initial uint16) uint16 {
	return calculateChecksum(buf, uint32(initial))
}

// Combine combines the two uint16 to form their checksum. This is done
// by adding them and the carry.
//
// Note that checksum a must have been computed on an even number of bytes.
func Combine(a, b uint16) uint16 {
	v := uint32(a) + uint32(b)
	return uint16(v + v>>16)
}

// PseudoHeaderChecksum calculates the IPv6 pseudo-header checksum for the
// given transport protocol, addresses and upper-layer packet length.
// Transport layers fold it into their own checksum.
func PseudoHeaderChecksum(protocol uint8, srcAddr, dstAddr lowpan.Address, totalLen uint32) uint16 {
	xsum := Checksum(srcAddr[:], 0)
	xsum = Checksum(dstAddr[:], xsum)

	var l [4]byte
	binary.BigEndian.PutUint32(l[:], totalLen)
	xsum = Checksum(l[:], xsum)

	return Checksum([]byte{0, 0, 0, protocol}, xsum)
}

// Put puts the checksum in the provided byte slice.
func Put(b []byte, xsum uint16) {
	binary.BigEndian.PutUint16(b, xsum)
}
