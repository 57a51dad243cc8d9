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

// Package header provides the encoding and decoding of the wire formats
// handled by the adaptation layer: the uncompressed IPv6 and UDP headers,
// the LOWPAN_IPHC/LOWPAN_NHC compressed forms, and the RFC 4944
// fragmentation headers.
package header

import (
	"encoding/binary"

	"sixlowpan.dev/sixlowpan/pkg/lowpan"
)

const (
	versTCFL       = 0
	ipv6PayloadLen = 4
	ipv6NextHdr    = 6
	ipv6HopLimit   = 7
	ipv6SrcAddr    = 8
	ipv6DstAddr    = 24
)

// IPv6Fields contains the fields of an IPv6 packet. It is used to describe
// the fields of a packet that needs to be encoded.
type IPv6Fields struct {
	// TrafficClass is the "traffic class" field of an IPv6 packet. The
	// high six bits are the DS field, the low two bits the ECN field.
	TrafficClass uint8

	// FlowLabel is the "flow label" field of an IPv6 packet.
	FlowLabel uint32

	// PayloadLength is the "payload length" field of an IPv6 packet.
	PayloadLength uint16

	// NextHeader is the "next header" field of an IPv6 packet.
	NextHeader uint8

	// HopLimit is the "hop limit" field of an IPv6 packet.
	HopLimit uint8

	// SrcAddr is the "source ip address" of an IPv6 packet.
	SrcAddr lowpan.Address

	// DstAddr is the "destination ip address" of an IPv6 packet.
	DstAddr lowpan.Address
}

// IPv6 represents an IPv6 header stored in a byte array.
type IPv6 []byte

const (
	// IPv6MinimumSize is the minimum size of a valid IPv6 packet.
	IPv6MinimumSize = 40

	// IPv6Version is the version of the IPv6 protocol.
	IPv6Version = 6

	// IPv6MinimumMTU is the minimum MTU required by IPv6, per RFC 8200,
	// and the fixed capacity of a reassembly buffer.
	IPv6MinimumMTU = 1280
)

// Next-header protocol numbers understood by the decompressor.
const (
	HopByHopExtHdr           = 0
	UDPProtocolNumber        = 17
	IPv6EncapsulationHeader  = 41
	RoutingExtHdr            = 43
	FragmentExtHdr           = 44
	NoNextHeader             = 59
	DestinationOptionsExtHdr = 60
	MobilityExtHdr           = 135
)

// TrafficClass returns the "traffic class" field of the IPv6 header.
func (b IPv6) TrafficClass() uint8 {
	return b[0]<<4 | b[1]>>4
}

// ECN returns the two-bit ECN field, the low bits of the traffic class.
func (b IPv6) ECN() uint8 {
	return b.TrafficClass() & 0x3
}

// DSCP returns the six-bit DS field, the high bits of the traffic class.
func (b IPv6) DSCP() uint8 {
	return b.TrafficClass() >> 2
}

// FlowLabel returns the "flow label" field of the IPv6 header.
func (b IPv6) FlowLabel() uint32 {
	return binary.BigEndian.Uint32(b[versTCFL:]) & 0xfffff
}

// PayloadLength returns the "payload length" field of the IPv6 header.
func (b IPv6) PayloadLength() uint16 {
	return binary.BigEndian.Uint16(b[ipv6PayloadLen:])
}

// NextHeader returns the "next header" field of the IPv6 header.
func (b IPv6) NextHeader() uint8 {
	return b[ipv6NextHdr]
}

// HopLimit returns the "hop limit" field of the IPv6 header.
func (b IPv6) HopLimit() uint8 {
	return b[ipv6HopLimit]
}

// SourceAddress returns the "source address" field of the IPv6 header.
func (b IPv6) SourceAddress() lowpan.Address {
	return lowpan.AddressFromSlice(b[ipv6SrcAddr : ipv6SrcAddr+lowpan.IPv6AddressSize])
}

// DestinationAddress returns the "destination address" field of the IPv6
// header.
func (b IPv6) DestinationAddress() lowpan.Address {
	return lowpan.AddressFromSlice(b[ipv6DstAddr : ipv6DstAddr+lowpan.IPv6AddressSize])
}

// SetPayloadLength sets the "payload length" field of the IPv6 header.
func (b IPv6) SetPayloadLength(payloadLength uint16) {
	binary.BigEndian.PutUint16(b[ipv6PayloadLen:], payloadLength)
}

// SetNextHeader sets the "next header" field of the IPv6 header.
func (b IPv6) SetNextHeader(v uint8) {
	b[ipv6NextHdr] = v
}

// SetSourceAddress sets the "source address" field of the IPv6 header.
func (b IPv6) SetSourceAddress(addr lowpan.Address) {
	copy(b[ipv6SrcAddr:], addr[:])
}

// SetDestinationAddress sets the "destination address" field of the IPv6
// header.
func (b IPv6) SetDestinationAddress(addr lowpan.Address) {
	copy(b[ipv6DstAddr:], addr[:])
}

// Encode encodes all the fields of the IPv6 header.
func (b IPv6) Encode(i *IPv6Fields) {
	binary.BigEndian.PutUint32(b[versTCFL:],
		uint32(IPv6Version)<<28|uint32(i.TrafficClass)<<20|i.FlowLabel&0xfffff)
	binary.BigEndian.PutUint16(b[ipv6PayloadLen:], i.PayloadLength)
	b[ipv6NextHdr] = i.NextHeader
	b[ipv6HopLimit] = i.HopLimit
	copy(b[ipv6SrcAddr:], i.SrcAddr[:])
	copy(b[ipv6DstAddr:], i.DstAddr[:])
}

// IsValid performs basic validation on the packet.
func (b IPv6) IsValid() bool {
	return len(b) >= IPv6MinimumSize && b[0]>>4 == IPv6Version
}

func (b IPv6) setTrafficClassAndFlow(tc uint8, flow uint32) {
	binary.BigEndian.PutUint32(b[versTCFL:],
		uint32(IPv6Version)<<28|uint32(tc)<<20|flow&0xfffff)
}
