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

	"sixlowpan.dev/sixlowpan/pkg/lowpan"
)

// LOWPAN_IPHC base encoding, per RFC 6282 section 3.1.1. The first byte
// carries the dispatch pattern, the TF, NH and HLIM fields; the second
// byte carries CID, SAC, SAM, M, DAC and DAM.
const (
	iphcTFInline    = 0x00
	iphcTFFlowLabel = 0x08
	iphcTFClassOnly = 0x10
	iphcTFElided    = 0x18

	iphcNH = 0x04

	iphcHopLimit1   = 0x01
	iphcHopLimit64  = 0x02
	iphcHopLimit255 = 0x03

	iphcCID      = 0x80
	iphcSAC      = 0x40
	iphcSAMShift = 4
	iphcM        = 0x08
	iphcDAC      = 0x04
	iphcDAMShift = 0

	iphcAddrFullInline = 0x0
	iphcAddr64Bit      = 0x1
	iphcAddr16Bit      = 0x2
	iphcAddrElided     = 0x3
)

// LOWPAN_NHC encodings, per RFC 6282 sections 4.1 and 4.3.
const (
	extNHCDispatch     = 0xe0
	extNHCDispatchMask = 0xf0
	extNHCEIDShift     = 1
	extNHCEIDMask      = 0x7
	extNHCNextHeader   = 0x01

	extNHCEIDHopByHop  = 0
	extNHCEIDRouting   = 1
	extNHCEIDFragment  = 2
	extNHCEIDDstOpts   = 3
	extNHCEIDMobility  = 4
	extNHCEIDIPv6      = 7

	udpNHCDispatch       = 0xf0
	udpNHCDispatchMask   = 0xf8
	udpNHCChecksumElided = 0x04
	udpNHCSrcShort       = 0x02
	udpNHCDstShort       = 0x01

	udpPort4BitPrefix = 0xf0b0
	udpPort8BitPrefix = 0xf000
)

const (
	// IPHCMaxHeaderSize is the largest compressed header the encoder can
	// produce: the 2-byte base, the context extension byte, 4 bytes of
	// traffic class and flow label, inline next header and hop limit,
	// two full addresses, and the UDP NHC byte with uncompressed ports
	// and checksum.
	IPHCMaxHeaderSize = 2 + 1 + 4 + 1 + 1 + 2*lowpan.IPv6AddressSize + 1 + 4 + 2
)

// Compress encodes the IPv6 (and, when present, UDP) header at the start
// of datagram into its LOWPAN_IPHC form in buf, eliding fields derivable
// from the link-layer addresses and the context store. It returns the
// number of header bytes consumed from datagram and the number of bytes
// written to buf; the datagram's payload starts at datagram[consumed:].
//
// The UDP checksum is always carried inline. Decompress accepts an elided
// checksum from other implementations, but this encoder never produces
// one.
func Compress(ctxs ContextStore, datagram []byte, srcMac, dstMac lowpan.MacAddress, buf []byte) (int, int, *lowpan.Error) {
	if len(datagram) < IPv6MinimumSize {
		return 0, 0, lowpan.ErrMalformedHeader
	}
	if len(buf) < IPHCMaxHeaderSize {
		return 0, 0, lowpan.ErrNoBufferSpace
	}

	ip := IPv6(datagram)
	srcAddr := ip.SourceAddress()
	dstAddr := ip.DestinationAddress()

	buf[0] = iphcDispatch
	buf[1] = 0
	written := 2

	// Resolve contexts up front; the context identifier extension byte
	// precedes every other optional field. Link-local and unspecified
	// addresses never compress statefully, and non-compressible contexts
	// are skipped entirely.
	var srcCtx, dstCtx Context
	var haveSrcCtx, haveDstCtx bool
	if !srcAddr.IsUnspecified() && !srcAddr.IsLinkLocal() {
		if c, ok := ctxs.ContextFromAddr(srcAddr); ok && c.Compress {
			srcCtx, haveSrcCtx = c, true
		}
	}
	if dstAddr.IsMulticast() {
		if c, ok := ctxs.ContextFromPrefix(dstAddr[4:12], dstAddr[3]); ok && c.Compress {
			dstCtx, haveDstCtx = c, true
		}
	} else if !dstAddr.IsLinkLocal() {
		if c, ok := ctxs.ContextFromAddr(dstAddr); ok && c.Compress {
			dstCtx, haveDstCtx = c, true
		}
	}

	var sci, dci uint8
	if haveSrcCtx {
		sci = srcCtx.ID
	}
	if haveDstCtx {
		dci = dstCtx.ID
	}
	if sci != 0 || dci != 0 {
		buf[1] |= iphcCID
		buf[written] = sci<<4 | dci
		written++
	}

	// Traffic class and flow label. The ECN bits ride with whichever of
	// the two encodings survives, so they are tracked separately from
	// the DS field.
	ecn := ip.ECN()
	dscp := ip.DSCP()
	flow := ip.FlowLabel()
	switch {
	case ecn == 0 && dscp == 0 && flow == 0:
		buf[0] |= iphcTFElided
	case flow == 0:
		buf[0] |= iphcTFClassOnly
		buf[written] = ecn<<6 | dscp
		written++
	case dscp == 0:
		buf[0] |= iphcTFFlowLabel
		buf[written] = ecn<<6 | uint8(flow>>16)&0x0f
		buf[written+1] = uint8(flow >> 8)
		buf[written+2] = uint8(flow)
		written += 3
	default:
		buf[0] |= iphcTFInline
		buf[written] = ecn<<6 | dscp
		buf[written+1] = uint8(flow>>16) & 0x0f
		buf[written+2] = uint8(flow >> 8)
		buf[written+3] = uint8(flow)
		written += 4
	}

	// Next header. Only UDP compresses; everything else is carried
	// inline and its payload passes through untouched.
	nextHeader := ip.NextHeader()
	isUDP := nextHeader == UDPProtocolNumber
	if isUDP {
		if len(datagram) < IPv6MinimumSize+UDPMinimumSize {
			return 0, 0, lowpan.ErrMalformedHeader
		}
		buf[0] |= iphcNH
	} else {
		buf[written] = nextHeader
		written++
	}

	switch ip.HopLimit() {
	case 1:
		buf[0] |= iphcHopLimit1
	case 64:
		buf[0] |= iphcHopLimit64
	case 255:
		buf[0] |= iphcHopLimit255
	default:
		buf[written] = ip.HopLimit()
		written++
	}

	// Source address, most compressed applicable tier.
	switch {
	case srcAddr.IsUnspecified():
		buf[1] |= iphcSAC
	case srcAddr.IsLinkLocal():
		written = compressIID(srcAddr, srcMac, buf, iphcSAMShift, written)
	case haveSrcCtx:
		buf[1] |= iphcSAC
		written = compressIID(srcAddr, srcMac, buf, iphcSAMShift, written)
	default:
		copy(buf[written:], srcAddr[:])
		written += lowpan.IPv6AddressSize
	}

	if dstAddr.IsMulticast() {
		written = compressMulticast(dstAddr, dstCtx, haveDstCtx, buf, written)
	} else {
		switch {
		case dstAddr.IsLinkLocal():
			written = compressIID(dstAddr, dstMac, buf, iphcDAMShift, written)
		case haveDstCtx:
			buf[1] |= iphcDAC
			written = compressIID(dstAddr, dstMac, buf, iphcDAMShift, written)
		default:
			copy(buf[written:], dstAddr[:])
			written += lowpan.IPv6AddressSize
		}
	}

	consumed := IPv6MinimumSize
	if isUDP {
		udp := UDP(datagram[IPv6MinimumSize:])
		written = compressUDP(udp, buf, written)
		consumed += UDPMinimumSize
	}
	return consumed, written, nil
}

// compressIID writes the interface-identifier bytes of addr that cannot
// be derived from mac and sets the two-bit address mode at the given
// shift of the second base byte.
func compressIID(addr lowpan.Address, mac lowpan.MacAddress, buf []byte, shift uint, written int) int {
	iid := addr.IID()
	switch {
	case iid == mac.IID():
		buf[1] |= iphcAddrElided << shift
	case iid[0] == 0 && iid[1] == 0 && iid[2] == 0 && iid[3] == 0xff && iid[4] == 0xfe && iid[5] == 0:
		buf[1] |= iphcAddr16Bit << shift
		buf[written] = iid[6]
		buf[written+1] = iid[7]
		written += 2
	default:
		buf[1] |= iphcAddr64Bit << shift
		copy(buf[written:], iid[:])
		written += lowpan.IIDSize
	}
	return written
}

// compressMulticast writes a multicast destination in its most compressed
// form, per RFC 6282 section 3.2.4: the unicast-prefix-based form when a
// context covers the embedded prefix, otherwise one of the three
// stateless tiers selected by which prefix and group bytes are zero.
func compressMulticast(addr lowpan.Address, ctx Context, haveCtx bool, buf []byte, written int) int {
	buf[1] |= iphcM
	switch {
	case haveCtx && uint8(addr[3]) == ctx.PrefixLen && PrefixesMatch(ctx.Prefix[:], addr[4:12], 64):
		buf[1] |= iphcDAC
		buf[written] = addr[1]
		buf[written+1] = addr[2]
		copy(buf[written+2:], addr[12:])
		written += 6
	case addr[1] == 0x02 && allZero(addr[2:15]):
		buf[1] |= iphcAddrElided << iphcDAMShift
		buf[written] = addr[15]
		written++
	case allZero(addr[2:13]):
		buf[1] |= iphcAddr16Bit << iphcDAMShift
		buf[written] = addr[1]
		copy(buf[written+1:], addr[13:])
		written += 4
	case allZero(addr[2:11]):
		buf[1] |= iphcAddr64Bit << iphcDAMShift
		buf[written] = addr[1]
		copy(buf[written+1:], addr[11:])
		written += 6
	default:
		copy(buf[written:], addr[:])
		written += lowpan.IPv6AddressSize
	}
	return written
}

// compressUDP writes the LOWPAN_NHC byte and the compressed UDP fields.
// The checksum is never elided on encode.
func compressUDP(udp UDP, buf []byte, written int) int {
	srcPort := udp.SourcePort()
	dstPort := udp.DestinationPort()

	nhc := byte(udpNHCDispatch)
	nhcIdx := written
	written++
	switch {
	case srcPort&0xfff0 == udpPort4BitPrefix && dstPort&0xfff0 == udpPort4BitPrefix:
		nhc |= udpNHCSrcShort | udpNHCDstShort
		buf[written] = byte(srcPort&0xf)<<4 | byte(dstPort&0xf)
		written++
	case dstPort&0xff00 == udpPort8BitPrefix:
		nhc |= udpNHCDstShort
		binary.BigEndian.PutUint16(buf[written:], srcPort)
		buf[written+2] = byte(dstPort)
		written += 3
	case srcPort&0xff00 == udpPort8BitPrefix:
		nhc |= udpNHCSrcShort
		buf[written] = byte(srcPort)
		binary.BigEndian.PutUint16(buf[written+1:], dstPort)
		written += 3
	default:
		binary.BigEndian.PutUint16(buf[written:], srcPort)
		binary.BigEndian.PutUint16(buf[written+2:], dstPort)
		written += 4
	}
	buf[nhcIdx] = nhc

	binary.BigEndian.PutUint16(buf[written:], udp.Checksum())
	return written + 2
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
