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
	"sixlowpan.dev/sixlowpan/pkg/lowpan/checksum"
)

// iphcReader walks the compressed input, failing closed on short buffers.
type iphcReader struct {
	buf []byte
	off int
}

func (r *iphcReader) readByte() (byte, bool) {
	if r.off >= len(r.buf) {
		return 0, false
	}
	b := r.buf[r.off]
	r.off++
	return b, true
}

func (r *iphcReader) readBytes(n int) ([]byte, bool) {
	if r.off+n > len(r.buf) {
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

// Decompress decodes the LOWPAN_IPHC header at the start of buf into a
// full uncompressed IPv6 header (plus any extension and UDP headers) in
// out. It returns the number of compressed bytes consumed and the number
// of uncompressed header bytes written; the raw payload follows at
// buf[consumed:] and belongs at out[written:].
//
// When isFragment is true the total payload length is taken from the
// caller-supplied dgramSize, since a single fragment cannot reveal the
// full datagram length. An elided UDP checksum is accepted and recomputed
// over the IPv6 pseudo-header and the payload bytes present in buf.
// Unsupported encodings fail with an error, never a guess.
func Decompress(ctxs ContextStore, buf []byte, srcMac, dstMac lowpan.MacAddress, out []byte, dgramSize uint16, isFragment bool) (int, int, *lowpan.Error) {
	return decompressIPHC(ctxs, buf, srcMac, dstMac, out, dgramSize, isFragment, 0)
}

func decompressIPHC(ctxs ContextStore, buf []byte, srcMac, dstMac lowpan.MacAddress, out []byte, dgramSize uint16, isFragment bool, depth int) (int, int, *lowpan.Error) {
	if len(buf) < 2 || !IsIPHC(buf) {
		return 0, 0, lowpan.ErrMalformedHeader
	}
	if len(out) < IPv6MinimumSize {
		return 0, 0, lowpan.ErrNoBufferSpace
	}

	iphc0 := buf[0]
	iphc1 := buf[1]
	r := iphcReader{buf: buf, off: 2}

	var sci, dci uint8
	if iphc1&iphcCID != 0 {
		cie, ok := r.readByte()
		if !ok {
			return 0, 0, lowpan.ErrMalformedHeader
		}
		sci = cie >> 4
		dci = cie & 0xf
	}

	ip := IPv6(out)
	written := IPv6MinimumSize

	var trafficClass uint8
	var flowLabel uint32
	switch iphc0 & iphcTFElided {
	case iphcTFInline:
		b, ok := r.readBytes(4)
		if !ok {
			return 0, 0, lowpan.ErrMalformedHeader
		}
		trafficClass = (b[0]&0x3f)<<2 | b[0]>>6
		flowLabel = uint32(b[1]&0x0f)<<16 | uint32(b[2])<<8 | uint32(b[3])
	case iphcTFFlowLabel:
		b, ok := r.readBytes(3)
		if !ok {
			return 0, 0, lowpan.ErrMalformedHeader
		}
		trafficClass = b[0] >> 6
		flowLabel = uint32(b[0]&0x0f)<<16 | uint32(b[1])<<8 | uint32(b[2])
	case iphcTFClassOnly:
		b, ok := r.readByte()
		if !ok {
			return 0, 0, lowpan.ErrMalformedHeader
		}
		trafficClass = (b&0x3f)<<2 | b>>6
	}
	ip.setTrafficClassAndFlow(trafficClass, flowLabel)

	nhInline := iphc0&iphcNH == 0
	if nhInline {
		nh, ok := r.readByte()
		if !ok {
			return 0, 0, lowpan.ErrMalformedHeader
		}
		ip.SetNextHeader(nh)
	}

	switch iphc0 & 0x03 {
	case iphcHopLimit1:
		out[ipv6HopLimit] = 1
	case iphcHopLimit64:
		out[ipv6HopLimit] = 64
	case iphcHopLimit255:
		out[ipv6HopLimit] = 255
	default:
		hop, ok := r.readByte()
		if !ok {
			return 0, 0, lowpan.ErrMalformedHeader
		}
		out[ipv6HopLimit] = hop
	}

	srcAddr, err := decompressAddr(ctxs, &r, iphc1&iphcSAC != 0, iphc1>>iphcSAMShift&0x3, sci, srcMac, true)
	if err != nil {
		return 0, 0, err
	}
	ip.SetSourceAddress(srcAddr)

	var dstAddr lowpan.Address
	if iphc1&iphcM != 0 {
		dstAddr, err = decompressMulticast(ctxs, &r, iphc1&iphcDAC != 0, iphc1&0x3, dci)
	} else {
		dstAddr, err = decompressAddr(ctxs, &r, iphc1&iphcDAC != 0, iphc1&0x3, dci, dstMac, false)
	}
	if err != nil {
		return 0, 0, err
	}
	ip.SetDestinationAddress(dstAddr)

	// When the next header was elided an NHC-encoded chain follows.
	udpOffset := -1
	udpChecksumElided := false
	if !nhInline {
		nhSlot := ipv6NextHdr
		for {
			nhc, ok := r.readByte()
			if !ok {
				return 0, 0, lowpan.ErrMalformedHeader
			}
			if nhc&udpNHCDispatchMask == udpNHCDispatch {
				out[nhSlot] = UDPProtocolNumber
				udpOffset = written
				written, udpChecksumElided, err = decompressUDP(nhc, &r, out, written)
				if err != nil {
					return 0, 0, err
				}
				break
			}
			if nhc&extNHCDispatchMask != extNHCDispatch {
				return 0, 0, lowpan.ErrUnknownEncoding
			}

			eid := nhc >> extNHCEIDShift & extNHCEIDMask
			if eid == extNHCEIDIPv6 {
				// One level of IPv6-in-IPv6; the inner header owns the
				// rest of the compressed input.
				if depth > 0 {
					return 0, 0, lowpan.ErrUnknownEncoding
				}
				out[nhSlot] = IPv6EncapsulationHeader
				innerSize := 0
				if isFragment {
					innerSize = int(dgramSize) - written
					if innerSize < IPv6MinimumSize {
						return 0, 0, lowpan.ErrMalformedHeader
					}
				}
				ic, iw, err := decompressIPHC(ctxs, buf[r.off:], srcMac, dstMac, out[written:], uint16(innerSize), isFragment, depth+1)
				if err != nil {
					return 0, 0, err
				}
				r.off += ic
				written += iw
				break
			}

			var proto uint8
			switch eid {
			case extNHCEIDHopByHop:
				proto = HopByHopExtHdr
			case extNHCEIDRouting:
				proto = RoutingExtHdr
			case extNHCEIDFragment:
				proto = FragmentExtHdr
			case extNHCEIDDstOpts:
				proto = DestinationOptionsExtHdr
			case extNHCEIDMobility:
				proto = MobilityExtHdr
			default:
				return 0, 0, lowpan.ErrUnknownEncoding
			}
			out[nhSlot] = proto

			haveInlineNext := nhc&extNHCNextHeader == 0
			var inlineNext byte
			if haveInlineNext {
				if inlineNext, ok = r.readByte(); !ok {
					return 0, 0, lowpan.ErrMalformedHeader
				}
			}
			lenByte, ok := r.readByte()
			if !ok {
				return 0, 0, lowpan.ErrMalformedHeader
			}
			content, ok := r.readBytes(int(lenByte))
			if !ok {
				return 0, 0, lowpan.ErrMalformedHeader
			}

			// The uncompressed form re-pads the header to an 8-byte
			// boundary.
			padded := (2 + int(lenByte) + 7) &^ 7
			if written+padded > len(out) {
				return 0, 0, lowpan.ErrNoBufferSpace
			}
			out[written] = inlineNext
			out[written+1] = byte(padded/8 - 1)
			copy(out[written+2:], content)
			padOptions(out[written+2+int(lenByte) : written+padded])
			nhSlot = written
			written += padded
			if haveInlineNext {
				break
			}
		}
	}

	var payloadLen int
	if isFragment {
		payloadLen = int(dgramSize) - IPv6MinimumSize
	} else {
		payloadLen = written - IPv6MinimumSize + len(buf) - r.off
	}
	if payloadLen < 0 || payloadLen > int(^uint16(0)) {
		return 0, 0, lowpan.ErrMalformedHeader
	}
	ip.SetPayloadLength(uint16(payloadLen))

	if udpOffset >= 0 {
		udp := UDP(out[udpOffset:])
		udpLen := payloadLen - (udpOffset - IPv6MinimumSize)
		if udpLen < UDPMinimumSize {
			return 0, 0, lowpan.ErrMalformedHeader
		}
		udp.SetLength(uint16(udpLen))
		if udpChecksumElided {
			xsum := checksum.PseudoHeaderChecksum(UDPProtocolNumber, srcAddr, dstAddr, uint32(udpLen))
			xsum = checksum.Checksum(buf[r.off:], xsum)
			xsum = ^udp.CalculateChecksum(xsum)
			if xsum == 0 {
				xsum = 0xffff
			}
			udp.SetChecksum(xsum)
		}
	}

	return r.off, written, nil
}

// decompressAddr rebuilds a unicast address from its SAC/SAM or DAC/DAM
// encoding. isSrc selects the source-specific unspecified-address tier.
func decompressAddr(ctxs ContextStore, r *iphcReader, stateful bool, mode uint8, cid uint8, mac lowpan.MacAddress, isSrc bool) (lowpan.Address, *lowpan.Error) {
	var addr lowpan.Address

	if stateful {
		if mode == iphcAddrFullInline {
			if isSrc {
				// SAC=1, SAM=00 is the unspecified address.
				return addr, nil
			}
			// DAC=1, DAM=00 is reserved.
			return addr, lowpan.ErrUnknownEncoding
		}
		ctx, ok := ctxs.ContextFromID(cid)
		if !ok {
			return addr, lowpan.ErrNoContext
		}
		applyPrefix(&addr, ctx)
		return decompressIID(r, mode, mac, addr)
	}

	if mode == iphcAddrFullInline {
		b, ok := r.readBytes(lowpan.IPv6AddressSize)
		if !ok {
			return addr, lowpan.ErrMalformedHeader
		}
		return lowpan.AddressFromSlice(b), nil
	}
	addr[0] = 0xfe
	addr[1] = 0x80
	return decompressIID(r, mode, mac, addr)
}

// decompressIID fills the low 64 bits of addr per the two-bit address
// mode, keeping whatever prefix is already in place.
func decompressIID(r *iphcReader, mode uint8, mac lowpan.MacAddress, addr lowpan.Address) (lowpan.Address, *lowpan.Error) {
	switch mode {
	case iphcAddr64Bit:
		b, ok := r.readBytes(lowpan.IIDSize)
		if !ok {
			return addr, lowpan.ErrMalformedHeader
		}
		copy(addr[8:], b)
	case iphcAddr16Bit:
		b, ok := r.readBytes(2)
		if !ok {
			return addr, lowpan.ErrMalformedHeader
		}
		addr[8], addr[9], addr[10] = 0, 0, 0
		addr[11] = 0xff
		addr[12] = 0xfe
		addr[13] = 0
		addr[14] = b[0]
		addr[15] = b[1]
	case iphcAddrElided:
		iid := mac.IID()
		copy(addr[8:], iid[:])
	}
	return addr, nil
}

// decompressMulticast rebuilds a multicast destination from its M=1
// encoding.
func decompressMulticast(ctxs ContextStore, r *iphcReader, stateful bool, mode uint8, cid uint8) (lowpan.Address, *lowpan.Error) {
	var addr lowpan.Address

	if stateful {
		if mode != iphcAddrFullInline {
			return addr, lowpan.ErrUnknownEncoding
		}
		ctx, ok := ctxs.ContextFromID(cid)
		if !ok {
			return addr, lowpan.ErrNoContext
		}
		b, ok := r.readBytes(6)
		if !ok {
			return addr, lowpan.ErrMalformedHeader
		}
		addr[0] = 0xff
		addr[1] = b[0]
		addr[2] = b[1]
		addr[3] = ctx.PrefixLen
		copy(addr[4:12], ctx.Prefix[:8])
		copy(addr[12:], b[2:])
		return addr, nil
	}

	switch mode {
	case iphcAddrFullInline:
		b, ok := r.readBytes(lowpan.IPv6AddressSize)
		if !ok {
			return addr, lowpan.ErrMalformedHeader
		}
		return lowpan.AddressFromSlice(b), nil
	case iphcAddr64Bit:
		b, ok := r.readBytes(6)
		if !ok {
			return addr, lowpan.ErrMalformedHeader
		}
		addr[0] = 0xff
		addr[1] = b[0]
		copy(addr[11:], b[1:])
	case iphcAddr16Bit:
		b, ok := r.readBytes(4)
		if !ok {
			return addr, lowpan.ErrMalformedHeader
		}
		addr[0] = 0xff
		addr[1] = b[0]
		copy(addr[13:], b[1:])
	case iphcAddrElided:
		b, ok := r.readByte()
		if !ok {
			return addr, lowpan.ErrMalformedHeader
		}
		addr[0] = 0xff
		addr[1] = 0x02
		addr[15] = b
	}
	return addr, nil
}

// decompressUDP rebuilds the 8-byte UDP header at out[written:] from its
// LOWPAN_NHC encoding. The length field and an elided checksum are filled
// in by the caller once the payload length is known.
func decompressUDP(nhc byte, r *iphcReader, out []byte, written int) (int, bool, *lowpan.Error) {
	if written+UDPMinimumSize > len(out) {
		return 0, false, lowpan.ErrNoBufferSpace
	}
	udp := UDP(out[written:])

	var srcPort, dstPort uint16
	switch nhc & (udpNHCSrcShort | udpNHCDstShort) {
	case udpNHCSrcShort | udpNHCDstShort:
		b, ok := r.readByte()
		if !ok {
			return 0, false, lowpan.ErrMalformedHeader
		}
		srcPort = udpPort4BitPrefix | uint16(b>>4)
		dstPort = udpPort4BitPrefix | uint16(b&0xf)
	case udpNHCDstShort:
		b, ok := r.readBytes(3)
		if !ok {
			return 0, false, lowpan.ErrMalformedHeader
		}
		srcPort = binary.BigEndian.Uint16(b)
		dstPort = udpPort8BitPrefix | uint16(b[2])
	case udpNHCSrcShort:
		b, ok := r.readBytes(3)
		if !ok {
			return 0, false, lowpan.ErrMalformedHeader
		}
		srcPort = udpPort8BitPrefix | uint16(b[0])
		dstPort = binary.BigEndian.Uint16(b[1:])
	default:
		b, ok := r.readBytes(4)
		if !ok {
			return 0, false, lowpan.ErrMalformedHeader
		}
		srcPort = binary.BigEndian.Uint16(b)
		dstPort = binary.BigEndian.Uint16(b[2:])
	}

	udp.Encode(&UDPFields{SrcPort: srcPort, DstPort: dstPort})

	elided := nhc&udpNHCChecksumElided != 0
	if !elided {
		b, ok := r.readBytes(2)
		if !ok {
			return 0, false, lowpan.ErrMalformedHeader
		}
		udp.SetChecksum(binary.BigEndian.Uint16(b))
	}
	return written + UDPMinimumSize, elided, nil
}

// applyPrefix copies the context prefix's leading bits into addr.
func applyPrefix(addr *lowpan.Address, ctx Context) {
	bytes := int(ctx.PrefixLen / 8)
	copy(addr[:bytes], ctx.Prefix[:bytes])
	if bits := ctx.PrefixLen % 8; bits != 0 && bytes < len(addr) {
		mask := byte(0xff) << (8 - bits)
		addr[bytes] = ctx.Prefix[bytes] & mask
	}
}

// padOptions fills b with Pad1 or PadN options, the padding the
// uncompressed option-bearing extension headers require.
func padOptions(b []byte) {
	switch len(b) {
	case 0:
	case 1:
		b[0] = 0 // Pad1
	default:
		b[0] = 1 // PadN
		b[1] = byte(len(b) - 2)
		for i := 2; i < len(b); i++ {
			b[i] = 0
		}
	}
}
