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
	"testing"

	"github.com/google/go-cmp/cmp"

	"sixlowpan.dev/sixlowpan/pkg/lowpan"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/checksum"
)

// staticContexts is a fixed ContextStore for codec tests.
type staticContexts []Context

func (s staticContexts) ContextFromAddr(addr lowpan.Address) (Context, bool) {
	var best Context
	found := false
	for _, ctx := range s {
		if ctx.Matches(addr) && (!found || ctx.PrefixLen > best.PrefixLen) {
			best = ctx
			found = true
		}
	}
	return best, found
}

func (s staticContexts) ContextFromID(id uint8) (Context, bool) {
	for _, ctx := range s {
		if ctx.ID == id {
			return ctx, true
		}
	}
	return Context{}, false
}

func (s staticContexts) ContextFromPrefix(prefix []byte, prefixLen uint8) (Context, bool) {
	for _, ctx := range s {
		if ctx.PrefixLen == prefixLen && PrefixesMatch(ctx.Prefix[:], prefix, prefixLen) {
			return ctx, true
		}
	}
	return Context{}, false
}

var (
	testSrcMacLong  = lowpan.LongMacAddress([8]byte{0x02, 0, 0, 0, 0, 0, 0, 0x01})
	testDstMacLong  = lowpan.LongMacAddress([8]byte{0x06, 0, 0, 0, 0, 0, 0, 0x02})
	testSrcMacShort = lowpan.ShortMacAddress(0x1234)

	noContexts = staticContexts(nil)
)

func addr(bytes ...byte) lowpan.Address {
	return lowpan.AddressFromSlice(bytes)
}

// linkLocalFor returns the link-local address whose IID derives from mac.
func linkLocalFor(mac lowpan.MacAddress) lowpan.Address {
	var a lowpan.Address
	a[0] = 0xfe
	a[1] = 0x80
	iid := mac.IID()
	copy(a[8:], iid[:])
	return a
}

// buildPacket assembles an uncompressed datagram from its parts. The IPv6
// payload length and UDP length fields are filled in from the sizes.
func buildPacket(fields IPv6Fields, udp *UDPFields, payload []byte) []byte {
	size := IPv6MinimumSize + len(payload)
	if udp != nil {
		size += UDPMinimumSize
	}
	pkt := make([]byte, size)
	fields.PayloadLength = uint16(size - IPv6MinimumSize)
	IPv6(pkt).Encode(&fields)
	off := IPv6MinimumSize
	if udp != nil {
		udp.Length = uint16(UDPMinimumSize + len(payload))
		UDP(pkt[off:]).Encode(udp)
		off += UDPMinimumSize
	}
	copy(pkt[off:], payload)
	return pkt
}

var testPrefix = lowpan.Address{0x20, 0x01, 0x0d, 0xb8}

func TestCompressRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xca, 0xfb, 0xad, 0x01, 0x02, 0x03}

	tests := []struct {
		name        string
		fields      IPv6Fields
		udp         *UDPFields
		srcMac      lowpan.MacAddress
		dstMac      lowpan.MacAddress
		ctxs        staticContexts
		wantWritten int
	}{
		{
			name: "everything elided multicast udp",
			fields: IPv6Fields{
				NextHeader: UDPProtocolNumber,
				HopLimit:   64,
				SrcAddr:    linkLocalFor(testSrcMacLong),
				DstAddr:    addr(0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
			},
			udp:         &UDPFields{SrcPort: 0x1234, DstPort: 0x5678, Checksum: 0xbeef},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 10,
		},
		{
			name: "udp four bit ports",
			fields: IPv6Fields{
				NextHeader: UDPProtocolNumber,
				HopLimit:   64,
				SrcAddr:    linkLocalFor(testSrcMacLong),
				DstAddr:    addr(0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
			},
			udp:         &UDPFields{SrcPort: 0xf0b1, DstPort: 0xf0b2, Checksum: 0xbeef},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 7,
		},
		{
			name: "udp short dst port",
			fields: IPv6Fields{
				NextHeader: UDPProtocolNumber,
				HopLimit:   64,
				SrcAddr:    linkLocalFor(testSrcMacLong),
				DstAddr:    addr(0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
			},
			udp:         &UDPFields{SrcPort: 0x1234, DstPort: 0xf0ab, Checksum: 0xbeef},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 9,
		},
		{
			name: "udp short src port",
			fields: IPv6Fields{
				NextHeader: UDPProtocolNumber,
				HopLimit:   64,
				SrcAddr:    linkLocalFor(testSrcMacLong),
				DstAddr:    addr(0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
			},
			udp:         &UDPFields{SrcPort: 0xf0ab, DstPort: 0x1234, Checksum: 0xbeef},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 9,
		},
		{
			name: "hop limit one global addresses inline",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   1,
				SrcAddr:    addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
				DstAddr:    addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 35,
		},
		{
			name: "hop limit inline",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   32,
				SrcAddr:    addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
				DstAddr:    addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 36,
		},
		{
			name: "traffic class only",
			fields: IPv6Fields{
				TrafficClass: 0x2c,
				NextHeader:   58,
				HopLimit:     64,
				SrcAddr:      addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
				DstAddr:      addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 36,
		},
		{
			name: "flow label with ecn",
			fields: IPv6Fields{
				TrafficClass: 0x01,
				FlowLabel:    0x12345,
				NextHeader:   58,
				HopLimit:     255,
				SrcAddr:      addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
				DstAddr:      addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 38,
		},
		{
			name: "traffic class and flow label inline",
			fields: IPv6Fields{
				TrafficClass: 0x17,
				FlowLabel:    0x54321,
				NextHeader:   58,
				HopLimit:     64,
				SrcAddr:      addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
				DstAddr:      addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 39,
		},
		{
			name: "context compressed addresses",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
				SrcAddr:    addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0xaa, 0xbb, 0xcc, 0xdd, 0x11, 0x22, 0x33, 0x44),
				DstAddr:    addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xfe, 0, 0x22, 0x11),
			},
			srcMac: testSrcMacLong,
			dstMac: testDstMacLong,
			ctxs: staticContexts{
				{Prefix: testPrefix, PrefixLen: 64, ID: 3, Compress: true},
			},
			wantWritten: 14,
		},
		{
			name: "context zero needs no extension byte",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
				SrcAddr:    addr(0xfd, 0, 0, 0, 0, 0, 0, 0, 0xaa, 0xbb, 0xcc, 0xdd, 0x11, 0x22, 0x33, 0x44),
				DstAddr:    addr(0xfd, 0, 0, 0, 0, 0, 0, 0, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc),
			},
			srcMac: testSrcMacLong,
			dstMac: testDstMacLong,
			ctxs: staticContexts{
				{Prefix: lowpan.Address{0xfd}, PrefixLen: 64, ID: 0, Compress: true},
			},
			wantWritten: 19,
		},
		{
			name: "non compressible context falls back to inline",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
				SrcAddr:    addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0xaa, 0xbb, 0xcc, 0xdd, 0x11, 0x22, 0x33, 0x44),
				DstAddr:    linkLocalFor(testDstMacLong),
			},
			srcMac: testSrcMacLong,
			dstMac: testDstMacLong,
			ctxs: staticContexts{
				{Prefix: testPrefix, PrefixLen: 64, ID: 2, Compress: false},
			},
			wantWritten: 19,
		},
		{
			name: "unspecified source",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   255,
				SrcAddr:    lowpan.Address{},
				DstAddr:    addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 19,
		},
		{
			name: "multicast 32 bit",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
				SrcAddr:    linkLocalFor(testSrcMacLong),
				DstAddr:    addr(0xff, 0x08, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x12, 0x34, 0x56),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 7,
		},
		{
			name: "multicast 48 bit",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
				SrcAddr:    linkLocalFor(testSrcMacLong),
				DstAddr:    addr(0xff, 0x05, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0x22, 0x33, 0x44, 0x55),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 9,
		},
		{
			name: "multicast full inline",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
				SrcAddr:    linkLocalFor(testSrcMacLong),
				DstAddr:    addr(0xff, 0x05, 0x67, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 19,
		},
		{
			name: "multicast unicast prefix based",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
				SrcAddr:    linkLocalFor(testSrcMacLong),
				DstAddr: addr(0xff, 0x35, 0, 0x40, 0x20, 0x01, 0x0d, 0xb8,
					0, 0, 0, 0, 0, 0x11, 0x22, 0x33),
			},
			srcMac: testSrcMacLong,
			dstMac: testDstMacLong,
			ctxs: staticContexts{
				{Prefix: testPrefix, PrefixLen: 64, ID: 4, Compress: true},
			},
			wantWritten: 10,
		},
		{
			name: "short mac derived source",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
				SrcAddr:    linkLocalFor(testSrcMacShort),
				DstAddr:    linkLocalFor(testDstMacLong),
			},
			srcMac:      testSrcMacShort,
			dstMac:      testDstMacLong,
			wantWritten: 3,
		},
		{
			name: "sixteen bit iid inline",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
				SrcAddr:    addr(0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xfe, 0, 0xbe, 0xef),
				DstAddr:    linkLocalFor(testDstMacLong),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 5,
		},
		{
			name: "sixty four bit iid inline",
			fields: IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
				SrcAddr:    addr(0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0xab, 0xcd, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc),
				DstAddr:    linkLocalFor(testDstMacLong),
			},
			srcMac:      testSrcMacLong,
			dstMac:      testDstMacLong,
			wantWritten: 11,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pkt := buildPacket(test.fields, test.udp, payload)

			var hdr [IPHCMaxHeaderSize]byte
			consumed, written, err := Compress(test.ctxs, pkt, test.srcMac, test.dstMac, hdr[:])
			if err != nil {
				t.Fatalf("Compress(...) = %s", err)
			}
			if written != test.wantWritten {
				t.Errorf("got written = %d, want %d; header = %x", written, test.wantWritten, hdr[:written])
			}
			wantConsumed := IPv6MinimumSize
			if test.udp != nil {
				wantConsumed += UDPMinimumSize
			}
			if consumed != wantConsumed {
				t.Errorf("got consumed = %d, want %d", consumed, wantConsumed)
			}

			compressed := append(append([]byte(nil), hdr[:written]...), pkt[consumed:]...)
			out := make([]byte, IPv6MinimumMTU)
			dconsumed, dwritten, err := Decompress(test.ctxs, compressed, test.srcMac, test.dstMac, out, 0, false)
			if err != nil {
				t.Fatalf("Decompress(...) = %s", err)
			}
			if dconsumed != written {
				t.Errorf("got decompress consumed = %d, want %d", dconsumed, written)
			}
			if dwritten != consumed {
				t.Errorf("got decompress written = %d, want %d", dwritten, consumed)
			}

			got := append(append([]byte(nil), out[:dwritten]...), compressed[dconsumed:]...)
			if diff := cmp.Diff(pkt, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestCompressWireExample pins the exact wire bytes of a fully elided
// header: link-local source derived from the MAC, ff02::1 destination,
// hop limit 64, UDP with uncompressible ports.
func TestCompressWireExample(t *testing.T) {
	pkt := buildPacket(IPv6Fields{
		NextHeader: UDPProtocolNumber,
		HopLimit:   64,
		SrcAddr:    linkLocalFor(testSrcMacLong),
		DstAddr:    addr(0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
	}, &UDPFields{SrcPort: 0x1234, DstPort: 0x5678, Checksum: 0xbeef}, nil)

	var hdr [IPHCMaxHeaderSize]byte
	consumed, written, err := Compress(noContexts, pkt, testSrcMacLong, testDstMacLong, hdr[:])
	if err != nil {
		t.Fatalf("Compress(...) = %s", err)
	}
	if consumed != IPv6MinimumSize+UDPMinimumSize {
		t.Errorf("got consumed = %d, want %d", consumed, IPv6MinimumSize+UDPMinimumSize)
	}
	want := []byte{
		0x7e,       // dispatch, TF elided, NH compressed, HLIM 64
		0x3b,       // source elided from the MAC, multicast, DAM 11
		0x01,       // low byte of ff02::1
		0xf0,       // UDP NHC, ports and checksum inline
		0x12, 0x34, // source port
		0x56, 0x78, // destination port
		0xbe, 0xef, // checksum
	}
	if diff := cmp.Diff(want, hdr[:written]); diff != "" {
		t.Errorf("wire bytes mismatch (-want +got):\n%s", diff)
	}
}

// Compress never elides the UDP checksum, but Decompress accepts the
// elided form and must rebuild a checksum that verifies.
func TestDecompressElidedChecksum(t *testing.T) {
	payload := []byte{0x10, 0x20, 0x30, 0x40, 0x55}
	compressed := []byte{
		0x7e, // TF elided, NH compressed, HLIM 64
		0x3b, // source elided from the MAC, multicast, DAM 11
		0x01, // ff02::1
		0xf7, // UDP NHC, checksum elided, ports four bit
		0x12, // ports f0b1, f0b2
	}
	compressed = append(compressed, payload...)

	out := make([]byte, IPv6MinimumMTU)
	consumed, written, err := Decompress(noContexts, compressed, testSrcMacLong, testDstMacLong, out, 0, false)
	if err != nil {
		t.Fatalf("Decompress(...) = %s", err)
	}
	if want := IPv6MinimumSize + UDPMinimumSize; written != want {
		t.Fatalf("got written = %d, want %d", written, want)
	}

	ip := IPv6(out)
	udp := UDP(out[IPv6MinimumSize:])
	if got, want := udp.SourcePort(), uint16(0xf0b1); got != want {
		t.Errorf("got source port %#x, want %#x", got, want)
	}
	if got, want := udp.DestinationPort(), uint16(0xf0b2); got != want {
		t.Errorf("got destination port %#x, want %#x", got, want)
	}
	if got, want := udp.Length(), uint16(UDPMinimumSize+len(payload)); got != want {
		t.Errorf("got udp length %d, want %d", got, want)
	}

	// The rebuilt checksum must verify over the pseudo-header, the UDP
	// header, and the payload.
	xsum := checksum.PseudoHeaderChecksum(UDPProtocolNumber, ip.SourceAddress(), ip.DestinationAddress(), uint32(udp.Length()))
	xsum = checksum.Checksum(compressed[consumed:], xsum)
	if got := udp.CalculateChecksum(xsum); got != 0xffff {
		t.Errorf("rebuilt checksum does not verify, residue %#x", got)
	}
}

func TestDecompressFragmentUsesDatagramSize(t *testing.T) {
	pkt := buildPacket(IPv6Fields{
		NextHeader: UDPProtocolNumber,
		HopLimit:   64,
		SrcAddr:    linkLocalFor(testSrcMacLong),
		DstAddr:    addr(0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01),
	}, &UDPFields{SrcPort: 0x1234, DstPort: 0x5678, Checksum: 0xbeef}, make([]byte, 300))

	var hdr [IPHCMaxHeaderSize]byte
	consumed, written, err := Compress(noContexts, pkt, testSrcMacLong, testDstMacLong, hdr[:])
	if err != nil {
		t.Fatalf("Compress(...) = %s", err)
	}

	// Hand the decompressor only the compressed header, the way a first
	// fragment would arrive, and let the declared datagram size supply
	// the payload length.
	out := make([]byte, IPv6MinimumMTU)
	_, dwritten, err := Decompress(noContexts, hdr[:written], testSrcMacLong, testDstMacLong, out, uint16(len(pkt)), true)
	if err != nil {
		t.Fatalf("Decompress(...) = %s", err)
	}
	if dwritten != consumed {
		t.Errorf("got written = %d, want %d", dwritten, consumed)
	}
	ip := IPv6(out)
	if got, want := ip.PayloadLength(), uint16(len(pkt)-IPv6MinimumSize); got != want {
		t.Errorf("got payload length %d, want %d", got, want)
	}
	if got, want := UDP(out[IPv6MinimumSize:]).Length(), uint16(len(pkt)-IPv6MinimumSize); got != want {
		t.Errorf("got udp length %d, want %d", got, want)
	}
}

func TestDecompressHopByHopHeader(t *testing.T) {
	src := addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01)
	dst := addr(0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02)

	compressed := []byte{
		0x7e, // TF elided, NH compressed, HLIM 64
		0x00, // both addresses fully inline
	}
	compressed = append(compressed, src[:]...)
	compressed = append(compressed, dst[:]...)
	compressed = append(compressed,
		0xe0,         // ext NHC, hop-by-hop, next header inline
		NoNextHeader, // following header
		6,            // content length
		0x01, 0x04, 0, 0, 0, 0, // one PadN option filling the header
	)

	out := make([]byte, IPv6MinimumMTU)
	consumed, written, err := Decompress(noContexts, compressed, testSrcMacLong, testDstMacLong, out, 0, false)
	if err != nil {
		t.Fatalf("Decompress(...) = %s", err)
	}
	if consumed != len(compressed) {
		t.Errorf("got consumed = %d, want %d", consumed, len(compressed))
	}
	if want := IPv6MinimumSize + 8; written != want {
		t.Fatalf("got written = %d, want %d", written, want)
	}
	ip := IPv6(out)
	if got := ip.NextHeader(); got != HopByHopExtHdr {
		t.Errorf("got next header %d, want %d", got, HopByHopExtHdr)
	}
	wantExt := []byte{NoNextHeader, 0, 0x01, 0x04, 0, 0, 0, 0}
	if diff := cmp.Diff(wantExt, out[IPv6MinimumSize:written]); diff != "" {
		t.Errorf("extension header mismatch (-want +got):\n%s", diff)
	}
	if got, want := ip.PayloadLength(), uint16(8); got != want {
		t.Errorf("got payload length %d, want %d", got, want)
	}
}

func TestDecompressIPv6Encapsulation(t *testing.T) {
	outer := []byte{
		0x7e, // TF elided, NH compressed, HLIM 64
		0x33, // source and destination elided from the MACs
		0xee, // ext NHC, IPv6 encapsulation
	}
	inner := []byte{
		0x7a, // TF elided, NH inline, HLIM 64
		0x33,
		58, // ICMPv6
	}
	payload := []byte{1, 2, 3, 4}
	compressed := append(append(outer, inner...), payload...)

	out := make([]byte, IPv6MinimumMTU)
	consumed, written, err := Decompress(noContexts, compressed, testSrcMacLong, testDstMacLong, out, 0, false)
	if err != nil {
		t.Fatalf("Decompress(...) = %s", err)
	}
	if consumed != len(outer)+len(inner) {
		t.Errorf("got consumed = %d, want %d", consumed, len(outer)+len(inner))
	}
	if want := 2 * IPv6MinimumSize; written != want {
		t.Fatalf("got written = %d, want %d", written, want)
	}

	outerIP := IPv6(out)
	innerIP := IPv6(out[IPv6MinimumSize:])
	if got := outerIP.NextHeader(); got != IPv6EncapsulationHeader {
		t.Errorf("got outer next header %d, want %d", got, IPv6EncapsulationHeader)
	}
	if got, want := outerIP.PayloadLength(), uint16(IPv6MinimumSize+len(payload)); got != want {
		t.Errorf("got outer payload length %d, want %d", got, want)
	}
	if got := innerIP.NextHeader(); got != 58 {
		t.Errorf("got inner next header %d, want 58", got)
	}
	if got, want := innerIP.PayloadLength(), uint16(len(payload)); got != want {
		t.Errorf("got inner payload length %d, want %d", got, want)
	}
	if got, want := innerIP.SourceAddress(), linkLocalFor(testSrcMacLong); got != want {
		t.Errorf("got inner source %s, want %s", got, want)
	}
}

func TestCompressErrors(t *testing.T) {
	tests := []struct {
		name    string
		pkt     []byte
		buf     []byte
		wantErr *lowpan.Error
	}{
		{
			name:    "truncated ipv6 header",
			pkt:     make([]byte, IPv6MinimumSize-1),
			buf:     make([]byte, IPHCMaxHeaderSize),
			wantErr: lowpan.ErrMalformedHeader,
		},
		{
			name: "udp claimed but missing",
			pkt: buildPacket(IPv6Fields{
				NextHeader: UDPProtocolNumber,
				HopLimit:   64,
			}, nil, nil),
			buf:     make([]byte, IPHCMaxHeaderSize),
			wantErr: lowpan.ErrMalformedHeader,
		},
		{
			name: "output too small",
			pkt: buildPacket(IPv6Fields{
				NextHeader: 58,
				HopLimit:   64,
			}, nil, nil),
			buf:     make([]byte, IPHCMaxHeaderSize-1),
			wantErr: lowpan.ErrNoBufferSpace,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, _, err := Compress(noContexts, test.pkt, testSrcMacLong, testDstMacLong, test.buf); err != test.wantErr {
				t.Errorf("got Compress(...) = %s, want %s", err, test.wantErr)
			}
		})
	}
}

func TestDecompressErrors(t *testing.T) {
	out := make([]byte, IPv6MinimumMTU)
	tests := []struct {
		name    string
		buf     []byte
		ctxs    staticContexts
		wantErr *lowpan.Error
	}{
		{
			name:    "empty",
			buf:     nil,
			wantErr: lowpan.ErrMalformedHeader,
		},
		{
			name:    "not iphc",
			buf:     []byte{0x41, 0x00},
			wantErr: lowpan.ErrMalformedHeader,
		},
		{
			name:    "truncated inline address",
			buf:     []byte{0x7a, 0x00, 58},
			wantErr: lowpan.ErrMalformedHeader,
		},
		{
			name:    "unknown nhc encoding",
			buf:     []byte{0x7e, 0x33, 0xea},
			wantErr: lowpan.ErrUnknownEncoding,
		},
		{
			name:    "missing context",
			buf:     []byte{0x7a, 0xd0, 0x90, 58, 0xaa, 0xbb, 0xcc, 0xdd, 0x11, 0x22, 0x33, 0x44},
			wantErr: lowpan.ErrNoContext,
		},
		{
			name:    "reserved stateful multicast mode",
			buf:     []byte{0x7a, 0x3d, 58, 0x01},
			wantErr: lowpan.ErrUnknownEncoding,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, _, err := Decompress(test.ctxs, test.buf, testSrcMacLong, testDstMacLong, out, 0, false); err != test.wantErr {
				t.Errorf("got Decompress(...) = %s, want %s", err, test.wantErr)
			}
		})
	}
}
