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

package stack

import (
	"fmt"
	"time"

	"sixlowpan.dev/sixlowpan/pkg/lowpan"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/header"
)

const (
	// ReassemblyTimeout is how long a slot may stay busy without
	// completing before a scan reclaims it.
	ReassemblyTimeout = 60 * time.Second

	// rxBitmapSize is the size of the completion bitmap: one bit per
	// 8-byte unit of the largest datagram a slot can hold.
	rxBitmapSize = header.IPv6MinimumMTU / header.FragmentGranularity / 8
)

// RxState is one reassembly slot: the buffer for a single in-flight
// inbound datagram, its completion bitmap, and the identity of the
// datagram it is collecting. Slots are registered with a Manager at boot
// and cycle between idle and busy for the life of the link.
type RxState struct {
	buf    []byte
	bitmap [rxBitmapSize]byte

	src  lowpan.MacAddress
	dst  lowpan.MacAddress
	tag  uint16
	size uint16

	busy  bool
	start int64
}

// NewRxState returns a slot backed by buf, which must hold a full
// 1280-byte datagram. The buffer is exclusively owned by the slot while
// busy and is handed to the client callback on completion.
func NewRxState(buf []byte) *RxState {
	if len(buf) < header.IPv6MinimumMTU {
		panic(fmt.Sprintf("stack: reassembly buffer is %d bytes, need %d", len(buf), header.IPv6MinimumMTU))
	}
	return &RxState{buf: buf}
}

// matches reports whether the slot is collecting the datagram identified
// by the given tuple.
func (r *RxState) matches(src, dst lowpan.MacAddress, tag, size uint16) bool {
	return r.src == src && r.dst == dst && r.tag == tag && r.size == size
}

func (r *RxState) expired(now int64) bool {
	return r.busy && now-r.start > int64(ReassemblyTimeout)
}

// claim initializes the slot for a new datagram: bitmap cleared,
// timestamp recorded.
func (r *RxState) claim(src, dst lowpan.MacAddress, tag, size uint16, now int64) {
	r.src = src
	r.dst = dst
	r.tag = tag
	r.size = size
	r.busy = true
	r.start = now
	r.bitmap = [rxBitmapSize]byte{}
}

func (r *RxState) release() {
	r.busy = false
}

// markRange records receipt of datagram bytes [offset, offset+length) at
// 8-byte granularity. A unit already marked means a duplicate or
// overlapping fragment; the whole reassembly is considered corrupt and
// markRange returns false.
func (r *RxState) markRange(offset, length int) bool {
	startBit := offset / header.FragmentGranularity
	endBit := (offset + length + header.FragmentGranularity - 1) / header.FragmentGranularity
	for bit := startBit; bit < endBit; bit++ {
		idx := bit / 8
		mask := byte(1) << (bit % 8)
		if r.bitmap[idx]&mask != 0 {
			return false
		}
		r.bitmap[idx] |= mask
	}
	return true
}

// complete reports whether the bitmap covers the whole datagram.
func (r *RxState) complete() bool {
	bits := (int(r.size) + header.FragmentGranularity - 1) / header.FragmentGranularity
	for bit := 0; bit < bits; bit++ {
		if r.bitmap[bit/8]&(byte(1)<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}
