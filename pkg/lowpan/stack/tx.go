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
	"sixlowpan.dev/sixlowpan/pkg/lowpan"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/header"
)

// TxState is the outbound fragmentation engine. One datagram is in
// flight at a time, serialized by the busy flag; a concurrent Init
// returns ErrBusy synchronously rather than queuing.
//
// The caller drives the engine: after the MAC signals completion of the
// previous frame it calls NextFragment again until isLast is true.
type TxState struct {
	manager *Manager

	info    FrameInfo
	tag     uint16
	size    uint16
	offset  int
	busy    bool
	started bool

	// scratch holds the compressed header between its production and
	// its copy into the first frame.
	scratch [header.IPHCMaxHeaderSize]byte
}

// NewTxState returns a fragmentation engine drawing datagram tags and
// compression contexts from m.
func NewTxState(m *Manager) *TxState {
	return &TxState{manager: m}
}

// Init starts a new outbound datagram addressed to dst. It returns
// ErrBusy while a previous datagram is still being fragmented.
func (t *TxState) Init(src, dst lowpan.MacAddress, panID lowpan.PANID, security *lowpan.Security) *lowpan.Error {
	if t.busy {
		return lowpan.ErrBusy
	}
	t.info = FrameInfo{
		SrcPAN:   panID,
		DstPAN:   panID,
		SrcAddr:  src,
		DstAddr:  dst,
		Security: security,
	}
	t.busy = true
	t.started = false
	t.offset = 0
	t.size = 0
	return nil
}

// NextFragment produces the next link frame of datagram in frameBuf,
// prepared through mac. It returns the frame and whether it was the
// final one. On error ownership of frameBuf stays with the caller and
// the datagram's progress is unchanged.
//
// The first call compresses the header and prepends a fragmentation
// header only if the datagram cannot travel in a single frame. Every
// fragment except the last covers a multiple of 8 bytes of the
// uncompressed datagram.
func (t *TxState) NextFragment(datagram []byte, frameBuf []byte, mac MACEndpoint) (Frame, bool, *lowpan.Error) {
	if !t.busy {
		return nil, false, lowpan.ErrInvalidParameters
	}
	if !t.started {
		return t.firstFragment(datagram, frameBuf, mac)
	}
	if int(t.size) != len(datagram) {
		// The caller's datagram no longer matches the length recorded
		// when fragmentation started.
		return nil, false, lowpan.ErrBadBuffer
	}
	return t.nextFragment(datagram, frameBuf, mac)
}

func (t *TxState) firstFragment(datagram []byte, frameBuf []byte, mac MACEndpoint) (Frame, bool, *lowpan.Error) {
	if len(datagram) > header.FragmentDatagramSizeMax {
		return nil, false, lowpan.ErrMessageTooLong
	}

	consumed, written, err := header.Compress(t.manager.contexts, datagram, t.info.SrcAddr, t.info.DstAddr, t.scratch[:])
	if err != nil {
		return nil, false, err
	}

	frame, err := mac.PrepareFrame(frameBuf, t.info)
	if err != nil {
		return nil, false, err
	}

	t.size = uint16(len(datagram))
	t.tag = t.manager.nextTag()

	capacity := frame.RemainingCapacity()
	rest := datagram[consumed:]
	if written+len(rest) <= capacity {
		// Single frame, no fragmentation header.
		if err := frame.AppendPayload(t.scratch[:written]); err != nil {
			return nil, false, err
		}
		if err := frame.AppendPayload(rest); err != nil {
			return nil, false, err
		}
		t.offset = len(datagram)
		t.busy = false
		return frame, true, nil
	}

	if capacity < header.Frag1HeaderSize+written {
		// Not even the mandatory headers fit.
		return nil, false, lowpan.ErrNoBufferSpace
	}
	// The 8-bit offset field counts 8-byte units, so a fragmented
	// datagram must start every fragment at or below offset 2040.
	if len(datagram) > (1<<8)*header.FragmentGranularity {
		return nil, false, lowpan.ErrMessageTooLong
	}
	copyLen := capacity - header.Frag1HeaderSize - written
	if copyLen > len(rest) {
		copyLen = len(rest)
	}
	// The fragment boundary must land on an 8-byte multiple of the
	// uncompressed datagram.
	copyLen -= (consumed + copyLen) % header.FragmentGranularity

	var fragHdr [header.Frag1HeaderSize]byte
	header.Frag1(fragHdr[:]).Encode(&header.FragmentFields{
		DatagramSize: t.size,
		DatagramTag:  t.tag,
	})
	if err := frame.AppendPayload(fragHdr[:]); err != nil {
		return nil, false, err
	}
	if err := frame.AppendPayload(t.scratch[:written]); err != nil {
		return nil, false, err
	}
	if err := frame.AppendPayload(rest[:copyLen]); err != nil {
		return nil, false, err
	}
	t.offset = consumed + copyLen
	t.started = true
	return frame, false, nil
}

func (t *TxState) nextFragment(datagram []byte, frameBuf []byte, mac MACEndpoint) (Frame, bool, *lowpan.Error) {
	frame, err := mac.PrepareFrame(frameBuf, t.info)
	if err != nil {
		return nil, false, err
	}

	capacity := frame.RemainingCapacity()
	if capacity < header.FragNHeaderSize+header.FragmentGranularity {
		return nil, false, lowpan.ErrNoBufferSpace
	}

	remaining := len(datagram) - t.offset
	copyLen := capacity - header.FragNHeaderSize
	isLast := false
	if copyLen >= remaining {
		copyLen = remaining
		isLast = true
	} else {
		copyLen &^= header.FragmentGranularity - 1
	}

	var fragHdr [header.FragNHeaderSize]byte
	header.FragN(fragHdr[:]).Encode(&header.FragmentFields{
		DatagramSize:   t.size,
		DatagramTag:    t.tag,
		DatagramOffset: uint16(t.offset),
	})
	if err := frame.AppendPayload(fragHdr[:]); err != nil {
		return nil, false, err
	}
	if err := frame.AppendPayload(datagram[t.offset : t.offset+copyLen]); err != nil {
		return nil, false, err
	}

	t.offset += copyLen
	if isLast {
		t.busy = false
		t.started = false
	}
	return frame, isLast, nil
}
