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

// Manager is the per-link facade of the adaptation layer. It owns the
// context table, the datagram tag counter, and the reassembly slot pool,
// and routes each inbound frame to the header codec and/or a slot.
// Completed datagrams go to the one registered RxClient, exactly once
// each, for success and failure alike.
type Manager struct {
	clock    lowpan.Clock
	contexts *ContextTable
	client   RxClient
	slots    []*RxState
	tag      uint16
}

var _ FrameDispatcher = (*Manager)(nil)

// NewManager returns a Manager for one link. Reassembly slots are
// registered separately with AddReassemblySlot.
func NewManager(contexts *ContextTable, clock lowpan.Clock) *Manager {
	if clock == nil {
		panic("stack: nil clock")
	}
	return &Manager{
		clock:    clock,
		contexts: contexts,
	}
}

// SetRxClient registers the single receiver of completed datagrams.
func (m *Manager) SetRxClient(c RxClient) {
	m.client = c
}

// AddReassemblySlot registers a slot with the pool. This is boot-time
// pool construction, not runtime allocation.
func (m *Manager) AddReassemblySlot(rs *RxState) {
	m.slots = append(m.slots, rs)
}

// Contexts returns the link's context table.
func (m *Manager) Contexts() *ContextTable {
	return m.contexts
}

// nextTag returns a fresh datagram tag. The counter wraps and skips 0.
func (m *Manager) nextTag() uint16 {
	m.tag++
	if m.tag == 0 {
		m.tag = 1
	}
	return m.tag
}

// DeliverFrame implements FrameDispatcher.DeliverFrame. It classifies
// the frame by its leading dispatch bits and drives the codec and/or the
// reassembly pool. Frames that cannot be attributed to any datagram are
// dropped; there is no addressee for an unassociated inbound error.
func (m *Manager) DeliverFrame(src, dst lowpan.MacAddress, frame []byte, _ uint8) {
	switch {
	case len(frame) == 0:
		return
	case header.IsFrag1(frame):
		m.receiveFrag1(src, dst, frame)
	case header.IsFragN(frame):
		m.receiveFragN(src, dst, frame)
	default:
		m.receiveSingle(src, dst, frame)
	}
}

// receiveSingle handles an unfragmented frame: decompress if it carries
// the IPHC dispatch, copy verbatim if it is an uncompressed IPv6 frame,
// and deliver immediately.
func (m *Manager) receiveSingle(src, dst lowpan.MacAddress, frame []byte) {
	var payload []byte
	compressed := false
	switch {
	case header.IsIPHC(frame):
		compressed = true
		payload = frame
	case frame[0] == header.UncompressedIPv6Dispatch:
		payload = frame[1:]
	default:
		// Unknown dispatch.
		return
	}

	rs := m.claimSlot(src, dst, 0, 0)
	if rs == nil {
		return
	}

	total := 0
	if compressed {
		consumed, written, err := header.Decompress(m.contexts, payload, src, dst, rs.buf, 0, false)
		if err != nil {
			m.deliver(rs, 0, err)
			return
		}
		rest := payload[consumed:]
		if written+len(rest) > len(rs.buf) {
			m.deliver(rs, 0, lowpan.ErrNoBufferSpace)
			return
		}
		copy(rs.buf[written:], rest)
		total = written + len(rest)
	} else {
		if len(payload) > len(rs.buf) {
			m.deliver(rs, 0, lowpan.ErrNoBufferSpace)
			return
		}
		copy(rs.buf, payload)
		total = len(payload)
	}
	m.deliver(rs, total, nil)
}

// receiveFrag1 handles an initial fragment. A slot already matching the
// datagram is reused (a retransmitted first fragment); otherwise an
// idle or expired slot is claimed.
func (m *Manager) receiveFrag1(src, dst lowpan.MacAddress, frame []byte) {
	f := header.Frag1(frame)
	if !f.IsValid() {
		return
	}
	size := f.DatagramSize()
	tag := f.DatagramTag()
	if int(size) > header.IPv6MinimumMTU {
		return
	}

	rs := m.findActive(src, dst, tag, size)
	if rs == nil {
		rs = m.claimSlot(src, dst, tag, size)
		if rs == nil {
			return
		}
	}

	payload := f.Payload()
	var covered int
	switch {
	case header.IsIPHC(payload):
		consumed, written, err := header.Decompress(m.contexts, payload, src, dst, rs.buf, size, true)
		if err != nil {
			m.deliver(rs, 0, err)
			return
		}
		rest := payload[consumed:]
		if written+len(rest) > len(rs.buf) {
			m.deliver(rs, 0, lowpan.ErrNoBufferSpace)
			return
		}
		copy(rs.buf[written:], rest)
		covered = written + len(rest)
	case len(payload) > 0 && payload[0] == header.UncompressedIPv6Dispatch:
		payload = payload[1:]
		fallthrough
	default:
		if len(payload) > len(rs.buf) {
			m.deliver(rs, 0, lowpan.ErrNoBufferSpace)
			return
		}
		copy(rs.buf, payload)
		covered = len(payload)
	}

	m.markAndMaybeFinish(rs, 0, covered)
}

// receiveFragN handles an interior or final fragment. Only an already
// active slot may take it; reassembly can only be initiated by a first
// fragment, so an unmatched interior fragment is dropped.
func (m *Manager) receiveFragN(src, dst lowpan.MacAddress, frame []byte) {
	f := header.FragN(frame)
	if !f.IsValid() {
		return
	}
	rs := m.findActive(src, dst, f.DatagramTag(), f.DatagramSize())
	if rs == nil {
		return
	}

	offset := int(f.DatagramOffset())
	payload := f.Payload()
	if offset+len(payload) > int(rs.size) || offset+len(payload) > len(rs.buf) {
		// The fragment claims bytes beyond the datagram; drop it and
		// let the slot finish or expire on its own.
		return
	}
	copy(rs.buf[offset:], payload)
	m.markAndMaybeFinish(rs, offset, len(payload))
}

// markAndMaybeFinish records the covered range and delivers the datagram
// if the bitmap is now complete. An overlap aborts only this
// reassembly; other slots are unaffected.
func (m *Manager) markAndMaybeFinish(rs *RxState, offset, length int) {
	if !rs.markRange(offset, length) {
		m.deliver(rs, 0, lowpan.ErrFragmentOverlap)
		return
	}
	if rs.complete() {
		m.deliver(rs, int(rs.size), nil)
	}
}

// deliver releases the slot and invokes the client exactly once. The
// buffer is handed over for the duration of the callback only.
func (m *Manager) deliver(rs *RxState, length int, result *lowpan.Error) {
	rs.release()
	if m.client != nil {
		m.client.ReceivedDatagram(rs.buf, length, result)
	}
}

// findActive returns the busy slot matching the datagram tuple, if any.
// Stale slots found along the way are expired first, so a reassembly
// abandoned by its sender cannot swallow a fresh datagram's fragments.
func (m *Manager) findActive(src, dst lowpan.MacAddress, tag, size uint16) *RxState {
	m.expireStale()
	for _, rs := range m.slots {
		if rs.busy && rs.matches(src, dst, tag, size) {
			return rs
		}
	}
	return nil
}

// claimSlot returns an idle slot initialized for the given datagram, or
// nil if the pool is exhausted. The scan prefers slots that are idle
// outright; expiry of stale slots happens first, so an expired slot is
// idle by the time it is considered.
func (m *Manager) claimSlot(src, dst lowpan.MacAddress, tag, size uint16) *RxState {
	m.expireStale()
	for _, rs := range m.slots {
		if !rs.busy {
			rs.claim(src, dst, tag, size, m.clock.NowMonotonic())
			return rs
		}
	}
	return nil
}

// expireStale reclaims every slot past the reassembly timeout, notifying
// the client of the failure if one is registered. Aging is computed
// lazily; nothing runs between frames.
func (m *Manager) expireStale() {
	now := m.clock.NowMonotonic()
	for _, rs := range m.slots {
		if rs.expired(now) {
			m.deliver(rs, 0, lowpan.ErrTimeout)
		}
	}
}
