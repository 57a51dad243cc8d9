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

// Package channel provides the implementation of a channel-based MAC
// endpoint. Such endpoints store outbound frames in a channel and allow
// injection of inbound frames; tests and demos use them in place of a
// radio driver.
package channel

import (
	"sixlowpan.dev/sixlowpan/pkg/lowpan"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/stack"
)

// DefaultMTU is the payload capacity of an IEEE 802.15.4 frame once the
// maximal link-layer header and footer are accounted for.
const DefaultMTU = 102

// Frame is an outbound frame under construction. It implements
// stack.Frame over the caller-supplied buffer.
type Frame struct {
	// Info is the addressing the frame was prepared with.
	Info stack.FrameInfo

	buf  []byte
	used int
}

var _ stack.Frame = (*Frame)(nil)

// RemainingCapacity implements stack.Frame.RemainingCapacity.
func (f *Frame) RemainingCapacity() int {
	return len(f.buf) - f.used
}

// AppendPayload implements stack.Frame.AppendPayload.
func (f *Frame) AppendPayload(b []byte) *lowpan.Error {
	if len(b) > f.RemainingCapacity() {
		return lowpan.ErrNoBufferSpace
	}
	copy(f.buf[f.used:], b)
	f.used += len(b)
	return nil
}

// Payload returns the bytes appended so far.
func (f *Frame) Payload() []byte {
	return f.buf[:f.used]
}

// Endpoint is a channel-backed MAC endpoint.
type Endpoint struct {
	// C is the outbound frame channel.
	C chan *Frame

	mtu        int
	dispatcher stack.FrameDispatcher
}

var _ stack.MACEndpoint = (*Endpoint)(nil)

// New creates a new channel endpoint. size is the depth of the outbound
// queue; mtu caps the payload of each prepared frame.
func New(size int, mtu int) *Endpoint {
	return &Endpoint{
		C:   make(chan *Frame, size),
		mtu: mtu,
	}
}

// Attach registers the dispatcher inbound frames are delivered to.
func (e *Endpoint) Attach(d stack.FrameDispatcher) {
	e.dispatcher = d
}

// PrepareFrame implements stack.MACEndpoint.PrepareFrame.
func (e *Endpoint) PrepareFrame(buf []byte, info stack.FrameInfo) (stack.Frame, *lowpan.Error) {
	if len(buf) == 0 {
		return nil, lowpan.ErrNoBufferSpace
	}
	if len(buf) > e.mtu {
		buf = buf[:e.mtu]
	}
	return &Frame{Info: info, buf: buf}, nil
}

// Transmit implements stack.MACEndpoint.Transmit. Frames queue on C;
// a full queue reports ErrBusy, as a radio still sending would.
func (e *Endpoint) Transmit(f stack.Frame) *lowpan.Error {
	frame, ok := f.(*Frame)
	if !ok {
		return lowpan.ErrInvalidParameters
	}
	select {
	case e.C <- frame:
		return nil
	default:
		return lowpan.ErrBusy
	}
}

// InjectInbound delivers an inbound frame to the attached dispatcher.
func (e *Endpoint) InjectInbound(src, dst lowpan.MacAddress, frame []byte, linkQuality uint8) {
	if e.dispatcher != nil {
		e.dispatcher.DeliverFrame(src, dst, frame, linkQuality)
	}
}

// Drain removes all outbound frames from the queue and returns how many
// there were.
func (e *Endpoint) Drain() int {
	c := 0
	for {
		select {
		case <-e.C:
			c++
		default:
			return c
		}
	}
}
