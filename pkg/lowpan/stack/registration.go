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

// Package stack provides the 6LoWPAN adaptation layer: the compression
// context table, the outbound fragmentation engine, and the reassembly
// manager that sits between an IPv6 network layer and a low-power
// wireless MAC.
//
// The layer is single-threaded and callback-driven. Nothing here blocks
// or suspends; reassembly "waiting" is state retained across independent
// invocations, and every mutation happens synchronously inside the call
// that triggers it. The MAC boundary is two-phase: the layer submits
// frames and tolerates transmit completions arriving between any two of
// its own invocations.
package stack

import (
	"sixlowpan.dev/sixlowpan/pkg/lowpan"
)

// FrameInfo describes the link-layer addressing and security of an
// outbound frame.
type FrameInfo struct {
	SrcPAN   lowpan.PANID
	DstPAN   lowpan.PANID
	SrcAddr  lowpan.MacAddress
	DstAddr  lowpan.MacAddress
	Security *lowpan.Security
}

// Frame is a single link frame under construction. A Frame is produced by
// MACEndpoint.PrepareFrame and consumed by MACEndpoint.Transmit.
type Frame interface {
	// RemainingCapacity returns the number of payload bytes the frame
	// can still take.
	RemainingCapacity() int

	// AppendPayload appends b to the frame payload. It returns
	// ErrNoBufferSpace if b does not fit.
	AppendPayload(b []byte) *lowpan.Error
}

// MACEndpoint is the link-layer device the adaptation layer writes to.
// Implementations are radios or test fixtures; the layer assumes nothing
// beyond these operations.
type MACEndpoint interface {
	// PrepareFrame takes ownership of buf and returns a Frame backed by
	// it. On failure ownership of buf stays with the caller.
	PrepareFrame(buf []byte, info FrameInfo) (Frame, *lowpan.Error)

	// Transmit queues the frame for transmission. ErrBusy means the
	// radio cannot take the frame now; ownership returns to the caller,
	// who decides whether to retry. Completion is signalled out of band
	// by the MAC driver.
	Transmit(f Frame) *lowpan.Error
}

// FrameDispatcher is implemented by the Manager. The MAC driver invokes
// it once per received frame, after stripping the link-layer header.
type FrameDispatcher interface {
	// DeliverFrame hands one inbound frame payload to the adaptation
	// layer along with the link-layer addresses it arrived with.
	DeliverFrame(src, dst lowpan.MacAddress, frame []byte, linkQuality uint8)
}

// RxClient receives completed datagrams. The Manager invokes it exactly
// once per datagram, for success and failure alike. The buffer is only
// valid for the duration of the call; the client must copy what it
// keeps.
type RxClient interface {
	ReceivedDatagram(buf []byte, length int, result *lowpan.Error)
}
