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

// Package faketime provides a fake clock that implements the
// lowpan.Clock interface.
package faketime

import (
	"time"

	"github.com/dpjacques/clockwork"

	"sixlowpan.dev/sixlowpan/pkg/lowpan"
)

// NullClock implements a clock that never advances.
type NullClock struct{}

var _ lowpan.Clock = (*NullClock)(nil)

// NowMonotonic implements lowpan.Clock.NowMonotonic.
func (*NullClock) NowMonotonic() int64 {
	return 0
}

// ManualClock implements lowpan.Clock and only advances manually with
// the Advance method.
type ManualClock struct {
	clock clockwork.FakeClock
}

var _ lowpan.Clock = (*ManualClock)(nil)

// NewManualClock creates a new ManualClock instance.
func NewManualClock() *ManualClock {
	return &ManualClock{clock: clockwork.NewFakeClock()}
}

// NowMonotonic implements lowpan.Clock.NowMonotonic.
func (mc *ManualClock) NowMonotonic() int64 {
	return mc.clock.Now().UnixNano()
}

// Advance moves the clock forward by d.
func (mc *ManualClock) Advance(d time.Duration) {
	mc.clock.Advance(d)
}
