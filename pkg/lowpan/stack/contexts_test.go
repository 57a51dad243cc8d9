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
	"testing"

	"github.com/google/go-cmp/cmp"

	"sixlowpan.dev/sixlowpan/pkg/lowpan"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/header"
)

var meshLocal = header.Context{
	Prefix:    lowpan.Address{0xfd, 0x00, 0x0d, 0xb8},
	PrefixLen: 64,
	ID:        0,
	Compress:  true,
}

func testContextTable() *ContextTable {
	return NewContextTable(meshLocal)
}

func TestNewContextTableRequiresZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewContextTable with a nonzero id did not panic")
		}
	}()
	NewContextTable(header.Context{ID: 1})
}

func TestContextFromID(t *testing.T) {
	tbl := testContextTable()
	other := header.Context{
		Prefix:    lowpan.Address{0x20, 0x01, 0x0d, 0xb8},
		PrefixLen: 64,
		ID:        5,
		Compress:  true,
	}
	if err := tbl.Add(other); err != nil {
		t.Fatalf("Add(...) = %s", err)
	}

	if got, ok := tbl.ContextFromID(0); !ok || got != meshLocal {
		t.Errorf("got ContextFromID(0) = (%+v, %t), want (%+v, true)", got, ok, meshLocal)
	}
	if got, ok := tbl.ContextFromID(5); !ok || got != other {
		t.Errorf("got ContextFromID(5) = (%+v, %t), want (%+v, true)", got, ok, other)
	}
	if _, ok := tbl.ContextFromID(6); ok {
		t.Error("got ContextFromID(6) = (_, true), want false")
	}
	if _, ok := tbl.ContextFromID(200); ok {
		t.Error("got ContextFromID(200) = (_, true), want false")
	}
}

func TestAddRejectsLargeID(t *testing.T) {
	tbl := testContextTable()
	if err := tbl.Add(header.Context{ID: header.ContextIDMax + 1}); err != lowpan.ErrInvalidParameters {
		t.Errorf("got Add(...) = %s, want %s", err, lowpan.ErrInvalidParameters)
	}
}

func TestContextFromAddrLongestPrefix(t *testing.T) {
	tbl := testContextTable()
	wide := header.Context{
		Prefix:    lowpan.Address{0xfd, 0x00},
		PrefixLen: 16,
		ID:        1,
		Compress:  true,
	}
	if err := tbl.Add(wide); err != nil {
		t.Fatalf("Add(...) = %s", err)
	}

	// An address inside both prefixes resolves to the longer one.
	inBoth := lowpan.Address{0xfd, 0x00, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01}
	if got, ok := tbl.ContextFromAddr(inBoth); !ok || got.ID != 0 {
		t.Errorf("got ContextFromAddr(%s) = (id %d, %t), want (id 0, true)", inBoth, got.ID, ok)
	}

	// An address only inside the wide prefix resolves to it.
	inWide := lowpan.Address{0xfd, 0x00, 0xff, 0xff, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01}
	if got, ok := tbl.ContextFromAddr(inWide); !ok || got.ID != 1 {
		t.Errorf("got ContextFromAddr(%s) = (id %d, %t), want (id 1, true)", inWide, got.ID, ok)
	}

	outside := lowpan.Address{0x20, 0x01, 15: 0x01}
	if _, ok := tbl.ContextFromAddr(outside); ok {
		t.Errorf("got ContextFromAddr(%s) = (_, true), want false", outside)
	}
}

func TestContextFromPrefix(t *testing.T) {
	tbl := testContextTable()

	if got, ok := tbl.ContextFromPrefix(meshLocal.Prefix[:8], 64); !ok || got.ID != 0 {
		t.Errorf("got ContextFromPrefix(...) = (id %d, %t), want (id 0, true)", got.ID, ok)
	}
	// Same bytes, different length: no match.
	if _, ok := tbl.ContextFromPrefix(meshLocal.Prefix[:8], 48); ok {
		t.Error("got ContextFromPrefix(..., 48) = (_, true), want false")
	}
}

func TestContextZero(t *testing.T) {
	tbl := testContextTable()
	if diff := cmp.Diff(meshLocal, tbl.ContextZero()); diff != "" {
		t.Errorf("ContextZero() mismatch (-want +got):\n%s", diff)
	}
}
