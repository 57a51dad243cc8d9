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

	"sixlowpan.dev/sixlowpan/pkg/lowpan"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/header"
)

// ContextTable is the fixed-size store of compression contexts for one
// link. Population happens at configuration time; the receive and
// transmit paths only read it.
type ContextTable struct {
	contexts [header.ContextIDMax + 1]header.Context
	present  [header.ContextIDMax + 1]bool
}

var _ header.ContextStore = (*ContextTable)(nil)

// NewContextTable returns a table seeded with the link's mesh-local
// prefix as context 0. It panics if meshLocal does not carry ID 0;
// context 0 resolving is a configuration invariant of the whole layer.
func NewContextTable(meshLocal header.Context) *ContextTable {
	if meshLocal.ID != 0 {
		panic(fmt.Sprintf("stack: mesh-local context has id %d, want 0", meshLocal.ID))
	}
	t := &ContextTable{}
	t.contexts[0] = meshLocal
	t.present[0] = true
	return t
}

// Add installs a context. Installing over an existing identifier
// replaces it.
func (t *ContextTable) Add(ctx header.Context) *lowpan.Error {
	if ctx.ID > header.ContextIDMax {
		return lowpan.ErrInvalidParameters
	}
	t.contexts[ctx.ID] = ctx
	t.present[ctx.ID] = true
	return nil
}

// ContextFromAddr implements header.ContextStore.ContextFromAddr. When
// several contexts cover addr the longest prefix wins.
func (t *ContextTable) ContextFromAddr(addr lowpan.Address) (header.Context, bool) {
	var best header.Context
	found := false
	for i, ctx := range t.contexts {
		if !t.present[i] || !ctx.Matches(addr) {
			continue
		}
		if !found || ctx.PrefixLen > best.PrefixLen {
			best = ctx
			found = true
		}
	}
	return best, found
}

// ContextFromID implements header.ContextStore.ContextFromID.
func (t *ContextTable) ContextFromID(id uint8) (header.Context, bool) {
	if id > header.ContextIDMax || !t.present[id] {
		return header.Context{}, false
	}
	return t.contexts[id], true
}

// ContextFromPrefix implements header.ContextStore.ContextFromPrefix.
func (t *ContextTable) ContextFromPrefix(prefix []byte, prefixLen uint8) (header.Context, bool) {
	for i, ctx := range t.contexts {
		if t.present[i] && ctx.PrefixLen == prefixLen && header.PrefixesMatch(ctx.Prefix[:], prefix, prefixLen) {
			return ctx, true
		}
	}
	return header.Context{}, false
}

// ContextZero returns the mesh-local context. Its absence is a broken
// configuration, not a runtime condition, so failure panics.
func (t *ContextTable) ContextZero() header.Context {
	if !t.present[0] {
		panic("stack: context 0 missing")
	}
	return t.contexts[0]
}
