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
	"sixlowpan.dev/sixlowpan/pkg/lowpan"
)

const (
	// ContextIDMax is the largest context identifier the 4-bit CID
	// extension fields can carry.
	ContextIDMax = 15
)

// Context is a shared-prefix compression context, per RFC 6282. Contexts
// are immutable after construction; mutation is a configuration concern.
type Context struct {
	// Prefix is the shared IPv6 prefix, zero-padded to 16 bytes.
	Prefix lowpan.Address

	// PrefixLen is the length of the prefix in bits, 0-128.
	PrefixLen uint8

	// ID is the context identifier, 0-15. Context 0 is the link's
	// mesh-local prefix and must always be present in a store.
	ID uint8

	// Compress indicates whether the compressor may elide addresses
	// under this context. A non-compressible context still expands on
	// receive.
	Compress bool
}

// Matches returns true if addr falls under the context's prefix.
func (c Context) Matches(addr lowpan.Address) bool {
	return PrefixesMatch(c.Prefix[:], addr[:], c.PrefixLen)
}

// PrefixesMatch returns true if the first prefixLen bits of a and b are
// equal.
func PrefixesMatch(a, b []byte, prefixLen uint8) bool {
	bytes := int(prefixLen / 8)
	if bytes > len(a) || bytes > len(b) {
		return false
	}
	for i := 0; i < bytes; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	if bits := prefixLen % 8; bits != 0 {
		if bytes >= len(a) || bytes >= len(b) {
			return false
		}
		mask := byte(0xff) << (8 - bits)
		return a[bytes]&mask == b[bytes]&mask
	}
	return true
}

// ContextStore resolves compression contexts for the header codec. The
// concrete store lives in the stack package; the codec only needs the
// lookups below.
type ContextStore interface {
	// ContextFromAddr returns the context covering addr, if any.
	ContextFromAddr(addr lowpan.Address) (Context, bool)

	// ContextFromID returns the context with the given identifier, if
	// present.
	ContextFromID(id uint8) (Context, bool)

	// ContextFromPrefix returns a context whose prefix equals the given
	// prefix of prefixLen bits, if present.
	ContextFromPrefix(prefix []byte, prefixLen uint8) (Context, bool)
}
