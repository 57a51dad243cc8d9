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

package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"

	"github.com/BurntSushi/toml"

	"sixlowpan.dev/sixlowpan/pkg/lowpan"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/header"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/link/channel"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/stack"
)

// fileConfig is the on-disk TOML shape.
//
//	mtu = 102
//	pan_id = 64206
//	src_mac = "0200000000000001"
//	dst_mac = "0600000000000002"
//
//	[[context]]
//	id = 0
//	prefix = "fd00:db8::"
//	prefix_len = 64
//	compress = true
type fileConfig struct {
	MTU      int             `toml:"mtu"`
	PANID    uint16          `toml:"pan_id"`
	SrcMac   string          `toml:"src_mac"`
	DstMac   string          `toml:"dst_mac"`
	Contexts []contextConfig `toml:"context"`
}

type contextConfig struct {
	ID        uint8  `toml:"id"`
	Prefix    string `toml:"prefix"`
	PrefixLen uint8  `toml:"prefix_len"`
	Compress  bool   `toml:"compress"`
}

// linkConfig is the parsed runtime view handed to the subcommands.
type linkConfig struct {
	mtu      int
	panID    lowpan.PANID
	srcMac   lowpan.MacAddress
	dstMac   lowpan.MacAddress
	contexts *stack.ContextTable
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		MTU:    channel.DefaultMTU,
		PANID:  0xface,
		SrcMac: "0200000000000001",
		DstMac: "0600000000000002",
		Contexts: []contextConfig{
			{ID: 0, Prefix: "fd00:db8::", PrefixLen: 64, Compress: true},
		},
	}
}

// loadConfig reads and validates the configuration at path. An empty
// path yields the defaults.
func loadConfig(path string) (*linkConfig, error) {
	fc := defaultFileConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if fc.MTU <= header.Frag1HeaderSize+header.IPHCMaxHeaderSize {
		return nil, fmt.Errorf("mtu %d cannot carry a compressed first fragment", fc.MTU)
	}

	srcMac, err := parseMac(fc.SrcMac)
	if err != nil {
		return nil, fmt.Errorf("src_mac: %w", err)
	}
	dstMac, err := parseMac(fc.DstMac)
	if err != nil {
		return nil, fmt.Errorf("dst_mac: %w", err)
	}

	var table *stack.ContextTable
	for _, cc := range fc.Contexts {
		ctx, err := parseContext(cc)
		if err != nil {
			return nil, fmt.Errorf("context %d: %w", cc.ID, err)
		}
		if ctx.ID == 0 {
			table = stack.NewContextTable(ctx)
		}
	}
	if table == nil {
		return nil, fmt.Errorf("configuration defines no context 0")
	}
	for _, cc := range fc.Contexts {
		if cc.ID == 0 {
			continue
		}
		ctx, err := parseContext(cc)
		if err != nil {
			return nil, fmt.Errorf("context %d: %w", cc.ID, err)
		}
		if lerr := table.Add(ctx); lerr != nil {
			return nil, fmt.Errorf("context %d: %s", cc.ID, lerr)
		}
	}

	return &linkConfig{
		mtu:      fc.MTU,
		panID:    lowpan.PANID(fc.PANID),
		srcMac:   srcMac,
		dstMac:   dstMac,
		contexts: table,
	}, nil
}

// parseMac reads a hex-encoded link-layer address: 4 digits for a short
// address, 16 for an extended one.
func parseMac(s string) (lowpan.MacAddress, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return lowpan.MacAddress{}, err
	}
	switch len(b) {
	case 2:
		return lowpan.ShortMacAddress(binary.BigEndian.Uint16(b)), nil
	case 8:
		var long [8]byte
		copy(long[:], b)
		return lowpan.LongMacAddress(long), nil
	default:
		return lowpan.MacAddress{}, fmt.Errorf("address %q is %d bytes, want 2 or 8", s, len(b))
	}
}

func parseContext(cc contextConfig) (header.Context, error) {
	ip := net.ParseIP(cc.Prefix)
	if ip == nil {
		return header.Context{}, fmt.Errorf("bad prefix %q", cc.Prefix)
	}
	ip = ip.To16()
	if ip == nil || ip.To4() != nil {
		return header.Context{}, fmt.Errorf("prefix %q is not IPv6", cc.Prefix)
	}
	if cc.PrefixLen == 0 || cc.PrefixLen > 128 {
		return header.Context{}, fmt.Errorf("bad prefix length %d", cc.PrefixLen)
	}
	if cc.ID > header.ContextIDMax {
		return header.Context{}, fmt.Errorf("id %d out of range", cc.ID)
	}
	return header.Context{
		Prefix:    lowpan.AddressFromSlice(ip),
		PrefixLen: cc.PrefixLen,
		ID:        cc.ID,
		Compress:  cc.Compress,
	}, nil
}
