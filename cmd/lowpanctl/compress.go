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
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"sixlowpan.dev/sixlowpan/pkg/lowpan/header"
)

// compressCmd implements subcommands.Command for the "compress" command.
type compressCmd struct{}

// Name implements subcommands.Command.Name.
func (*compressCmd) Name() string {
	return "compress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*compressCmd) Synopsis() string {
	return "compress a hex-encoded IPv6 datagram into its LOWPAN_IPHC form"
}

// Usage implements subcommands.Command.Usage.
func (*compressCmd) Usage() string {
	return `compress [<hex datagram>]:
	Compress the given datagram (or one read from stdin) against the
	configured context table and print the resulting wire bytes.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*compressCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*compressCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	link := args[0].(*linkConfig)

	datagram, err := readDatagram(f)
	if err != nil {
		logrus.Errorf("reading datagram: %v", err)
		return subcommands.ExitUsageError
	}

	var hdr [header.IPHCMaxHeaderSize]byte
	consumed, written, lerr := header.Compress(link.contexts, datagram, link.srcMac, link.dstMac, hdr[:])
	if lerr != nil {
		logrus.Errorf("compressing: %s", lerr)
		return subcommands.ExitFailure
	}

	logrus.WithFields(logrus.Fields{
		"header":     consumed,
		"compressed": written,
		"payload":    len(datagram) - consumed,
	}).Debug("compressed datagram")

	out := append(append([]byte(nil), hdr[:written]...), datagram[consumed:]...)
	fmt.Println(hex.EncodeToString(out))
	return subcommands.ExitSuccess
}

// readDatagram decodes the hex datagram from the first positional
// argument, or from stdin when none is given.
func readDatagram(f *flag.FlagSet) ([]byte, error) {
	s := f.Arg(0)
	if s == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(string(b))
	}
	return hex.DecodeString(s)
}
