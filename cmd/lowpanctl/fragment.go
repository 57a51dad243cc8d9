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

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"sixlowpan.dev/sixlowpan/pkg/lowpan"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/link/channel"
	"sixlowpan.dev/sixlowpan/pkg/lowpan/stack"
)

// fragmentCmd implements subcommands.Command for the "fragment" command.
type fragmentCmd struct {
	mtu int
}

// Name implements subcommands.Command.Name.
func (*fragmentCmd) Name() string {
	return "fragment"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*fragmentCmd) Synopsis() string {
	return "compress and fragment a hex-encoded IPv6 datagram into link frames"
}

// Usage implements subcommands.Command.Usage.
func (*fragmentCmd) Usage() string {
	return `fragment [-mtu <bytes>] [<hex datagram>]:
	Run the fragmentation engine over a simulated link and print each
	frame a radio would transmit, one per line.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *fragmentCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.mtu, "mtu", 0, "frame payload capacity; 0 uses the configured value")
}

// Execute implements subcommands.Command.Execute.
func (c *fragmentCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	link := args[0].(*linkConfig)
	mtu := c.mtu
	if mtu == 0 {
		mtu = link.mtu
	}

	datagram, err := readDatagram(f)
	if err != nil {
		logrus.Errorf("reading datagram: %v", err)
		return subcommands.ExitUsageError
	}

	m := stack.NewManager(link.contexts, &lowpan.StdClock{})
	tx := stack.NewTxState(m)
	ep := channel.New(1, mtu)

	if lerr := tx.Init(link.srcMac, link.dstMac, link.panID, nil); lerr != nil {
		logrus.Errorf("starting datagram: %s", lerr)
		return subcommands.ExitFailure
	}

	frames := 0
	for {
		frame, isLast, lerr := tx.NextFragment(datagram, make([]byte, mtu), ep)
		if lerr != nil {
			logrus.Errorf("producing fragment %d: %s", frames, lerr)
			return subcommands.ExitFailure
		}
		if lerr := ep.Transmit(frame); lerr != nil {
			logrus.Errorf("transmitting fragment %d: %s", frames, lerr)
			return subcommands.ExitFailure
		}
		sent := <-ep.C
		frames++

		logrus.WithFields(logrus.Fields{
			"frame": frames,
			"bytes": len(sent.Payload()),
			"last":  isLast,
		}).Debug("produced frame")
		fmt.Println(hex.EncodeToString(sent.Payload()))

		if isLast {
			break
		}
	}

	logrus.Debugf("datagram of %d bytes sent in %d frames", len(datagram), frames)
	return subcommands.ExitSuccess
}
