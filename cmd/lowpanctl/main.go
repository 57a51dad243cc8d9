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

// lowpanctl inspects the wire encodings of the adaptation layer: it
// compresses IPv6 datagrams into their LOWPAN_IPHC form and runs the
// fragmentation engine over a simulated link, printing the frames a
// radio would transmit.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "path to the TOML link configuration; defaults apply when empty")
	debug      = flag.Bool("debug", false, "enable debug logging")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(compressCmd), "")
	subcommands.Register(new(fragmentCmd), "")

	flag.Parse()

	logrus.SetOutput(os.Stderr)
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	link, err := loadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("loading configuration: %v", err)
	}

	os.Exit(int(subcommands.Execute(context.Background(), link)))
}
