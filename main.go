// lamachat - terminal chat for local Ollama models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/lamachat/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "lamachat: %v\n\n%s\n", err, cli.Usage())
		os.Exit(2)
	}

	if err := cli.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "lamachat: %v\n", err)
		os.Exit(1)
	}
}
