// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// morsefs serves Morse-to-ASCII transcoders as files in a FUSE
// filesystem. Writing Morse text to an endpoint file and reading it
// back returns the decoded text.
//
// Commands:
//
//	morsefs mount    mount the filesystem and serve until signalled
//	morsefs decode   transcode stdin to stdout without a mount
//	morsefs status   print endpoint counters from a running mount
//	morsefs version  print build information
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/morsefs/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return fmt.Errorf("a command is required")
	}

	switch args[0] {
	case "--version":
		version.Fprint(stdout, "morsefs", false)
		return nil
	case "version":
		return runVersion(args[1:], stdout)
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	case "mount":
		return runMount(args[1:], stderr)
	case "decode":
		return runDecode(args[1:], stdin, stdout, stderr)
	case "status":
		return runStatus(args[1:], stdout, stderr)
	}

	printUsage(stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

// parseFlags parses args into flagSet. It returns done=true when the
// command should exit successfully without running (--help, --version).
func parseFlags(flagSet *pflag.FlagSet, args []string, stdout io.Writer) (done bool, err error) {
	var showVersion bool
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.SetOutput(stdout)

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return true, nil
		}
		return false, err
	}
	if showVersion {
		version.Fprint(stdout, "morsefs", false)
		return true, nil
	}
	if flagSet.NArg() > 0 {
		return false, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return false, nil
}

func runVersion(args []string, stdout io.Writer) error {
	var verbose bool
	flagSet := pflag.NewFlagSet("morsefs version", pflag.ContinueOnError)
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "include Go, platform, and go-fuse versions")
	flagSet.SetOutput(stdout)
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	version.Fprint(stdout, "morsefs", verbose)
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `morsefs: Morse code transcoder served over FUSE.

Usage:
  morsefs mount  [--config FILE] [--mountpoint DIR] [--allow-other]
  morsefs decode [--policy skip|abort] [--max-output-bytes N]
  morsefs status --mountpoint DIR [--format auto|table|diag|raw]
  morsefs version [--verbose]

Examples:
  # Mount with a single endpoint named "morse"
  morsefs mount --mountpoint /tmp/morse
  echo '... --- ...' > /tmp/morse/morse
  cat /tmp/morse/morse

  # Decode without mounting
  echo '.... .. | - .... . .-. .' | morsefs decode

Configuration is read from --config or the MORSEFS_CONFIG environment
variable (YAML, or JSON with comments for .json/.jsonc files).
`)
}
