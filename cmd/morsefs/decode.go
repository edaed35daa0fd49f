// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/morsefs/lib/config"
	"github.com/bureau-foundation/morsefs/lib/logging"
	"github.com/bureau-foundation/morsefs/lib/morse"
)

// runDecode transcodes all of stdin as a single write and prints the
// drained output.
func runDecode(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		policy         string
		maxOutputBytes int
		logLevel       string
	)
	flagSet := pflag.NewFlagSet("morsefs decode", pflag.ContinueOnError)
	flagSet.StringVar(&policy, "policy", string(morse.PolicySkip), "invalid input handling: skip or abort")
	flagSet.IntVar(&maxOutputBytes, "max-output-bytes", config.DefaultMaxOutputBytes, "output ceiling in bytes (0 for unbounded)")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	if done, err := parseFlags(flagSet, args, stdout); done || err != nil {
		return err
	}

	parsedPolicy, err := morse.ParsePolicy(policy)
	if err != nil {
		return err
	}
	logger, err := logging.New(stderr, logLevel, "auto")
	if err != nil {
		return err
	}

	session, err := morse.NewSession(morse.SessionOptions{
		Name:        "stdin",
		MaxCapacity: maxOutputBytes,
		Policy:      parsedPolicy,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	input, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if _, err := session.Write(input); err != nil {
		return err
	}
	if _, err := stdout.Write(session.Read(session.Pending())); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
