// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/morsefs/lib/codec"
	morsefuse "github.com/bureau-foundation/morsefs/lib/morse/fuse"
)

func runStatus(args []string, stdout, stderr io.Writer) error {
	var mountpoint, format string
	flagSet := pflag.NewFlagSet("morsefs status", pflag.ContinueOnError)
	flagSet.StringVar(&mountpoint, "mountpoint", "", "directory the filesystem is mounted at (required)")
	flagSet.StringVar(&format, "format", "auto", "output format: auto, table, diag (CBOR diagnostic notation), raw")
	if done, err := parseFlags(flagSet, args, stdout); done || err != nil {
		return err
	}
	if mountpoint == "" {
		return fmt.Errorf("--mountpoint is required")
	}

	data, err := os.ReadFile(filepath.Join(mountpoint, morsefuse.StatusFileName))
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}
	return printStatus(stdout, data, resolveFormat(format, stdout))
}

// resolveFormat turns "auto" into table for terminals and diag for
// pipes.
func resolveFormat(format string, w io.Writer) string {
	if format != "auto" {
		return format
	}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return "table"
	}
	return "diag"
}

func printStatus(w io.Writer, data []byte, format string) error {
	switch format {
	case "raw":
		_, err := w.Write(data)
		return err
	case "diag":
		diagnostic, err := codec.Diagnose(data)
		if err != nil {
			return fmt.Errorf("decoding status: %w", err)
		}
		_, err = fmt.Fprintln(w, diagnostic)
		return err
	case "table":
		status, err := morsefuse.DecodeStatus(data)
		if err != nil {
			return fmt.Errorf("decoding status: %w", err)
		}
		return printStatusTable(w, status)
	}
	return fmt.Errorf("unknown format %q", format)
}

func printStatusTable(w io.Writer, status morsefuse.Status) error {
	fmt.Fprintf(w, "mountpoint: %s\nstarted:    %s\n\n", status.Mountpoint, formatTime(status.Started))

	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "ENDPOINT\tWRITES\tREADS\tOVERWRITES\tFAILED\tSKIPPED\tPENDING\tLAST WRITE")
	for _, stats := range status.Endpoints {
		fmt.Fprintf(table, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			stats.Name,
			stats.Writes,
			stats.Reads,
			stats.Overwrites,
			stats.FailedWrites,
			stats.SkippedInputs,
			stats.Pending,
			formatTime(stats.LastWrite),
		)
	}
	return table.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
