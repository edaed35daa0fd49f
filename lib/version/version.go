// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports what morsefs binary is running.
//
// Release builds stamp the variables below via -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/morsefs/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Builds without stamps (go install, go run) fall back to the VCS
// metadata the Go toolchain embeds in the binary.
package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

// Stamped via -ldflags. "unknown" means not stamped.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// fuseModule is reported in verbose output: the kernel protocol
// support of a build depends on it.
const fuseModule = "github.com/hanwen/go-fuse/v2"

// Build describes the running binary.
type Build struct {
	Version   string
	Commit    string
	Dirty     bool
	Time      string
	GoVersion string
	Platform  string

	// FUSE is the linked go-fuse version, empty if unknown.
	FUSE string
}

// Current returns the build description, preferring -ldflags stamps
// over embedded VCS metadata.
func Current() Build {
	return resolve(debug.ReadBuildInfo())
}

func resolve(info *debug.BuildInfo, ok bool) Build {
	build := Build{
		Version:   Version,
		Commit:    GitCommit,
		Dirty:     GitDirty == "true",
		Time:      BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if !ok || info == nil {
		return build
	}

	stamped := GitCommit != "unknown"
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if !stamped && setting.Value != "" {
				build.Commit = setting.Value[:min(len(setting.Value), 7)]
			}
		case "vcs.modified":
			if !stamped {
				build.Dirty = setting.Value == "true"
			}
		case "vcs.time":
			if build.Time == "unknown" && setting.Value != "" {
				build.Time = setting.Value
			}
		}
	}
	for _, dep := range info.Deps {
		if dep.Path == fuseModule {
			build.FUSE = dep.Version
			if dep.Replace != nil {
				build.FUSE = dep.Replace.Version
			}
		}
	}
	return build
}

// String formats the build as "<version> (<commit>[-dirty], <time>)".
func (b Build) String() string {
	dirty := ""
	if b.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", b.Version, b.Commit, dirty, b.Time)
}

// Info returns Current().String(), for logs and --version output.
func Info() string {
	return Current().String()
}

// Fprint writes "<program> <build>" to w. Verbose output adds the Go
// toolchain, platform and go-fuse version, one per line.
func Fprint(w io.Writer, program string, verbose bool) {
	build := Current()
	fmt.Fprintf(w, "%s %s\n", program, build)
	if !verbose {
		return
	}
	fmt.Fprintf(w, "  Go: %s\n  Platform: %s\n", build.GoVersion, build.Platform)
	if build.FUSE != "" {
		fmt.Fprintf(w, "  go-fuse: %s\n", build.FUSE)
	}
}
