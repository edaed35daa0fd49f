// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/morsefs/lib/clock"
	"github.com/bureau-foundation/morsefs/lib/config"
	"github.com/bureau-foundation/morsefs/lib/logging"
	"github.com/bureau-foundation/morsefs/lib/morse"
	morsefuse "github.com/bureau-foundation/morsefs/lib/morse/fuse"
	"github.com/bureau-foundation/morsefs/lib/version"
)

// mountFlags are the command-line overrides for the mount command.
type mountFlags struct {
	configPath string
	mountpoint string
	allowOther bool
	logLevel   string
}

func runMount(args []string, stderr io.Writer) error {
	var flags mountFlags
	flagSet := pflag.NewFlagSet("morsefs mount", pflag.ContinueOnError)
	flagSet.StringVar(&flags.configPath, "config", "", "config file (default: $MORSEFS_CONFIG, else built-in defaults)")
	flagSet.StringVar(&flags.mountpoint, "mountpoint", "", "directory to mount the filesystem at")
	flagSet.BoolVar(&flags.allowOther, "allow-other", false, "allow other users to access the mount")
	flagSet.StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	if done, err := parseFlags(flagSet, args, stderr); done || err != nil {
		return err
	}

	cfg, err := loadMountConfig(flagSet, flags)
	if err != nil {
		return err
	}

	logger, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// loadMountConfig resolves the configuration: an explicit --config file,
// then MORSEFS_CONFIG, then the defaults. Flags the user set override
// the loaded values.
func loadMountConfig(flagSet *pflag.FlagSet, flags mountFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case flags.configPath != "":
		cfg, err = config.LoadFile(flags.configPath)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if flagSet.Changed("mountpoint") {
		cfg.Mountpoint = flags.mountpoint
	}
	if flagSet.Changed("allow-other") {
		cfg.AllowOther = flags.allowOther
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newSessions builds one session per configured endpoint.
func newSessions(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (map[string]*morse.Session, error) {
	sessions := make(map[string]*morse.Session, len(cfg.Endpoints))
	for _, endpoint := range cfg.Endpoints {
		session, err := morse.NewSession(morse.SessionOptions{
			Name:        endpoint.Name,
			MaxCapacity: endpoint.OutputLimit(),
			Policy:      morse.InvalidInputPolicy(endpoint.InvalidInput),
			Clock:       clk,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", endpoint.Name, err)
		}
		sessions[endpoint.Name] = session
	}
	return sessions, nil
}

// serve mounts the filesystem, registers the configured endpoints, and
// blocks until ctx is cancelled or the filesystem is unmounted from
// outside.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	clk := clock.Real()

	sessions, err := newSessions(cfg, clk, logger)
	if err != nil {
		return err
	}

	host, err := morsefuse.Mount(morsefuse.Options{
		Mountpoint: cfg.Mountpoint,
		AllowOther: cfg.AllowOther,
		Clock:      clk,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := host.Unmount(); err != nil {
			logger.Error("failed to unmount FUSE filesystem", "error", err)
		}
	}()

	for _, endpoint := range cfg.Endpoints {
		if err := host.Register(endpoint.Name, sessions[endpoint.Name]); err != nil {
			return fmt.Errorf("registering endpoint %s: %w", endpoint.Name, err)
		}
	}

	unmounted := make(chan struct{})
	go func() {
		host.Wait()
		close(unmounted)
	}()

	logger.Info("morsefs running",
		"version", version.Info(),
		"mountpoint", cfg.Mountpoint,
		"endpoints", host.Endpoints(),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-unmounted:
		logger.Warn("filesystem unmounted externally")
	}
	return nil
}
