// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable read by Load.
const EnvVar = "MORSEFS_CONFIG"

// StatusFileName is reserved for the mount's status file and cannot be
// used as an endpoint name.
const StatusFileName = ".status"

// DefaultMaxOutputBytes bounds each endpoint's output buffer unless
// configured otherwise.
const DefaultMaxOutputBytes = 1 << 20

// Config is the master configuration for morsefs.
type Config struct {
	// Mountpoint is the directory where the FUSE filesystem is mounted.
	Mountpoint string `yaml:"mountpoint" json:"mountpoint"`

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other" json:"allow_other"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log" json:"log"`

	// Endpoints lists the pseudo-files exposed at the mount root.
	Endpoints []EndpointConfig `yaml:"endpoints" json:"endpoints"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level" json:"level"`

	// Format is json, text, or auto (text on a terminal, JSON
	// otherwise).
	// Default: json
	Format string `yaml:"format" json:"format"`
}

// EndpointConfig configures one transcoding endpoint.
type EndpointConfig struct {
	// Name is the file name under the mountpoint.
	Name string `yaml:"name" json:"name"`

	// MaxOutputBytes bounds the decoded output of a single write. Zero
	// means unbounded; omitted means DefaultMaxOutputBytes.
	MaxOutputBytes *int `yaml:"max_output_bytes,omitempty" json:"max_output_bytes,omitempty"`

	// InvalidInput is skip or abort.
	// Default: skip
	InvalidInput string `yaml:"invalid_input" json:"invalid_input"`
}

// OutputLimit returns the effective output ceiling in bytes.
func (e EndpointConfig) OutputLimit() int {
	if e.MaxOutputBytes == nil {
		return DefaultMaxOutputBytes
	}
	return *e.MaxOutputBytes
}

// Default returns the default configuration. The mountpoint is left
// empty: it has no sensible default and must come from the file or the
// command line.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Endpoints: []EndpointConfig{
			{Name: "morse", InvalidInput: "skip"},
		},
	}
}

// Load loads configuration from the file named by MORSEFS_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your morsefs config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Values
// absent from the file keep their defaults; an endpoints list in the
// file replaces the default list entirely.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.applyEndpointDefaults()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Decoders merge into existing slice elements, so the default
	// endpoint list is set aside and only restored if the file has none.
	defaults := c.Endpoints
	c.Endpoints = nil

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return err
	}

	if c.Endpoints == nil {
		c.Endpoints = defaults
	}
	return nil
}

func (c *Config) applyEndpointDefaults() {
	for i := range c.Endpoints {
		if c.Endpoints[i].InvalidInput == "" {
			c.Endpoints[i].InvalidInput = "skip"
		}
	}
}

func (c *Config) expandVariables() {
	c.Mountpoint = expandVars(c.Mountpoint)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Mountpoint == "" {
		errs = append(errs, fmt.Errorf("mountpoint is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level: %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text", "auto":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format: %q", c.Log.Format))
	}

	if len(c.Endpoints) == 0 {
		errs = append(errs, fmt.Errorf("at least one endpoint is required"))
	}
	seen := make(map[string]bool)
	for i, endpoint := range c.Endpoints {
		switch {
		case endpoint.Name == "":
			errs = append(errs, fmt.Errorf("endpoints[%d].name is required", i))
		case endpoint.Name == StatusFileName:
			errs = append(errs, fmt.Errorf("endpoints[%d].name %q is reserved", i, endpoint.Name))
		case strings.ContainsAny(endpoint.Name, "/\x00") || endpoint.Name == "." || endpoint.Name == "..":
			errs = append(errs, fmt.Errorf("endpoints[%d].name %q is not a valid file name", i, endpoint.Name))
		case seen[endpoint.Name]:
			errs = append(errs, fmt.Errorf("endpoints[%d].name %q is duplicated", i, endpoint.Name))
		}
		seen[endpoint.Name] = true

		if endpoint.OutputLimit() < 0 {
			errs = append(errs, fmt.Errorf("endpoints[%d].max_output_bytes must not be negative", i))
		}
		if endpoint.InvalidInput != "skip" && endpoint.InvalidInput != "abort" {
			errs = append(errs, fmt.Errorf("endpoints[%d].invalid_input must be skip or abort, got %q", i, endpoint.InvalidInput))
		}
	}

	return errors.Join(errs...)
}
