// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted by [Load].
const EnvVar = "BUREAU_MUX_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for interactive use on a workstation.
	Development Environment = "development"
	// Production is for long-running hosts where the server is started
	// by a supervisor rather than by the client.
	Production Environment = "production"
)

// Config is the configuration shared by bureau-mux and bureau-mux-server.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	Paths   PathsConfig   `yaml:"paths"`
	Session SessionConfig `yaml:"session"`
	Client  ClientConfig  `yaml:"client"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
	Client  *ClientConfig  `yaml:"client,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Socket is the Unix socket the server listens on.
	// Default: ${XDG_RUNTIME_DIR:-/tmp}/bureau-mux.sock
	Socket string `yaml:"socket"`

	// Log is the log file. Empty means stderr.
	Log string `yaml:"log"`
}

// SessionConfig configures newly spawned PTY sessions.
type SessionConfig struct {
	// Shell is the command run in every new session.
	// Default: ${SHELL:-/bin/sh}
	Shell string `yaml:"shell"`

	// Rows and Cols size a session before its first client resizes it.
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`
}

// ClientConfig configures the interactive client.
type ClientConfig struct {
	// KeepaliveInterval is how often the client sends a wake
	// notification while attached.
	// Default: 30s
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	// DetachKey is the key that detaches from the session, written as
	// "ctrl-<letter>".
	// Default: ctrl-q
	DetachKey string `yaml:"detach_key"`

	// ServerBinary is started when the client finds no server
	// listening. A bare name is resolved through PATH.
	// Default: bureau-mux-server
	ServerBinary string `yaml:"server_binary"`

	// AutoStart enables starting ServerBinary on connection refused.
	// Default: true (development), false (production)
	AutoStart bool `yaml:"auto_start"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Environment: Development,
		Paths: PathsConfig{
			Socket: "${XDG_RUNTIME_DIR:-/tmp}/bureau-mux.sock",
		},
		Session: SessionConfig{
			Shell: "${SHELL:-/bin/sh}",
			Rows:  24,
			Cols:  80,
		},
		Client: ClientConfig{
			KeepaliveInterval: 30 * time.Second,
			DetachKey:         "ctrl-q",
			ServerBinary:      "bureau-mux-server",
			AutoStart:         true,
		},
	}
	cfg.expandVariables()
	return cfg
}

// Load loads configuration from the file named by BUREAU_MUX_CONFIG, or
// returns [Default] when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Values the
// file does not set keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production servers are supervised; the client never spawns one.
		if overrides == nil {
			overrides = &ConfigOverrides{Client: &ClientConfig{AutoStart: false}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Socket != "" {
			c.Paths.Socket = overrides.Paths.Socket
		}
		if overrides.Paths.Log != "" {
			c.Paths.Log = overrides.Paths.Log
		}
	}

	if overrides.Session != nil {
		if overrides.Session.Shell != "" {
			c.Session.Shell = overrides.Session.Shell
		}
		if overrides.Session.Rows != 0 {
			c.Session.Rows = overrides.Session.Rows
		}
		if overrides.Session.Cols != 0 {
			c.Session.Cols = overrides.Session.Cols
		}
	}

	if overrides.Client != nil {
		if overrides.Client.KeepaliveInterval != 0 {
			c.Client.KeepaliveInterval = overrides.Client.KeepaliveInterval
		}
		if overrides.Client.DetachKey != "" {
			c.Client.DetachKey = overrides.Client.DetachKey
		}
		if overrides.Client.ServerBinary != "" {
			c.Client.ServerBinary = overrides.Client.ServerBinary
		}
		// AutoStart is a bool, so it always applies from overrides.
		c.Client.AutoStart = overrides.Client.AutoStart
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	c.Paths.Socket = expandVars(c.Paths.Socket)
	c.Paths.Log = expandVars(c.Paths.Log)
	c.Session.Shell = expandVars(c.Session.Shell)
	c.Client.ServerBinary = expandVars(c.Client.ServerBinary)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Socket == "" {
		errs = append(errs, errors.New("paths.socket is required"))
	}
	if c.Session.Shell == "" {
		errs = append(errs, errors.New("session.shell is required"))
	}
	if c.Session.Rows <= 0 || c.Session.Rows > 0xffff {
		errs = append(errs, fmt.Errorf("session.rows must be between 1 and 65535, got %d", c.Session.Rows))
	}
	if c.Session.Cols <= 0 || c.Session.Cols > 0xffff {
		errs = append(errs, fmt.Errorf("session.cols must be between 1 and 65535, got %d", c.Session.Cols))
	}
	if c.Client.KeepaliveInterval <= 0 {
		errs = append(errs, fmt.Errorf("client.keepalive_interval must be positive, got %s", c.Client.KeepaliveInterval))
	}
	if _, err := c.DetachByte(); err != nil {
		errs = append(errs, err)
	}
	if c.Client.AutoStart && c.Client.ServerBinary == "" {
		errs = append(errs, errors.New("client.server_binary is required when client.auto_start is set"))
	}

	return errors.Join(errs...)
}

// DetachByte returns the control byte for Client.DetachKey. "ctrl-a"
// through "ctrl-z" map to 0x01 through 0x1a; "ctrl-]" maps to 0x1d.
func (c *Config) DetachByte() (byte, error) {
	key := c.Client.DetachKey
	if len(key) == len("ctrl-x") && key[:5] == "ctrl-" {
		letter := key[5]
		switch {
		case letter >= 'a' && letter <= 'z':
			return letter - 'a' + 1, nil
		case letter == ']':
			return 0x1d, nil
		}
	}
	return 0, fmt.Errorf("client.detach_key must be ctrl-<letter> or ctrl-], got %q", key)
}

// ServerPath resolves Client.ServerBinary. A bare name is looked up
// next to the running executable first, then in PATH.
func (c *Config) ServerPath() (string, error) {
	name := c.Client.ServerBinary
	if filepath.Base(name) != name {
		return name, nil
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), name)
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found next to this binary or in PATH", name)
	}
	return path, nil
}
