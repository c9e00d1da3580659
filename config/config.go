// Package config handles loading and saving this emulator's persistent
// settings as JSON in the host's standard per-user config directory.
// Uses explicit, narrowly-scoped types over a generic config framework;
// encoding/json with DisallowUnknownFields keeps the on-disk shape exact
// without pulling in a separate config library.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DirName is the subdirectory created under the host's per-user config
// directory (e.g. $HOME/.config/apple2e on Linux).
const DirName = "apple2e"

// FileName is the config file's name within DirName.
const FileName = "config.json"

// Config is the full set of settings persisted between runs, exactly the
// field set this emulator persists: nothing more, nothing less.
type Config struct {
	EmulatorSpeedHz uint64   `json:"emulator_speed_hz"`
	DiskDirectories []string `json:"disk_directories"`
	Drive1          *string  `json:"drive_1,omitempty"`
	Drive2          *string  `json:"drive_2,omitempty"`
	Tab             uint32   `json:"tab"`
}

// Default returns a Config with reasonable starting values: roughly 1.0
// MHz, no remembered disk directories or drives, tab 0.
func Default() *Config {
	return &Config{
		EmulatorSpeedHz: 1_023_000,
		DiskDirectories: []string{},
	}
}

// Path returns the default on-disk location for the config file, under the
// host's standard per-user config directory.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving user config dir")
	}
	return filepath.Join(dir, DirName, FileName), nil
}

// Load reads and parses a Config from path. Unknown fields are rejected
// rather than silently ignored; a bad config file falls back to defaults
// rather than surfacing the parse error to the caller as fatal.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), errors.Wrapf(err, "reading config %q, using defaults", path)
	}
	var c Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Default(), errors.Wrapf(err, "parsing config %q, using defaults", path)
	}
	return &c, nil
}

// Save writes c to path as indented JSON, creating any missing parent
// directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating config dir for %q", path)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing config %q", path)
	}
	return nil
}
