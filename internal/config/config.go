package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional zerocopy configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Bench    BenchConfig    `toml:"bench"`
}

// DefaultsConfig holds persistent flag defaults for send and serve.
type DefaultsConfig struct {
	Chunk   *string `toml:"chunk"`
	Emulate *bool   `toml:"emulate"`
	BWLimit *string `toml:"bwlimit"`
	Addr    *string `toml:"addr"`
}

// BenchConfig holds defaults for the bench command.
type BenchConfig struct {
	Size     *string `toml:"size"`
	Duration *string `toml:"duration"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "zerocopy", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, &UnknownKeysError{Path: path, Keys: keyStrings(undecoded)}
	}
	return cfg, nil
}

// UnknownKeysError reports keys in the config file that no field consumes.
// The accompanying Config is still usable.
type UnknownKeysError struct {
	Path string
	Keys []string
}

func (e *UnknownKeysError) Error() string {
	s := e.Path + ": unknown keys:"
	for _, k := range e.Keys {
		s += " " + k
	}
	return s
}

func keyStrings(keys []toml.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
