// Package config loads the project configuration (.specpatch.yaml) and
// resolves the project root. The resolved Config is passed explicitly to
// every component; nothing reads it from package state.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	perrors "github.com/HendryAvila/specpatch/internal/errors"
)

// FileName is the configuration file looked up from the working directory.
const FileName = ".specpatch.yaml"

// Environment overrides.
const (
	EnvRoot     = "SPECPATCH_ROOT"
	EnvDataDir  = "SPECPATCH_DATA_DIR"
	EnvLogLevel = "SPECPATCH_LOG_LEVEL"
)

const defaultConfigYAML = `# specpatch project configuration
version: 1

# Directory the document paths of patch sets are relative to.
root: .

# Where the run journal lives. Defaults to ~/.specpatch.
# data_dir: .specpatch

log:
  level: info
  # file: .specpatch/specpatch.log
  # journal: true

# auto | always | never
color: auto

# Defaults for 'when' preconditions. Patch set vars override these.
vars: {}
`

// LogConfig configures logging outputs.
type LogConfig struct {
	Level   string `yaml:"level,omitempty"`
	File    string `yaml:"file,omitempty"`
	Journal bool   `yaml:"journal,omitempty"`
}

// Config models .specpatch.yaml plus the values resolved at load time.
type Config struct {
	Version int               `yaml:"version"`
	Root    string            `yaml:"root,omitempty"`
	DataDir string            `yaml:"data_dir,omitempty"`
	Log     LogConfig         `yaml:"log,omitempty"`
	Color   string            `yaml:"color,omitempty"`
	Vars    map[string]string `yaml:"vars,omitempty"`

	// Dir is the directory holding the config file, or the start
	// directory when no file was found.
	Dir string `yaml:"-"`
	// Path is the config file that was loaded, or "".
	Path string `yaml:"-"`
}

// Default returns the configuration used when no file exists.
func Default(dir string) *Config {
	return &Config{
		Version: 1,
		Root:    ".",
		Log:     LogConfig{Level: "info"},
		Color:   "auto",
		Dir:     dir,
	}
}

// Find walks up from start looking for FileName.
func Find(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Load discovers and decodes the configuration, applies environment
// overrides and validates the result.
func Load(start string) (*Config, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, perrors.Wrap(perrors.EConfig, "resolving working directory", err)
	}

	cfg := Default(abs)
	if path, ok := Find(abs); ok {
		cfg, err = Read(path)
		if err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read decodes a single config file. Unknown keys are rejected.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.EConfig, fmt.Sprintf("reading %s", path), err)
	}

	cfg := Default(filepath.Dir(path))
	cfg.Path = path

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, perrors.Wrap(perrors.EConfig, fmt.Sprintf("parsing %s", path), err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRoot); v != "" {
		c.Root = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return perrors.NewWithDetails(perrors.EConfig,
			fmt.Sprintf("unknown log level %q", c.Log.Level),
			map[string]string{"config": c.source(), "allowed": "debug,info,warn,error"})
	}
	switch c.Color {
	case "", "auto", "always", "never":
	default:
		return perrors.NewWithDetails(perrors.EConfig,
			fmt.Sprintf("unknown color mode %q", c.Color),
			map[string]string{"config": c.source(), "allowed": "auto,always,never"})
	}
	if c.Version > 1 {
		return perrors.NewWithDetails(perrors.EConfig,
			fmt.Sprintf("config version %d is newer than this binary supports", c.Version),
			map[string]string{"config": c.source()})
	}
	return nil
}

// DocumentRoot returns the absolute directory document paths resolve
// against.
func (c *Config) DocumentRoot() string {
	return c.resolve(c.Root, c.Dir)
}

// JournalDir returns the absolute data directory of the run journal.
func (c *Config) JournalDir() string {
	if c.DataDir == "" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".specpatch")
	}
	return c.resolve(c.DataDir, c.Dir)
}

// LogFile returns the absolute log file path, or "".
func (c *Config) LogFile() string {
	if c.Log.File == "" {
		return ""
	}
	return c.resolve(c.Log.File, c.Dir)
}

// ResolvePath resolves a user-supplied path (e.g. a patch set file)
// relative to the config directory.
func (c *Config) ResolvePath(p string) string {
	return c.resolve(p, c.Dir)
}

func (c *Config) resolve(p, base string) string {
	switch {
	case p == "":
		return base
	case strings.HasPrefix(p, "~/"):
		home, _ := os.UserHomeDir()
		return filepath.Join(home, p[2:])
	case filepath.IsAbs(p):
		return filepath.Clean(p)
	default:
		return filepath.Join(base, p)
	}
}

func (c *Config) source() string {
	if c.Path == "" {
		return "defaults"
	}
	return c.Path
}

// WriteDefault creates a commented .specpatch.yaml in dir. It refuses to
// overwrite an existing file.
func WriteDefault(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", perrors.NewWithDetails(perrors.EUsage, "config already exists",
			map[string]string{"config": path})
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", perrors.Wrap(perrors.EConfig, "checking for existing config", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return "", perrors.Wrap(perrors.EConfig, "writing config", err)
	}
	return path, nil
}
