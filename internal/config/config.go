// Package config loads and validates the .jsguide.yaml project file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up in the root.
const FileName = ".jsguide.yaml"

// Config is the project configuration. Zero values mean "use the default".
type Config struct {
	// BaseURL is the directory bare specifiers resolve against, relative
	// to the project root.
	BaseURL string `yaml:"baseUrl,omitempty"`
	// Paths rewrites specifier prefixes, e.g. "jquery": "vendor/jquery-3".
	Paths map[string]string `yaml:"paths,omitempty" validate:"dive,keys,required,endkeys,required"`
	// Extensions lists the file extensions to discover.
	Extensions []string `yaml:"extensions,omitempty" validate:"dive,required,startswith=."`
	// StoreDir holds the index database, relative to the root.
	StoreDir    string `yaml:"storeDir,omitempty"`
	MaxFileSize int    `yaml:"maxFileSize,omitempty" validate:"gte=0"`
	Workers     int    `yaml:"workers,omitempty" validate:"gte=0,lte=256"`
	LogLevel    string `yaml:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	// Browser makes top-level this a Window in every file.
	Browser bool   `yaml:"browser,omitempty"`
	Server  Server `yaml:"server,omitempty"`
}

// Server configures jsguide serve.
type Server struct {
	Addr    string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	Metrics bool   `yaml:"metrics,omitempty"`
	Trace   bool   `yaml:"trace,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Extensions:  []string{".js", ".mjs", ".cjs"},
		StoreDir:    ".jsguide/index",
		MaxFileSize: 10 * 1024 * 1024,
		LogLevel:    "warn",
		Server: Server{
			Addr:    "localhost:7878",
			Metrics: true,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Marshal encodes c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean warn.
func (c *Config) SlogLevel() slog.Level {
	return ParseLevel(c.LogLevel)
}

// ParseLevel maps a level name to a slog level. Unknown values mean warn.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	}
	return slog.LevelWarn
}
