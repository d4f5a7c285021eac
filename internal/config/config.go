// Package config loads auditor settings: defaults, then an optional YAML
// file, then environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"auditor/internal/logging"
)

var ErrInvalid = errors.New("config: invalid")

// Backing model adapters.
const (
	AdapterHeuristic = "heuristic"
	AdapterLLM       = "llm"
)

// Config holds every tunable. Field tags name the YAML key and the
// environment variable.
type Config struct {
	// Rubric is a rubric file path; empty uses the embedded default.
	Rubric  string `yaml:"rubric" env:"AUDITOR_RUBRIC"`
	Adapter string `yaml:"adapter" env:"AUDITOR_ADAPTER"`
	Model   string `yaml:"model" env:"AUDITOR_MODEL"`
	APIKey  string `yaml:"-" env:"GEMINI_API_KEY"`

	DBPath    string   `yaml:"db_path" env:"AUDITOR_DB"`
	OutputDir string   `yaml:"output_dir" env:"AUDITOR_OUTPUT_DIR"`
	Formats   []string `yaml:"formats" env:"AUDITOR_FORMATS" envSeparator:","`

	Parallel     int           `yaml:"parallel" env:"AUDITOR_PARALLEL"`
	CloneTimeout time.Duration `yaml:"clone_timeout" env:"AUDITOR_CLONE_TIMEOUT"`
	CloneDepth   int           `yaml:"clone_depth" env:"AUDITOR_CLONE_DEPTH"`
	AllowedHosts []string      `yaml:"allowed_hosts" env:"AUDITOR_ALLOWED_HOSTS" envSeparator:","`
	AllowLocal   bool          `yaml:"allow_local" env:"AUDITOR_ALLOW_LOCAL"`
	PDFToText    string        `yaml:"pdftotext" env:"AUDITOR_PDFTOTEXT"`

	LogLevel     string `yaml:"log_level" env:"AUDITOR_LOG_LEVEL"`
	LogFormat    string `yaml:"log_format" env:"AUDITOR_LOG_FORMAT"`
	OTelEndpoint string `yaml:"otel_endpoint" env:"AUDITOR_OTEL_ENDPOINT"`
	MetricsFile  string `yaml:"metrics_file" env:"AUDITOR_METRICS_FILE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Adapter:      AdapterHeuristic,
		Model:        "gemini-2.5-flash",
		DBPath:       ".auditor/auditor.db",
		OutputDir:    "audit",
		Formats:      []string{"markdown", "json"},
		CloneTimeout: 2 * time.Minute,
		AllowedHosts: []string{"github.com", "gitlab.com"},
		PDFToText:    "pdftotext",
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that layer further
// overrides (CLI flags) before validating.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseEnv overrides fields of target from environment variables. Unset
// variables leave fields untouched.
func ParseEnv(target *Config) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrInvalid, err)
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var problems []string
	switch c.Adapter {
	case AdapterHeuristic:
	case AdapterLLM:
		if c.APIKey == "" {
			problems = append(problems, "adapter llm requires GEMINI_API_KEY")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown adapter %q", c.Adapter))
	}
	if c.Parallel < 0 {
		problems = append(problems, "parallel must be >= 0")
	}
	if c.CloneDepth < 0 {
		problems = append(problems, "clone_depth must be >= 0")
	}
	if c.CloneTimeout < 0 {
		problems = append(problems, "clone_timeout must be >= 0")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log_format %q", c.LogFormat))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}
	for _, f := range c.Formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "markdown", "md", "json", "pdf", "terminal":
		default:
			problems = append(problems, fmt.Sprintf("unknown format %q", f))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
