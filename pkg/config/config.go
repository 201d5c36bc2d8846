// Package config handles configuration for uiresolve.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/devicelab-dev/uiresolve/pkg/cache"
	"github.com/devicelab-dev/uiresolve/pkg/chain"
	"github.com/devicelab-dev/uiresolve/pkg/container"
	"github.com/devicelab-dev/uiresolve/pkg/rank"
	"github.com/devicelab-dev/uiresolve/pkg/resolver"
	"github.com/devicelab-dev/uiresolve/pkg/scoring"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// File names searched by LoadFromDir, in order.
var fileNames = []string{"uiresolve.yaml", "uiresolve.yml"}

// Environment overrides applied by ApplyEnv.
const (
	EnvMode               = "UIRESOLVE_MODE"
	EnvMinConfidence      = "UIRESOLVE_MIN_CONFIDENCE"
	EnvTimeBudget         = "UIRESOLVE_TIME_BUDGET_MS"
	EnvPerCandidateBudget = "UIRESOLVE_PER_CANDIDATE_BUDGET_MS"
	EnvLogFile            = "UIRESOLVE_LOG_FILE"
	EnvCacheSize          = "UIRESOLVE_CACHE_SIZE"
)

// Config represents the workspace configuration (uiresolve.yaml).
type Config struct {
	// Resolution settings
	Mode                 string  `yaml:"mode"`
	MinConfidence        float64 `yaml:"min_confidence"`
	RequireUniqueness    bool    `yaml:"require_uniqueness"`
	ForbidContainers     bool    `yaml:"forbid_containers"`
	TimeBudgetMS         int     `yaml:"time_budget_ms"`
	PerCandidateBudgetMS int     `yaml:"per_candidate_budget_ms"`
	MaxCandidates        int     `yaml:"max_candidates"`

	// Container detection
	Container container.Config `yaml:"container"`

	// Runtime
	CacheSize int    `yaml:"cache_size"` // Snapshots kept in memory
	Workers   int    `yaml:"workers"`    // Batch workers, 0 for GOMAXPROCS
	LogFile   string `yaml:"log_file"`   // Empty discards logs

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Mode:                 string(scoring.ModeDefault),
		MinConfidence:        rank.DefaultMinConfidence,
		RequireUniqueness:    true,
		ForbidContainers:     true,
		TimeBudgetMS:         int(chain.DefaultTimeBudget / time.Millisecond),
		PerCandidateBudgetMS: int(chain.DefaultPerCandidateBudget / time.Millisecond),
		MaxCandidates:        resolver.DefaultMaxCandidates,
		Container:            container.DefaultConfig(),
		CacheSize:            cache.DefaultSize,
	}
}

// Load loads configuration from a file. Keys missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Path = path

	return cfg, nil
}

// LoadFromDir looks for uiresolve.yaml or uiresolve.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	if path, ok := findIn(dir); ok {
		return Load(path)
	}

	// No config file found, return defaults
	return Default(), nil
}

// Discover loads the config from dir, falling back to HomeDir when dir
// has none.
func Discover(dir string) (*Config, error) {
	if path, ok := findIn(dir); ok {
		return Load(path)
	}
	if home := HomeDir(); home != "" {
		return LoadFromDir(home)
	}
	return Default(), nil
}

func findIn(dir string) (string, bool) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// ApplyEnv loads dir/.env when present, then applies UIRESOLVE_*
// overrides. Variables already set in the process win over .env entries.
func (c *Config) ApplyEnv(dir string) error {
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if v := os.Getenv(EnvMode); v != "" {
		c.Mode = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv(EnvMinConfidence); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMinConfidence, err)
		}
		c.MinConfidence = f
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvTimeBudget, &c.TimeBudgetMS},
		{EnvPerCandidateBudget, &c.PerCandidateBudgetMS},
		{EnvCacheSize, &c.CacheSize},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := scoring.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0,1], got %v", c.MinConfidence)
	}
	if c.TimeBudgetMS < 0 || c.PerCandidateBudgetMS < 0 {
		return fmt.Errorf("time budgets must not be negative")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if r := c.Container.MaxFullscreenRatio; r <= 0 || r > 1 {
		return fmt.Errorf("container.max_fullscreen_ratio must be within (0,1], got %v", r)
	}
	if c.Container.MinAreaRatio < 0 || c.Container.MinAreaRatio >= c.Container.MaxFullscreenRatio {
		return fmt.Errorf("container.min_area_ratio must be within [0,max_fullscreen_ratio), got %v", c.Container.MinAreaRatio)
	}
	return nil
}

// Resolver converts the file settings into a per-call resolver.Config.
// Call Validate first; an unknown mode falls back to the default weights.
func (c *Config) Resolver() resolver.Config {
	mode, err := scoring.ParseMode(c.Mode)
	if err != nil {
		mode = scoring.ModeDefault
	}
	return resolver.Config{
		Mode:               mode,
		MinConfidence:      c.MinConfidence,
		RequireUniqueness:  c.RequireUniqueness,
		ForbidContainers:   c.ForbidContainers,
		TimeBudget:         time.Duration(c.TimeBudgetMS) * time.Millisecond,
		PerCandidateBudget: time.Duration(c.PerCandidateBudgetMS) * time.Millisecond,
		MaxCandidates:      c.MaxCandidates,
	}
}
