// Package cli provides the command-line interface for uiresolve.
package cli

import (
	"fmt"
	"os"

	"github.com/devicelab-dev/uiresolve/pkg/cache"
	"github.com/devicelab-dev/uiresolve/pkg/config"
	"github.com/devicelab-dev/uiresolve/pkg/logger"
	"github.com/devicelab-dev/uiresolve/pkg/resolver"
	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands. Flags override uiresolve.yaml
// and UIRESOLVE_* variables loaded from .env.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Config file (default: uiresolve.yaml in the working or home directory)",
		EnvVars: []string{"UIRESOLVE_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "mode",
		Aliases: []string{"m"},
		Usage:   "Weight profile (speed, default, robust)",
		EnvVars: []string{config.EnvMode},
	},
	&cli.Float64Flag{
		Name:    "min-confidence",
		Usage:   "Minimum confidence a candidate needs",
		EnvVars: []string{config.EnvMinConfidence},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Append logs to this file",
		EnvVars: []string{config.EnvLogFile},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging to stderr",
		EnvVars: []string{"UIRESOLVE_VERBOSE"},
	},
	&cli.IntFlag{
		Name:    "cache-size",
		Usage:   "Snapshots kept in memory",
		EnvVars: []string{config.EnvCacheSize},
	},
}

// NewApp builds the uiresolve application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "uiresolve",
		Usage:   "Resolve UI targets against Android view-hierarchy snapshots",
		Version: Version,
		Description: `uiresolve finds the element a target description refers to in a
uiautomator hierarchy dump and prints the tap coordinate as JSON.

Examples:
  uiresolve resolve --target 'text: Settings' screen.xml
  uiresolve chain screen.xml plan.yaml
  uiresolve match --all feed.xml
  uiresolve inspect screen.xml`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			resolveCommand,
			chainCommand,
			matchCommand,
			inspectCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session is the state shared by every command.
type session struct {
	cfg      *config.Config
	resolver *resolver.Resolver
}

// setup loads configuration, applies environment and flag overrides, and
// starts logging. The returned func closes the log.
func setup(c *cli.Context) (*session, func(), error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}

	var cfg *config.Config
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Discover(cwd)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(cwd); err != nil {
		return nil, nil, err
	}

	if c.IsSet("mode") {
		cfg.Mode = c.String("mode")
	}
	if c.IsSet("min-confidence") {
		cfg.MinConfidence = c.Float64("min-confidence")
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}
	if c.IsSet("cache-size") {
		cfg.CacheSize = c.Int("cache-size")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	switch {
	case c.Bool("verbose"):
		logger.SetOutput(c.App.ErrWriter)
		logger.SetLevel(logger.LevelDebug)
	case cfg.LogFile != "":
		if err := logger.Init(cfg.LogFile); err != nil {
			return nil, nil, err
		}
		logger.SetLevel(logger.LevelInfo)
	}
	if cfg.Path != "" {
		logger.Info("config: %s", cfg.Path)
	}

	store, err := cache.New(cfg.CacheSize)
	if err != nil {
		logger.Close()
		return nil, nil, err
	}

	s := &session{
		cfg:      cfg,
		resolver: resolver.New(store, resolver.WithContainerConfig(cfg.Container)),
	}
	return s, logger.Close, nil
}
