package main

import (
	"context"

	"github.com/spf13/cobra"

	"auditor/internal/config"
	"auditor/internal/logging"
	"auditor/internal/store"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	rubric     string
	dbPath     string
	logLevel   string
	logFormat  string
}

var global globalFlags

func bindGlobalFlags(root *cobra.Command) {
	global = globalFlags{}
	f := root.PersistentFlags()
	f.StringVar(&global.configPath, "config", "", "Path to a YAML config file")
	f.StringVar(&global.rubric, "rubric", "", "Rubric file (YAML or JSON); built-in rubric when empty")
	f.StringVar(&global.dbPath, "db", store.DefaultDBPath, "Run archive path")
	f.StringVar(&global.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&global.logFormat, "log-format", "", "Log format: text or json")
}

// loadConfig builds the effective configuration: file and environment
// first, then any flag the user set explicitly. apply may override
// command-specific fields.
func loadConfig(cmd *cobra.Command, apply func(*config.Config)) (config.Config, error) {
	cfg, err := config.Read(global.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("rubric") {
		cfg.Rubric = global.rubric
	}
	if flags.Changed("db") {
		cfg.DBPath = global.dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = global.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = global.logFormat
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.Init(level, cfg.LogFormat, cmd.ErrOrStderr())
	return cfg, nil
}

// openStore opens the archive, or returns nil with a warning when it
// cannot be opened. Archiving never blocks an audit.
func openStore(ctx context.Context, path string) store.Store {
	if path == "" {
		return nil
	}
	st, err := store.Open(ctx, path)
	if err != nil {
		logging.New("cli").Warn("run archive unavailable", "path", path, "error", err)
		return nil
	}
	return st
}
