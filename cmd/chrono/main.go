package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raaihank/chrono-sentinel/internal/config"
	"github.com/raaihank/chrono-sentinel/internal/logger"
	"github.com/raaihank/chrono-sentinel/internal/rules"
	"github.com/raaihank/chrono-sentinel/internal/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand creates the chrono command tree
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "chrono",
		Short:         "chrono-sentinel - date and time expression recognizer",
		Long:          "Recognizes date, time, date-time and period expressions in locale-tagged text.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logging.level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDetectCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))

	server.Version = version
	return cmd
}

// setup loads the configuration and builds the logger every command uses
func setup(opts *RootOptions) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// openSource opens the configured rule source. The returned closer is never
// nil.
func openSource(cfg *config.Config, log *logger.Logger) (rules.Source, func(), error) {
	switch cfg.Rules.Source {
	case "postgres":
		src, err := rules.NewPostgresSource(&cfg.Rules.Database, log.WithComponent("rules").Logger)
		if err != nil {
			return nil, func() {}, err
		}
		return src, func() { src.Close() }, nil
	default:
		return rules.NewDirSource(cfg.Rules.Dir), func() {}, nil
	}
}
