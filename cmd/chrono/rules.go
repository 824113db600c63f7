package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raaihank/chrono-sentinel/internal/rules"
)

// NewRulesCommand creates the rules command group
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage rule documents",
	}

	cmd.AddCommand(newRulesPushCommand(rootOpts))
	cmd.AddCommand(newRulesListCommand(rootOpts))
	return cmd
}

func newRulesPushCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "push [name...]",
		Short: "Upload rule documents from a directory to the rule database",
		Long: `Upload rule documents from a directory to the rule database configured
under rules.database. Every document of the directory is pushed unless names
are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesPush(cmd.Context(), rootOpts, dir, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "rule directory (default rules.dir)")
	return cmd
}

func runRulesPush(ctx context.Context, rootOpts *RootOptions, dir string, names []string, out io.Writer) error {
	cfg, log, err := setup(rootOpts)
	if err != nil {
		return err
	}
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	if dir == "" {
		dir = cfg.Rules.Dir
	}
	if cfg.Rules.Database.DatabaseURL == "" {
		return errors.New("rules.database.database_url is not configured")
	}

	local := rules.NewDirSource(dir)
	if len(names) == 0 {
		if names, err = local.Names(); err != nil {
			return err
		}
	}

	db, err := rules.NewPostgresSource(&cfg.Rules.Database, log.WithComponent("rules").Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, name := range names {
		doc, err := local.Load(ctx, name)
		if err != nil {
			return err
		}
		if err := db.Save(ctx, name, doc); err != nil {
			return err
		}
		fmt.Fprintf(out, "pushed %s\n", name)
	}
	return nil
}

func newRulesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the documents of the configured rule source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesList(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	}
}

func runRulesList(ctx context.Context, rootOpts *RootOptions, out io.Writer) error {
	cfg, log, err := setup(rootOpts)
	if err != nil {
		return err
	}
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}

	source, closeSource, err := openSource(cfg, log)
	if err != nil {
		return err
	}
	defer closeSource()

	var names []string
	switch src := source.(type) {
	case *rules.DirSource:
		names, err = src.Names()
	case *rules.PostgresSource:
		names, err = src.Names(ctx)
	default:
		return fmt.Errorf("source %T cannot list documents", source)
	}
	if err != nil {
		return err
	}

	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}
