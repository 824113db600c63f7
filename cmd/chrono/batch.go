package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/batch"
	"github.com/raaihank/chrono-sentinel/internal/datetime"
)

type batchOptions struct {
	Input   string
	Output  string
	Format  string
	Locale  string
	Workers int
}

// NewBatchCommand creates the batch command
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Detect over a CSV, JSON lines or Parquet file",
		Long: `Detect over every record of an input file and write one Parquet row per
match.

Input records carry id, locale and text fields. CSV input needs a header row.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), rootOpts, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "input dataset file (CSV, JSON lines or Parquet)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output Parquet file")
	cmd.Flags().StringVar(&opts.Format, "format", "", "input format (csv|jsonl|parquet), inferred from the extension by default")
	cmd.Flags().StringVarP(&opts.Locale, "locale", "l", "", "locale of records without one (default batch.default_locale)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "number of detection workers (default batch.workers)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runBatch(ctx context.Context, rootOpts *RootOptions, opts *batchOptions, out io.Writer) error {
	cfg, log, err := setup(rootOpts)
	if err != nil {
		return err
	}
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}

	batchConfig := &batch.Config{
		Workers:       cfg.Batch.Workers,
		RowGroupSize:  cfg.Batch.RowGroupSize,
		DefaultLocale: cfg.Batch.DefaultLocale,
		Format:        batch.FileFormat(cfg.Batch.Format),
	}
	if opts.Workers > 0 {
		batchConfig.Workers = opts.Workers
	}
	if opts.Locale != "" {
		batchConfig.DefaultLocale = opts.Locale
	}
	if opts.Format != "" {
		format, ok := batch.ParseFileFormat(opts.Format)
		if !ok {
			return fmt.Errorf("invalid format %q: must be one of csv, jsonl, parquet", opts.Format)
		}
		batchConfig.Format = format
	}
	if opts.Input == opts.Output {
		return errors.New("input and output must differ")
	}

	source, closeSource, err := openSource(cfg, log)
	if err != nil {
		return err
	}
	defer closeSource()

	registry := datetime.NewRegistry(source, log.WithComponent("datetime").Logger,
		datetime.WithMatchTimeout(cfg.Rules.MatchTimeout))
	pipeline := batch.NewPipeline(registry, batchConfig, log.WithComponent("batch").Logger)

	log.Info("Starting batch detection",
		zap.String("version", version),
		zap.String("input", opts.Input),
		zap.String("output", opts.Output))

	result, err := pipeline.ProcessFile(ctx, opts.Input, opts.Output)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
