package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raaihank/chrono-sentinel/internal/datetime"
)

type detectOptions struct {
	Locale  string
	Offsets bool
}

// detectedSpan is a match with its matched text, as printed by detect
type detectedSpan struct {
	datetime.Match
	Text string `json:"text"`
}

// NewDetectCommand creates the detect command
func NewDetectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &detectOptions{}

	cmd := &cobra.Command{
		Use:   "detect [text...]",
		Short: "Print the date and time expressions of a text",
		Long: `Print the date and time expressions of a text as JSON.

The text is taken from the arguments, joined by spaces, or read from stdin
when no argument is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = strings.TrimRight(string(data), "\r\n")
			}
			return runDetect(cmd.Context(), rootOpts, opts, text, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Locale, "locale", "l", "", "locale of the text (default server.default_locale)")
	cmd.Flags().BoolVar(&opts.Offsets, "offsets", false, "print flattened [count, begin, end, ...] offsets")
	return cmd
}

func runDetect(ctx context.Context, rootOpts *RootOptions, opts *detectOptions, text string, out io.Writer) error {
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

	locale := opts.Locale
	if locale == "" {
		locale = cfg.Server.DefaultLocale
	}

	registry := datetime.NewRegistry(source, log.WithComponent("datetime").Logger,
		datetime.WithMatchTimeout(cfg.Rules.MatchTimeout))

	encoder := json.NewEncoder(out)
	if opts.Offsets {
		return encoder.Encode(registry.DetectOffsets(ctx, locale, text))
	}

	runes := []rune(text)
	matches := registry.Detect(ctx, locale, text)
	spans := make([]detectedSpan, 0, len(matches))
	for _, m := range matches {
		spans = append(spans, detectedSpan{Match: m, Text: string(runes[m.Begin:m.End])})
	}

	encoder.SetIndent("", "  ")
	return encoder.Encode(spans)
}
