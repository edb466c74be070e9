package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/batch"
	"github.com/MikeSquared-Agency/verdict/internal/config"
)

func annotateCmd() *cobra.Command {
	var (
		inPath  string
		outPath string
		mode    string
		retries int
		backoff time.Duration
		column  string
	)

	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate a CSV of conversations offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := setupLogging(cfg.LogLevel)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			provider, closeProvider, err := newProvider(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeProvider()

			in, err := os.Open(inPath)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer in.Close()

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer out.Close()

			runner := batch.NewRunner(batch.Config{
				Mode:       mode,
				MaxRetries: retries,
				Backoff:    backoff,
				Column:     column,
			}, analyzer.New(provider, logger), logger)

			sum, err := runner.Run(ctx, in, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Done. Wrote %s. Success: %s\n", outPath, sum)
			return nil
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "conversations.csv", "input CSV with a conversation column")
	cmd.Flags().StringVar(&outPath, "out", "analysis.csv", "output CSV (input,output)")
	cmd.Flags().StringVar(&mode, "mode", batch.ModeFull, "full or keywords")
	cmd.Flags().IntVar(&retries, "retries", 3, "attempts per row")
	cmd.Flags().DurationVar(&backoff, "backoff", 2*time.Second, "backoff step between attempts")
	cmd.Flags().StringVar(&column, "column", "conversation", "input column name; falls back to the first column")
	return cmd
}
