// Package batch annotates a CSV of conversations offline.
package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/auth"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

const (
	ModeFull     = "full"
	ModeKeywords = "keywords"
)

// Pipeline is the part of the analyzer the runner drives.
type Pipeline interface {
	Classify(ctx context.Context, principal *auth.Principal, forest []thread.Message) (*analyzer.Result, error)
	Keywords(ctx context.Context, forest []thread.Message) ([]analyzer.KeywordRecord, error)
}

// Config holds the annotate command configuration.
type Config struct {
	Mode       string        // full (both stages) or keywords (Stage 1 only)
	MaxRetries int           // attempts per row, default 3
	Backoff    time.Duration // multiplied by the attempt number between retries
	Column     string        // input column, default "conversation"
}

// Summary counts rows processed by Run.
type Summary struct {
	Total   int
	Success int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d", s.Success, s.Total)
}

// Runner orchestrates a batch annotation.
type Runner struct {
	cfg      Config
	pipeline Pipeline
	logger   *slog.Logger
}

func NewRunner(cfg Config, p Pipeline, logger *slog.Logger) *Runner {
	if cfg.Mode == "" {
		cfg.Mode = ModeFull
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Column == "" {
		cfg.Column = "conversation"
	}
	return &Runner{cfg: cfg, pipeline: p, logger: logger}
}

// Run reads conversations from in and writes input,output rows to out. A row
// that cannot be annotated gets "ERROR: ..." in its output cell and does not
// stop the run. Only I/O failures and cancellation end it early.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) (Summary, error) {
	var sum Summary
	if r.cfg.Mode != ModeFull && r.cfg.Mode != ModeKeywords {
		return sum, fmt.Errorf("unknown mode %q", r.cfg.Mode)
	}

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return sum, errors.New("input has no header row")
		}
		return sum, fmt.Errorf("read header: %w", err)
	}
	col := columnIndex(header, r.cfg.Column)

	writer := csv.NewWriter(out)
	if err := writer.Write([]string{"input", "output"}); err != nil {
		return sum, fmt.Errorf("write header: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			writer.Flush()
			return sum, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("read row %d: %w", sum.Total+1, err)
		}
		sum.Total++

		var cell string
		if col < len(row) {
			cell = strings.TrimSpace(row[col])
		}

		output, ok := r.annotate(ctx, sum.Total, cell)
		if ok {
			sum.Success++
		}
		if err := writer.Write([]string{cell, output}); err != nil {
			return sum, fmt.Errorf("write row %d: %w", sum.Total, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return sum, fmt.Errorf("flush output: %w", err)
	}
	r.logger.Info("annotation complete", "total", sum.Total, "success", sum.Success, "mode", r.cfg.Mode)
	return sum, nil
}

func (r *Runner) annotate(ctx context.Context, rowNum int, cell string) (string, bool) {
	if cell == "" {
		return "ERROR: empty conversation cell", false
	}
	forest, err := ParseConversation(cell)
	if err != nil {
		return "ERROR: " + err.Error(), false
	}

	var lastErr error
	attempts := 0
	for attempts < r.cfg.MaxRetries {
		attempts++
		out, err := r.runOnce(ctx, forest)
		if err == nil {
			return out, true
		}
		lastErr = err
		r.logger.Warn("row annotation failed", "row", rowNum, "attempt", attempts, "error", err)
		if attempts < r.cfg.MaxRetries && !sleep(ctx, r.cfg.Backoff*time.Duration(attempts)) {
			return fmt.Sprintf("ERROR cancelled after %d attempts: %v", attempts, lastErr), false
		}
	}
	return fmt.Sprintf("ERROR after %d attempts: %v", attempts, lastErr), false
}

func (r *Runner) runOnce(ctx context.Context, forest []thread.Message) (string, error) {
	var v any
	switch r.cfg.Mode {
	case ModeKeywords:
		kw, err := r.pipeline.Keywords(ctx, forest)
		if err != nil {
			return "", err
		}
		v = kw
	default:
		res, err := r.pipeline.Classify(ctx, nil, forest)
		if err != nil {
			return "", err
		}
		v = res
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}
	return string(data), nil
}

// ParseConversation accepts either the {"conversation": [...]} envelope or a
// bare array of root messages, and validates ids.
func ParseConversation(cell string) ([]thread.Message, error) {
	var forest []thread.Message
	if strings.HasPrefix(cell, "[") {
		if err := json.Unmarshal([]byte(cell), &forest); err != nil {
			return nil, fmt.Errorf("invalid conversation JSON: %w", err)
		}
	} else {
		var conv thread.Conversation
		if err := json.Unmarshal([]byte(cell), &conv); err != nil {
			return nil, fmt.Errorf("invalid conversation JSON: %w", err)
		}
		if conv.Messages == nil {
			return nil, errors.New("conversation field is missing")
		}
		forest = conv.Messages
	}
	if err := thread.Validate(forest); err != nil {
		return nil, err
	}
	return forest, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), name) {
			return i
		}
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
