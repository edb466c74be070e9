package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MikeSquared-Agency/verdict/internal/auth"
	"github.com/MikeSquared-Agency/verdict/internal/classifier"
	"github.com/MikeSquared-Agency/verdict/internal/metrics"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

// ErrClassification is the single coarse failure surfaced to callers when
// either stage cannot produce usable output.
var ErrClassification = errors.New("failed to classify conversation")

// Analyzer runs the two-stage pipeline. It holds no per-request state and is
// safe for concurrent use.
type Analyzer struct {
	provider classifier.Provider
	keywords *KeywordStage
	severity *SeverityStage
	composer *Composer
	logger   *slog.Logger
	metrics  *metrics.PipelineMetrics
	tracer   trace.Tracer
}

type Option func(*Analyzer)

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithTracer overrides the default global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(a *Analyzer) { a.tracer = t }
}

// WithComposer replaces the default composer, which persists nothing.
func WithComposer(c *Composer) Option {
	return func(a *Analyzer) { a.composer = c }
}

func New(provider classifier.Provider, logger *slog.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider: provider,
		logger:   logger,
		tracer:   otel.Tracer("verdict.internal.analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.composer == nil {
		a.composer = NewComposer(nil, nil, logger, a.metrics)
	}
	a.keywords = &KeywordStage{stage{name: StageKeywords, logger: logger, metrics: a.metrics, tracer: a.tracer}}
	a.severity = &SeverityStage{stage{name: StageSeverity, logger: logger, metrics: a.metrics, tracer: a.tracer}}
	return a
}

// Classify runs keyword extraction, merges the keywords onto the flattened
// thread, runs severity scoring, and composes the result. Stage 2 depends on
// Stage 1's output, so the stages run strictly in sequence. principal may be
// nil; only authenticated results are persisted.
func (a *Analyzer) Classify(ctx context.Context, principal *auth.Principal, forest []thread.Message) (*Result, error) {
	ctx, span := a.tracer.Start(ctx, "analyzer.classify")
	defer span.End()

	flat := thread.Flatten(forest)
	span.SetAttributes(attribute.Int("messages", len(flat)))
	a.logger.Info("classifying conversation", "messages", len(flat), "provider", a.provider.Name())

	keywords, err := a.runKeywords(ctx, forest)
	if err != nil {
		return nil, a.fail(span, "", StageKeywords, err)
	}

	bundles := Merge(flat, keywords)
	if missing := len(flat) - matched(flat, keywords); missing > 0 {
		a.logger.Warn("keyword records missing for some messages", "missing", missing)
	}

	severity, err := a.runSeverity(ctx, bundles)
	if err != nil {
		return nil, a.fail(span, "", StageSeverity, err)
	}

	result := a.composer.Compose(ctx, principal, forest, keywords, severity)

	escalated := len(result.Escalated())
	a.metrics.ObserveClassify("ok")
	a.metrics.ObserveMessages(len(flat), escalated)
	a.logger.Info("classification complete",
		"messages", len(flat),
		"keyword_records", len(keywords),
		"severity_records", len(severity),
		"escalated", escalated,
		"max_risk", result.MaxRisk(),
	)
	return result, nil
}

// Keywords runs Stage 1 alone and returns its records unmerged. Nothing is
// persisted or notified.
func (a *Analyzer) Keywords(ctx context.Context, forest []thread.Message) ([]KeywordRecord, error) {
	ctx, span := a.tracer.Start(ctx, "analyzer.keywords_only")
	defer span.End()

	keywords, err := a.runKeywords(ctx, forest)
	if err != nil {
		return nil, a.fail(span, keywordsOnly, StageKeywords, err)
	}
	a.metrics.ObserveClassify(keywordsOnly + "ok")
	return keywords, nil
}

func (a *Analyzer) runKeywords(ctx context.Context, forest []thread.Message) ([]KeywordRecord, error) {
	sess, err := a.provider.Open(ctx, keywordSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("open keyword session: %w", err)
	}
	return a.keywords.Run(ctx, sess, forest)
}

func (a *Analyzer) runSeverity(ctx context.Context, bundles []Bundle) ([]SeverityRecord, error) {
	sess, err := a.provider.Open(ctx, severitySystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("open severity session: %w", err)
	}
	return a.severity.Run(ctx, sess, bundles)
}

// keywordsOnly prefixes outcome labels for Stage-1-only runs so they stay
// apart from full classifications.
const keywordsOnly = "keywords_"

func (a *Analyzer) fail(span trace.Span, mode, stage string, err error) error {
	span.RecordError(err)
	outcome := "stage_error"
	if errors.Is(err, ErrDecode) {
		outcome = "decode_error"
	}
	a.metrics.ObserveClassify(mode + outcome)
	a.logger.Error("classification failed", "stage", stage, "error", err)
	return fmt.Errorf("%w: %w", ErrClassification, err)
}

func matched(flat []thread.Flat, keywords []KeywordRecord) int {
	ids := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		ids[k.ID] = true
	}
	n := 0
	for _, f := range flat {
		if ids[f.ID] {
			n++
		}
	}
	return n
}
