package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MikeSquared-Agency/verdict/internal/classifier"
	"github.com/MikeSquared-Agency/verdict/internal/metrics"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

const (
	StageKeywords = "keywords"
	StageSeverity = "severity"
)

// KeywordStage runs Stage 1: one keyword record per message.
type KeywordStage struct {
	stage
}

// Run sends the whole forest to sess in one round trip.
func (s *KeywordStage) Run(ctx context.Context, sess classifier.Session, forest []thread.Message) ([]KeywordRecord, error) {
	ctx, span := s.tracer.Start(ctx, "analyzer.keywords")
	defer span.End()
	span.SetAttributes(attribute.Int("messages", thread.Count(forest)))

	if forest == nil {
		forest = []thread.Message{}
	}
	payload, err := json.MarshalIndent(thread.Conversation{Messages: forest}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal conversation: %w", err)
	}

	raw, err := s.send(ctx, sess, string(payload))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	records, err := Decode[[]KeywordRecord](StageKeywords, raw, false)
	if err == nil && records == nil {
		err = &DecodeError{Stage: StageKeywords, Raw: raw, Err: errors.New("expected a JSON array")}
	}
	if err != nil {
		s.decodeFailed(span, raw, err)
		return nil, err
	}

	s.metrics.ObserveVocabularyWarnings(StageKeywords, checkKeywords(s.logger, records))
	return records, nil
}

// SeverityStage runs Stage 2: one severity record per bundle.
type SeverityStage struct {
	stage
}

// Run sends every bundle to sess in one round trip. Output goes through the
// impact-sign repair before strict decoding.
func (s *SeverityStage) Run(ctx context.Context, sess classifier.Session, bundles []Bundle) ([]SeverityRecord, error) {
	ctx, span := s.tracer.Start(ctx, "analyzer.severity")
	defer span.End()
	span.SetAttributes(attribute.Int("bundles", len(bundles)))

	if bundles == nil {
		bundles = []Bundle{}
	}
	payload, err := json.MarshalIndent(bundles, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal bundles: %w", err)
	}

	raw, err := s.send(ctx, sess, string(payload))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	records, err := Decode[[]SeverityRecord](StageSeverity, raw, true)
	if err == nil && records == nil {
		err = &DecodeError{Stage: StageSeverity, Raw: raw, Err: errors.New("expected a JSON array")}
	}
	if err != nil {
		s.decodeFailed(span, raw, err)
		return nil, err
	}

	s.metrics.ObserveVocabularyWarnings(StageSeverity, checkSeverity(s.logger, records))
	return records, nil
}

type stage struct {
	name    string
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics
	tracer  trace.Tracer
}

func (s *stage) send(ctx context.Context, sess classifier.Session, payload string) (string, error) {
	s.logger.Info("stage started", "stage", s.name, "payload_len", len(payload))
	start := time.Now()
	raw, err := sess.Send(ctx, payload)
	s.metrics.ObserveStage(s.name, time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%s: classifier call: %w", s.name, err)
	}
	s.logger.Info("stage complete", "stage", s.name, "duration_ms", time.Since(start).Milliseconds(), "response_len", len(raw))
	return raw, nil
}

func (s *stage) decodeFailed(span trace.Span, raw string, err error) {
	span.RecordError(err)
	s.metrics.ObserveDecodeFailure(s.name)
	s.logger.Error("failed to parse classifier response",
		"stage", s.name,
		"error", err,
		"raw", raw,
	)
}
