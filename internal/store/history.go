package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

// ErrPrincipalRequired is returned when a history operation has no owner.
var ErrPrincipalRequired = errors.New("principal id is required")

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Record is one persisted classification.
type Record struct {
	ID             uuid.UUID        `json:"id"`
	UserIdentifier string           `json:"user_identifier"`
	InputChat      []thread.Message `json:"input_chat"`
	OutputAnalysis *analyzer.Result `json:"output_analysis"`
	CreatedAt      time.Time        `json:"created_at"`
}

// History is an append-only, per-principal log of classifications.
type History interface {
	Append(ctx context.Context, principalID string, input []thread.Message, output *analyzer.Result) error
	List(ctx context.Context, principalID string, limit int) ([]Record, error)
}

var (
	_ History = (*Store)(nil)
	_ History = (*RedisHistory)(nil)
)

// Append inserts one row into classification_history.
func (s *Store) Append(ctx context.Context, principalID string, input []thread.Message, output *analyzer.Result) error {
	if principalID == "" {
		return ErrPrincipalRequired
	}
	ctx, span := s.tracer.Start(ctx, "store.history.append")
	defer span.End()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal input chat: %w", err)
	}
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output analysis: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO classification_history (id, user_identifier, input_chat, output_analysis, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		uuid.New(), principalID, inputJSON, outputJSON,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert classification history: %w", err)
	}
	return nil
}

// List returns the principal's most recent classifications, newest first.
func (s *Store) List(ctx context.Context, principalID string, limit int) ([]Record, error) {
	if principalID == "" {
		return nil, ErrPrincipalRequired
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	ctx, span := s.tracer.Start(ctx, "store.history.list")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT id, user_identifier, input_chat, output_analysis, created_at
		FROM classification_history
		WHERE user_identifier = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		principalID, limit,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query classification history: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			id         string
			rec        Record
			inputJSON  []byte
			outputJSON []byte
		)
		if err := rows.Scan(&id, &rec.UserIdentifier, &inputJSON, &outputJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan classification history: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse history id %q: %w", id, err)
		}
		if err := json.Unmarshal(inputJSON, &rec.InputChat); err != nil {
			return nil, fmt.Errorf("decode input chat %s: %w", id, err)
		}
		if err := json.Unmarshal(outputJSON, &rec.OutputAnalysis); err != nil {
			return nil, fmt.Errorf("decode output analysis %s: %w", id, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classification history: %w", err)
	}
	return out, nil
}
