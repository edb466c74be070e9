package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

const historyKeyPrefix = "verdict:history:"

// RedisHistory keeps a capped list of recent classifications per principal.
// Newest entries sit at the head of the list.
type RedisHistory struct {
	redis      *redis.Client
	tracer     trace.Tracer
	maxEntries int64
	now        func() time.Time
}

func NewRedisHistory(client *redis.Client, maxEntries int) *RedisHistory {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &RedisHistory{
		redis:      client,
		tracer:     otel.Tracer("verdict.internal.store.redis"),
		maxEntries: int64(maxEntries),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func historyKey(principalID string) string {
	return historyKeyPrefix + principalID
}

func (h *RedisHistory) Append(ctx context.Context, principalID string, input []thread.Message, output *analyzer.Result) error {
	if principalID == "" {
		return ErrPrincipalRequired
	}
	data, err := json.Marshal(Record{
		ID:             uuid.New(),
		UserIdentifier: principalID,
		InputChat:      input,
		OutputAnalysis: output,
		CreatedAt:      h.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}

	ctx, span := h.tracer.Start(ctx, "store.redis_history.append")
	defer span.End()

	key := historyKey(principalID)
	pipe := h.redis.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, h.maxEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (h *RedisHistory) List(ctx context.Context, principalID string, limit int) ([]Record, error) {
	if principalID == "" {
		return nil, ErrPrincipalRequired
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	ctx, span := h.tracer.Start(ctx, "store.redis_history.list")
	defer span.End()

	raw, err := h.redis.LRange(ctx, historyKey(principalID), 0, int64(limit)-1).Result()
	if err != nil {
		if err == redis.Nil {
			return []Record{}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("list history: %w", err)
	}

	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
