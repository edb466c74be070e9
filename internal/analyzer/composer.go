package analyzer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/verdict/internal/auth"
	"github.com/MikeSquared-Agency/verdict/internal/metrics"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

// HistoryWriter persists a classification for a principal.
type HistoryWriter interface {
	Append(ctx context.Context, principalID string, input []thread.Message, output *Result) error
}

// Notifier is told about every composed result so escalations can be routed.
type Notifier interface {
	Notify(ctx context.Context, principal *auth.Principal, result *Result) error
}

// DefaultNotifyTimeout bounds one background notification fan-out.
const DefaultNotifyTimeout = 30 * time.Second

// Composer assembles the final result and performs the best-effort side
// effects. Neither persistence nor notification can fail a classification.
type Composer struct {
	history       HistoryWriter
	notifier      Notifier
	logger        *slog.Logger
	metrics       *metrics.PipelineMetrics
	notifyTimeout time.Duration
	inflight      sync.WaitGroup
}

func NewComposer(history HistoryWriter, notifier Notifier, logger *slog.Logger, m *metrics.PipelineMetrics) *Composer {
	return &Composer{
		history:       history,
		notifier:      notifier,
		logger:        logger,
		metrics:       m,
		notifyTimeout: DefaultNotifyTimeout,
	}
}

// SetNotifyTimeout changes the deadline given to each notification fan-out.
func (c *Composer) SetNotifyTimeout(d time.Duration) {
	if d > 0 {
		c.notifyTimeout = d
	}
}

// Wait blocks until every background notification has finished.
func (c *Composer) Wait() {
	c.inflight.Wait()
}

// Compose builds the result and, when a principal is present, appends it to
// history. Notification runs after Compose returns. The result is returned
// regardless of what the side effects do.
func (c *Composer) Compose(ctx context.Context, principal *auth.Principal, forest []thread.Message, keywords []KeywordRecord, severity []SeverityRecord) *Result {
	result := &Result{
		Conversation: forest,
		Keywords:     keywords,
		Severity:     severity,
	}

	switch {
	case c.history == nil:
		c.metrics.ObservePersistence("skipped")
	case principal == nil:
		c.logger.Info("caller not authenticated, skipping history")
		c.metrics.ObservePersistence("skipped")
	default:
		if err := c.history.Append(ctx, principal.ID, forest, result); err != nil {
			c.logger.Error("failed to save classification history", "principal", principal.ID, "error", err)
			c.metrics.ObservePersistence("failed")
		} else {
			c.metrics.ObservePersistence("ok")
		}
	}

	if c.notifier != nil {
		c.notify(ctx, principal, result)
	}

	return result
}

// notify hands the result to the notifier in the background. The request
// context is detached so a disconnecting caller does not cut fan-out short.
// Notifiers must treat result as read-only.
func (c *Composer) notify(ctx context.Context, principal *auth.Principal, result *Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer cancel()
		if err := c.notifier.Notify(ctx, principal, result); err != nil {
			c.logger.Warn("failed to send escalation notifications", "error", err)
		}
	}()
}
