package hermes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/auth"
	"github.com/MikeSquared-Agency/verdict/internal/policy"
)

// ClassifiedEvent summarises one completed classification.
type ClassifiedEvent struct {
	PrincipalID string    `json:"principal_id,omitempty"`
	Messages    int       `json:"messages"`
	Escalated   []string  `json:"escalated"`
	MaxRisk     int       `json:"max_risk"`
	Tier        string    `json:"tier"`
	Timestamp   time.Time `json:"timestamp"`
}

// EscalationEvent is emitted for each message Stage 2 flagged.
type EscalationEvent struct {
	PrincipalID          string                              `json:"principal_id,omitempty"`
	MessageID            string                              `json:"message_id"`
	Author               string                              `json:"author"`
	OverallRisk          int                                 `json:"overall_risk"`
	Moderation           map[analyzer.ModerationCategory]int `json:"moderation"`
	Reasons              []string                            `json:"reasons"`
	ActionRecommendation analyzer.ActionRecommendation       `json:"action_recommendation"`
	Timestamp            time.Time                           `json:"timestamp"`
}

// Publisher is the publish side of Client.
type Publisher interface {
	Publish(subject string, data any) error
}

// Notifier publishes classification and escalation events.
type Notifier struct {
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewNotifier(pub Publisher, logger *slog.Logger) *Notifier {
	return &Notifier{pub: pub, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Notify publishes one classified event and one escalation event per
// escalated message. Every publish is attempted; failures are joined.
func (n *Notifier) Notify(_ context.Context, principal *auth.Principal, result *analyzer.Result) error {
	var principalID string
	if principal != nil {
		principalID = principal.ID
	}
	ts := n.now()
	escalated := result.Escalated()

	ids := make([]string, len(escalated))
	for i, rec := range escalated {
		ids[i] = rec.ID
	}

	var errs []error
	summary := ClassifiedEvent{
		PrincipalID: principalID,
		Messages:    len(result.Severity),
		Escalated:   ids,
		MaxRisk:     result.MaxRisk(),
		Tier:        policy.Tier(result.MaxRisk()),
		Timestamp:   ts,
	}
	if err := n.pub.Publish(SubjectClassified, summary); err != nil {
		errs = append(errs, fmt.Errorf("publish %s: %w", SubjectClassified, err))
	}

	for _, rec := range escalated {
		evt := EscalationEvent{
			PrincipalID:          principalID,
			MessageID:            rec.ID,
			Author:               rec.Author,
			OverallRisk:          rec.Scores.OverallRisk,
			Moderation:           rec.Scores.Moderation,
			Reasons:              rec.EscalationReasons,
			ActionRecommendation: rec.ActionRecommendation,
			Timestamp:            ts,
		}
		if err := n.pub.Publish(SubjectEscalation, evt); err != nil {
			errs = append(errs, fmt.Errorf("publish %s %s: %w", SubjectEscalation, rec.ID, err))
		}
	}

	if len(escalated) > 0 {
		n.logger.Info("published escalations", "count", len(escalated), "max_risk", summary.MaxRisk)
	}
	return errors.Join(errs...)
}
