package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// SubjectReviewed carries moderator verdicts on posted escalations.
const SubjectReviewed = "swarm.verdict.escalation.reviewed"

// ReactionEvent is the structure received from slack-forwarder via NATS.
type ReactionEvent struct {
	Reaction  string `json:"reaction"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
}

// ReviewOutcome is a moderator's verdict on an escalation.
type ReviewOutcome string

const (
	OutcomeConfirmed     ReviewOutcome = "confirmed"
	OutcomeFalsePositive ReviewOutcome = "false_positive"
	OutcomeSkipped       ReviewOutcome = "skipped"
	OutcomeUnknown       ReviewOutcome = "unknown"
)

// ParseReaction converts a Slack reaction emoji name to a review outcome.
func ParseReaction(reaction string) ReviewOutcome {
	switch reaction {
	case "+1", "thumbsup":
		return OutcomeConfirmed
	case "-1", "thumbsdown":
		return OutcomeFalsePositive
	case "shrug":
		return OutcomeSkipped
	default:
		return OutcomeUnknown
	}
}

// ParseReactionEvent parses a slack-forwarder payload into a ReactionEvent.
func ParseReactionEvent(data []byte) (*ReactionEvent, error) {
	// slack-forwarder wraps event fields in a metadata object.
	var wrapper struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse reaction wrapper: %w", err)
	}

	evt := &ReactionEvent{
		Reaction:  wrapper.Metadata["text"],
		UserID:    wrapper.Metadata["user_id"],
		Channel:   wrapper.Metadata["channel_id"],
		MessageTS: wrapper.Metadata["message_ts"],
	}

	if len(evt.Reaction) > 2 && evt.Reaction[0] == ':' && evt.Reaction[len(evt.Reaction)-1] == ':' {
		evt.Reaction = evt.Reaction[1 : len(evt.Reaction)-1]
	}

	return evt, nil
}

// ReviewEvent records a moderator's verdict on one escalated message.
type ReviewEvent struct {
	PrincipalID string        `json:"principal_id,omitempty"`
	MessageID   string        `json:"message_id"`
	Author      string        `json:"author"`
	OverallRisk int           `json:"overall_risk"`
	Outcome     ReviewOutcome `json:"outcome"`
	ReviewerID  string        `json:"reviewer_id"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Publisher is the publish side of the message bus.
type Publisher interface {
	Publish(subject string, data any) error
}

// ReviewHandler turns reactions on escalation posts into review events.
type ReviewHandler struct {
	poster *Poster
	pub    Publisher
	logger *slog.Logger
}

func NewReviewHandler(poster *Poster, pub Publisher, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{poster: poster, pub: pub, logger: logger}
}

// Handle processes one reaction payload. Reactions on messages this process
// did not post, and emoji with no meaning, are ignored.
func (h *ReviewHandler) Handle(ctx context.Context, data []byte) error {
	evt, err := ParseReactionEvent(data)
	if err != nil {
		return err
	}
	outcome := ParseReaction(evt.Reaction)
	if outcome == OutcomeUnknown {
		return nil
	}
	posted, ok := h.poster.Lookup(evt.MessageTS)
	if !ok {
		h.logger.Debug("reaction on untracked message", "ts", evt.MessageTS)
		return nil
	}

	review := ReviewEvent{
		PrincipalID: posted.PrincipalID,
		MessageID:   posted.MessageID,
		Author:      posted.Author,
		OverallRisk: posted.OverallRisk,
		Outcome:     outcome,
		ReviewerID:  evt.UserID,
		Timestamp:   time.Now().UTC(),
	}
	if err := h.pub.Publish(SubjectReviewed, review); err != nil {
		return fmt.Errorf("publish review: %w", err)
	}
	h.logger.Info("escalation reviewed", "message_id", posted.MessageID, "outcome", outcome, "reviewer", evt.UserID)

	if err := h.poster.PostThread(ctx, posted.TS, fmt.Sprintf("Marked *%s* by <@%s>", outcome, evt.UserID)); err != nil {
		h.logger.Warn("failed to post review ack", "ts", posted.TS, "error", err)
	}
	return nil
}
