package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/auth"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxTracked bounds the ts → escalation map used to resolve reactions.
const maxTracked = 1000

// PostedEscalation is what a moderator's reaction refers back to.
type PostedEscalation struct {
	TS          string
	PrincipalID string
	MessageID   string
	Author      string
	OverallRisk int
}

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string

	mu     sync.Mutex
	posted map[string]PostedEscalation
	order  []string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
		posted:  make(map[string]PostedEscalation),
	}
}

// Notify posts every escalated message in result to the escalations channel.
// Results with nothing escalated post nothing.
func (p *Poster) Notify(ctx context.Context, principal *auth.Principal, result *analyzer.Result) error {
	_, err := p.PostEscalations(ctx, principal, result)
	return err
}

// PostEscalations posts one message per escalated record and returns the
// Slack timestamps of the posts that succeeded.
func (p *Poster) PostEscalations(ctx context.Context, principal *auth.Principal, result *analyzer.Result) ([]string, error) {
	var principalID string
	if principal != nil {
		principalID = principal.ID
	}

	var (
		tss  []string
		errs []error
	)
	for _, rec := range result.Escalated() {
		ts, err := p.post(ctx, formatEscalation(rec, messageText(result, rec), principalID))
		if err != nil {
			errs = append(errs, fmt.Errorf("post escalation %s: %w", rec.ID, err))
			continue
		}
		p.track(PostedEscalation{
			TS:          ts,
			PrincipalID: principalID,
			MessageID:   rec.ID,
			Author:      rec.Author,
			OverallRisk: rec.Scores.OverallRisk,
		})
		p.logger.Info("posted escalation to slack", "ts", ts, "message_id", rec.ID, "risk", rec.Scores.OverallRisk)
		tss = append(tss, ts)
	}
	return tss, errors.Join(errs...)
}

// Lookup resolves a Slack message timestamp to the escalation posted there.
func (p *Poster) Lookup(ts string) (PostedEscalation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.posted[ts]
	return e, ok
}

func (p *Poster) track(e PostedEscalation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted[e.TS] = e
	p.order = append(p.order, e.TS)
	if len(p.order) > maxTracked {
		delete(p.posted, p.order[0])
		p.order = p.order[1:]
	}
}

func (p *Poster) post(ctx context.Context, text string) (string, error) {
	return p.chatPostMessage(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": text},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{"type": "mrkdwn", "text": "React: :+1: confirm | :-1: false positive | :shrug: skip"},
				},
			},
		},
	})
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.chatPostMessage(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

// chatPostMessage sends one chat.postMessage call and returns the ts of the
// created message.
func (p *Poster) chatPostMessage(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse slack response (status %d): %w", resp.StatusCode, err)
	}
	if !out.OK {
		return "", fmt.Errorf("slack error: %s", out.Error)
	}
	return out.TS, nil
}

// messageText prefers the text Stage 2 echoed back and falls back to the
// original conversation.
func messageText(result *analyzer.Result, rec analyzer.SeverityRecord) string {
	if rec.Message != "" {
		return rec.Message
	}
	if m, ok := thread.Index(thread.Flatten(result.Conversation))[rec.ID]; ok {
		return m.Text
	}
	return ""
}

func formatEscalation(rec analyzer.SeverityRecord, text, principalID string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Escalation:* message `%s` by *%s* (risk %d)\n", rec.ID, rec.Author, rec.Scores.OverallRisk)
	if text != "" {
		fmt.Fprintf(&sb, "> %s\n", strings.ReplaceAll(text, "\n", "\n> "))
	}
	if principalID != "" {
		fmt.Fprintf(&sb, "*Requested by:* %s\n", principalID)
	}
	if len(rec.EscalationReasons) > 0 {
		fmt.Fprintf(&sb, "*Reasons:* %s\n", strings.Join(rec.EscalationReasons, ", "))
	}

	cats := make([]string, 0, len(rec.Scores.Moderation))
	for c, v := range rec.Scores.Moderation {
		if v > 0 {
			cats = append(cats, fmt.Sprintf("%s=%d", c, v))
		}
	}
	sort.Strings(cats)
	if len(cats) > 0 {
		fmt.Fprintf(&sb, "*Moderation:* %s\n", strings.Join(cats, ", "))
	}
	if rec.ActionRecommendation != "" {
		fmt.Fprintf(&sb, "*Recommended:* %s", strings.ReplaceAll(string(rec.ActionRecommendation), "|", " + "))
	}
	return strings.TrimRight(sb.String(), "\n")
}
