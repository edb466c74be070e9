package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/auth"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

type published struct {
	subject string
	data    any
}

type recordingPublisher struct {
	msgs    []published
	failOn  string
	failErr error
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	if subject == p.failOn {
		return p.failErr
	}
	p.msgs = append(p.msgs, published{subject, data})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func escalatedResult() *analyzer.Result {
	return &analyzer.Result{
		Severity: []analyzer.SeverityRecord{
			{ID: "1", Author: "Sarah", Scores: analyzer.Scores{OverallRisk: 4}, ActionRecommendation: "none"},
			{ID: "2", Author: "Jane", Scores: analyzer.Scores{
				OverallRisk: 82,
				Moderation:  map[analyzer.ModerationCategory]int{analyzer.ModThreatViolence: 85},
			}, Escalate: true, EscalationReasons: []string{"threat_violence>=60"}, ActionRecommendation: "manual_review|suspend"},
		},
	}
}

func TestNotifier_PublishesSummaryAndEscalations(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifier(pub, testLogger())
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	err := n.Notify(context.Background(), &auth.Principal{ID: "mod-1"}, escalatedResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(pub.msgs))
	}

	summary, ok := pub.msgs[0].data.(ClassifiedEvent)
	if !ok || pub.msgs[0].subject != SubjectClassified {
		t.Fatalf("expected classified event first, got %s %T", pub.msgs[0].subject, pub.msgs[0].data)
	}
	if summary.Messages != 2 || summary.MaxRisk != 82 || summary.Tier != "manual_review" {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(summary.Escalated) != 1 || summary.Escalated[0] != "2" {
		t.Errorf("expected escalated [2], got %v", summary.Escalated)
	}
	if !summary.Timestamp.Equal(fixed) || summary.PrincipalID != "mod-1" {
		t.Errorf("unexpected summary metadata: %+v", summary)
	}

	evt, ok := pub.msgs[1].data.(EscalationEvent)
	if !ok || pub.msgs[1].subject != SubjectEscalation {
		t.Fatalf("expected escalation event, got %s %T", pub.msgs[1].subject, pub.msgs[1].data)
	}
	if evt.MessageID != "2" || evt.Author != "Jane" || evt.OverallRisk != 82 {
		t.Errorf("unexpected escalation event: %+v", evt)
	}
	if evt.ActionRecommendation != "manual_review|suspend" {
		t.Errorf("expected action recommendation carried through, got %q", evt.ActionRecommendation)
	}
}

func TestNotifier_NoEscalations(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifier(pub, testLogger())

	res := &analyzer.Result{Severity: []analyzer.SeverityRecord{{ID: "1", Scores: analyzer.Scores{OverallRisk: 10}}}}
	if err := n.Notify(context.Background(), nil, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].subject != SubjectClassified {
		t.Fatalf("expected only the classified event, got %+v", pub.msgs)
	}
	if pub.msgs[0].data.(ClassifiedEvent).PrincipalID != "" {
		t.Error("expected empty principal for anonymous caller")
	}
}

func TestNotifier_JoinsPublishErrors(t *testing.T) {
	boom := errors.New("nats: connection closed")
	pub := &recordingPublisher{failOn: SubjectClassified, failErr: boom}
	n := NewNotifier(pub, testLogger())

	err := n.Notify(context.Background(), nil, escalatedResult())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined publish error, got %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].subject != SubjectEscalation {
		t.Errorf("expected escalation still published, got %+v", pub.msgs)
	}
}

type stubClassifier struct {
	principal *auth.Principal
	forest    []thread.Message
	result    *analyzer.Result
	err       error
	deadline  bool
}

func (s *stubClassifier) Classify(ctx context.Context, principal *auth.Principal, forest []thread.Message) (*analyzer.Result, error) {
	s.principal = principal
	s.forest = forest
	_, s.deadline = ctx.Deadline()
	return s.result, s.err
}

func decodeReply(t *testing.T, data []byte) ClassifyReply {
	t.Helper()
	var r ClassifyReply
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("reply is not JSON: %v (%s)", err, data)
	}
	return r
}

func TestClassifyHandler_Success(t *testing.T) {
	stub := &stubClassifier{result: escalatedResult()}
	h := ClassifyHandler(stub, time.Minute, testLogger())

	req := `{"principal_id":"svc-1","conversation":[{"id":"1","author":"Sarah","message":"hi","replies":[{"id":"2","author":"Jane","message":"..."}]}]}`
	reply := decodeReply(t, h(context.Background(), []byte(req)))

	if reply.Error != "" {
		t.Fatalf("unexpected error reply: %s", reply.Error)
	}
	if reply.Result == nil || len(reply.Result.Severity) != 2 {
		t.Fatalf("expected result with 2 severity records, got %+v", reply.Result)
	}
	if stub.principal == nil || stub.principal.ID != "svc-1" {
		t.Errorf("expected principal svc-1, got %+v", stub.principal)
	}
	if thread.Count(stub.forest) != 2 {
		t.Errorf("expected 2 messages forwarded, got %d", thread.Count(stub.forest))
	}
	if !stub.deadline {
		t.Error("expected classification to run under a deadline")
	}
}

func TestClassifyHandler_Rejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"missing conversation", `{"principal_id":"x"}`},
		{"duplicate ids", `{"conversation":[{"id":"1","replies":[{"id":"1"}]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubClassifier{}
			reply := decodeReply(t, ClassifyHandler(stub, 0, testLogger())(context.Background(), []byte(tc.body)))
			if reply.Error == "" {
				t.Fatal("expected error reply")
			}
			if stub.forest != nil {
				t.Error("classifier should not be called for invalid input")
			}
		})
	}
}

func TestClassifyHandler_ClassificationFailureIsGeneric(t *testing.T) {
	stub := &stubClassifier{err: errors.New("keywords: decode: invalid character 'S'")}
	reply := decodeReply(t, ClassifyHandler(stub, 0, testLogger())(context.Background(), []byte(`{"conversation":[]}`)))

	if reply.Error != classifyFailed {
		t.Errorf("expected generic failure, got %q", reply.Error)
	}
	if reply.Result != nil {
		t.Error("expected no result on failure")
	}
	if stub.principal != nil {
		t.Error("expected anonymous principal")
	}
}
