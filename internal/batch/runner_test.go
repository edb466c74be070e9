package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/auth"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

type stubPipeline struct {
	failures map[string]int // first message id → remaining failures
	calls    int
}

func (s *stubPipeline) fail(forest []thread.Message) error {
	s.calls++
	if len(forest) == 0 {
		return nil
	}
	id := forest[0].ID
	if s.failures[id] > 0 {
		s.failures[id]--
		return errors.New("failed to classify conversation: stage error")
	}
	return nil
}

func (s *stubPipeline) Classify(_ context.Context, _ *auth.Principal, forest []thread.Message) (*analyzer.Result, error) {
	if err := s.fail(forest); err != nil {
		return nil, err
	}
	return &analyzer.Result{Conversation: forest, Keywords: []analyzer.KeywordRecord{{ID: forest[0].ID, Keywords: []analyzer.Keyword{"casual"}}}}, nil
}

func (s *stubPipeline) Keywords(_ context.Context, forest []thread.Message) ([]analyzer.KeywordRecord, error) {
	if err := s.fail(forest); err != nil {
		return nil, err
	}
	return []analyzer.KeywordRecord{{ID: forest[0].ID, Author: forest[0].Author, Keywords: []analyzer.Keyword{"casual"}}}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func csvOf(rows ...[]string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.WriteAll(rows)
	return buf.String()
}

func readOutput(t *testing.T, out string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRun_MixedRows(t *testing.T) {
	in := csvOf(
		[]string{"source", "conversation"},
		[]string{"a", `{"conversation":[{"id":"1","author":"Sarah","message":"hi","replies":[{"id":"2","author":"Mark","message":"yo"}]}]}`},
		[]string{"b", ""},
		[]string{"c", `not json`},
		[]string{"d", `[{"id":"9","author":"Zara","message":"bare array"}]`},
		[]string{"e", `{"conversation":[{"id":"1","replies":[{"id":"1"}]}]}`},
	)

	var out bytes.Buffer
	r := NewRunner(Config{}, &stubPipeline{}, discardLogger())
	sum, err := r.Run(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 5, Success: 2}, sum)
	assert.Equal(t, "2/5", sum.String())

	rows := readOutput(t, out.String())
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"input", "output"}, rows[0])
	assert.Contains(t, rows[1][1], `"severity"`)
	assert.Equal(t, "ERROR: empty conversation cell", rows[2][1])
	assert.True(t, strings.HasPrefix(rows[3][1], "ERROR: invalid conversation JSON"))
	assert.Contains(t, rows[4][1], `"id":"9"`)
	assert.Contains(t, rows[5][1], "duplicate message id")
}

func TestRun_FirstColumnFallbackAndKeywordsMode(t *testing.T) {
	in := csvOf(
		[]string{"payload", "notes"},
		[]string{`{"conversation":[{"id":"1","author":"Sarah","message":"hi"}]}`, "x"},
	)

	var out bytes.Buffer
	r := NewRunner(Config{Mode: ModeKeywords}, &stubPipeline{}, discardLogger())
	sum, err := r.Run(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Success)

	rows := readOutput(t, out.String())
	assert.JSONEq(t, `[{"id":"1","author":"Sarah","keywords":["casual"]}]`, rows[1][1])
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	stub := &stubPipeline{failures: map[string]int{"1": 2}}
	in := csvOf([]string{"conversation"}, []string{`[{"id":"1","author":"a","message":"m"}]`})

	var out bytes.Buffer
	sum, err := NewRunner(Config{MaxRetries: 3}, stub, discardLogger()).Run(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Success)
	assert.Equal(t, 3, stub.calls)
}

func TestRun_RetriesExhausted(t *testing.T) {
	stub := &stubPipeline{failures: map[string]int{"1": 5}}
	in := csvOf([]string{"conversation"}, []string{`[{"id":"1","author":"a","message":"m"}]`})

	var out bytes.Buffer
	sum, err := NewRunner(Config{MaxRetries: 2}, stub, discardLogger()).Run(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 1, Success: 0}, sum)
	assert.Equal(t, 2, stub.calls)

	rows := readOutput(t, out.String())
	assert.True(t, strings.HasPrefix(rows[1][1], "ERROR after 2 attempts:"), rows[1][1])
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := csvOf([]string{"conversation"}, []string{`[{"id":"1"}]`})

	_, err := NewRunner(Config{}, &stubPipeline{}, discardLogger()).Run(ctx, strings.NewReader(in), io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingPipeline fails every call and cancels the run on the first one.
type cancellingPipeline struct {
	stubPipeline
	cancel context.CancelFunc
}

func (c *cancellingPipeline) Classify(ctx context.Context, p *auth.Principal, forest []thread.Message) (*analyzer.Result, error) {
	c.calls++
	c.cancel()
	return nil, errors.New("failed to classify conversation: stage error")
}

func TestRun_CancelledDuringBackoffReportsAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipeline := &cancellingPipeline{cancel: cancel}
	in := csvOf([]string{"conversation"}, []string{`[{"id":"1","author":"a","message":"m"}]`})

	var out bytes.Buffer
	cfg := Config{MaxRetries: 3, Backoff: time.Hour}
	sum, err := NewRunner(cfg, pipeline, discardLogger()).Run(ctx, strings.NewReader(in), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Summary{Total: 1, Success: 0}, sum)
	assert.Equal(t, 1, pipeline.calls)

	rows := readOutput(t, out.String())
	require.Len(t, rows, 2)
	assert.True(t, strings.HasPrefix(rows[1][1], "ERROR cancelled after 1 attempts:"), rows[1][1])
}

func TestRun_EmptyInputAndBadMode(t *testing.T) {
	_, err := NewRunner(Config{}, &stubPipeline{}, discardLogger()).Run(context.Background(), strings.NewReader(""), io.Discard)
	assert.Error(t, err)

	_, err = NewRunner(Config{Mode: "severity"}, &stubPipeline{}, discardLogger()).Run(context.Background(), strings.NewReader("conversation\n"), io.Discard)
	assert.Error(t, err)
}

func TestParseConversation(t *testing.T) {
	forest, err := ParseConversation(`{"conversation":[{"id":"1","replies":[{"id":"2"}]}]}`)
	require.NoError(t, err)
	assert.Equal(t, 2, thread.Count(forest))

	_, err = ParseConversation(`{"messages":[]}`)
	assert.Error(t, err)

	_, err = ParseConversation(`[{"author":"no id"}]`)
	assert.ErrorIs(t, err, thread.ErrMissingID)
}
