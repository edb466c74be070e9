package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/verdict/internal/classifier"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 8192
)

// ErrTruncated is returned when the model stopped because it ran out of
// output tokens. The partial text is never handed to a decoder.
var ErrTruncated = errors.New("anthropic: response truncated at max_tokens")

// APIError is a non-200 reply from the Messages API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d: %s: %s", e.Status, e.Type, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
// 529 is the API's overloaded status.
func (e *APIError) Retryable() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		return true
	}
	return false
}

type Client struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	http      *http.Client
	retries   int
	backoff   time.Duration
}

type Option func(*Client)

// WithBaseURL overrides the Messages endpoint.
func WithBaseURL(url string) Option { return func(c *Client) { c.baseURL = url } }

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithRetry sets how many extra attempts a retryable failure gets and the
// base delay, which grows linearly with each attempt. Clients do not retry
// unless this is set.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.backoff = backoff
	}
}

func NewClient(apiKey, model string, maxTokens int, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic: api key is required: %w", classifier.ErrConfiguration)
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	c := &Client{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the concatenated text of one reply plus its accounting.
type Completion struct {
	Text         string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Create sends one Messages request. With WithRetry set, overloads and rate
// limits are retried.
func (c *Client) Create(ctx context.Context, system string, messages []Message) (*Completion, error) {
	body, err := json.Marshal(request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  messages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		out, err := c.do(ctx, body)
		var apiErr *APIError
		if err == nil || !errors.As(err, &apiErr) || !apiErr.Retryable() || attempt >= c.retries {
			return out, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt+1)):
		}
	}
}

func (c *Client) do(ctx context.Context, body []byte) (*Completion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Type != "" {
			apiErr.Type, apiErr.Message = eb.Error.Type, eb.Error.Message
		}
		return nil, apiErr
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	out := &Completion{
		StopReason:   r.StopReason,
		InputTokens:  r.Usage.InputTokens,
		OutputTokens: r.Usage.OutputTokens,
	}
	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out.Text = sb.String()
	return out, nil
}

func (c *Client) Name() string { return "anthropic" }

// Open returns a session that sends every payload as a single user turn under
// the given system prompt.
func (c *Client) Open(_ context.Context, system string) (classifier.Session, error) {
	return &session{client: c, system: system}, nil
}

type session struct {
	client *Client
	system string
}

func (s *session) Send(ctx context.Context, payload string) (string, error) {
	out, err := s.client.Create(ctx, s.system, []Message{{Role: "user", Content: payload}})
	if err != nil {
		return "", err
	}
	if out.StopReason == "max_tokens" {
		return "", ErrTruncated
	}
	if out.Text == "" {
		return "", errors.New("anthropic: empty response content")
	}
	return out.Text, nil
}
