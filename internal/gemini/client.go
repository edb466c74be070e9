package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/MikeSquared-Agency/verdict/internal/classifier"
)

const (
	DefaultModel = "gemini-2.5-flash"

	// acknowledgement is the model turn that follows the system prompt
	// in every seeded chat.
	acknowledgement = "Okay, I understand. I will follow these instructions and return only JSON in the specified format."
)

// Client opens Gemini chat sessions that answer in JSON.
type Client struct {
	client    *genai.Client
	modelID   string
	maxTokens int32
}

func NewClient(ctx context.Context, apiKey, modelID string, maxTokens int) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required: %w", classifier.ErrConfiguration)
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Client{client: client, modelID: modelID, maxTokens: int32(maxTokens)}, nil
}

func (c *Client) Name() string { return "gemini" }

// Open starts a chat whose history already contains the system prompt
// and the model's acknowledgement of it.
func (c *Client) Open(_ context.Context, system string) (classifier.Session, error) {
	model := c.client.GenerativeModel(c.modelID)
	model.ResponseMIMEType = "application/json"
	if c.maxTokens > 0 {
		model.SetMaxOutputTokens(c.maxTokens)
	}

	cs := model.StartChat()
	cs.History = seedHistory(system)
	return &session{chat: cs}, nil
}

// Close releases resources held by the Gemini client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

type session struct {
	chat *genai.ChatSession
}

func (s *session) Send(ctx context.Context, payload string) (string, error) {
	resp, err := s.chat.SendMessage(ctx, genai.Text(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: send message: %w", err)
	}
	return responseText(resp)
}

func seedHistory(system string) []*genai.Content {
	return []*genai.Content{
		{Role: "user", Parts: []genai.Part{genai.Text(system)}},
		{Role: "model", Parts: []genai.Part{genai.Text(acknowledgement)}},
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini: no candidates returned")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("gemini: empty content")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini: response contained no text parts")
	}
	return sb.String(), nil
}
