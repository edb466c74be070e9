package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/MikeSquared-Agency/verdict/internal/classifier"
)

type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client sends classifier sessions through the Bedrock Converse API.
type Client struct {
	api       converseAPI
	modelID   string
	maxTokens int32
}

// NewClient loads the default AWS credential chain for region.
func NewClient(ctx context.Context, region, modelID string, maxTokens int) (*Client, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("bedrock: model id is required: %w", classifier.ErrConfiguration)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return newWithAPI(bedrockruntime.NewFromConfig(awsCfg), modelID, maxTokens), nil
}

func newWithAPI(api converseAPI, modelID string, maxTokens int) *Client {
	return &Client{api: api, modelID: modelID, maxTokens: int32(maxTokens)}
}

func (c *Client) Name() string { return "bedrock" }

func (c *Client) Open(_ context.Context, system string) (classifier.Session, error) {
	return &session{client: c, system: system}, nil
}

type session struct {
	client *Client
	system string
}

func (s *session) Send(ctx context.Context, payload string) (string, error) {
	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(s.client.modelID),
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: payload}},
		}},
	}
	if strings.TrimSpace(s.system) != "" {
		in.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: s.system}}
	}
	if s.client.maxTokens > 0 {
		in.InferenceConfig = &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(s.client.maxTokens)}
	}

	out, err := s.client.api.Converse(ctx, in)
	if err != nil {
		return "", fmt.Errorf("bedrock: converse: %w", err)
	}
	return outputText(out)
}

func outputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("bedrock: response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("bedrock: response did not include a message")
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", errors.New("bedrock: response contained no text")
	}
	return sb.String(), nil
}
