package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MikeSquared-Agency/verdict/internal/classifier"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

type Config struct {
	Port            int
	LogLevel        string
	Provider        string
	GoogleAPIKey    string
	GeminiModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	AWSRegion       string
	BedrockModelID  string
	StageMaxTokens  int
	ClassifyTimeout time.Duration

	DatabaseURL   string
	AutoMigrate   bool
	RedisAddr     string
	RedisPassword string
	HistoryLimit  int

	NatsURL           string
	NatsToken         string
	NatsMaxConcurrent int
	ReactionSubject   string

	SlackBotToken string
	SlackChannel  string

	JWTSecret string
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, fills in variables that are not already set.
func Load() Config {
	_ = godotenv.Load(".env")

	return Config{
		Port:              envInt("VERDICT_PORT", 8760),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		Provider:          strings.ToLower(envStr("VERDICT_PROVIDER", ProviderGemini)),
		GoogleAPIKey:      envStr("GOOGLE_API_KEY", ""),
		GeminiModel:       envStr("GEMINI_MODEL", "gemini-2.5-flash"),
		AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    envStr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		AWSRegion:         envStr("AWS_REGION", "us-east-1"),
		BedrockModelID:    envStr("BEDROCK_MODEL_ID", ""),
		StageMaxTokens:    envInt("STAGE_MAX_TOKENS", 8192),
		ClassifyTimeout:   time.Duration(envInt("CLASSIFY_TIMEOUT_SECONDS", 300)) * time.Second,
		DatabaseURL:       envStr("DATABASE_URL", ""),
		AutoMigrate:       envBool("AUTO_MIGRATE", false),
		RedisAddr:         envStr("REDIS_ADDR", ""),
		RedisPassword:     envStr("REDIS_PASSWORD", ""),
		HistoryLimit:      envInt("HISTORY_LIMIT", 100),
		NatsURL:           envStr("NATS_URL", ""),
		NatsToken:         envStr("NATS_TOKEN", ""),
		NatsMaxConcurrent: envInt("NATS_MAX_CONCURRENT", 8),
		ReactionSubject:   envStr("SLACK_REACTIONS_SUBJECT", "swarm.slack.reaction"),
		SlackBotToken:     envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:      envStr("SLACK_ESCALATIONS_CHANNEL", ""),
		JWTSecret:         envStr("AUTH_JWT_SECRET", ""),
	}
}

// Validate checks that the selected provider can be constructed.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for provider %s: %w", c.Provider, classifier.ErrConfiguration)
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %s: %w", c.Provider, classifier.ErrConfiguration)
		}
	case ProviderBedrock:
		if c.BedrockModelID == "" {
			return fmt.Errorf("BEDROCK_MODEL_ID is required for provider %s: %w", c.Provider, classifier.ErrConfiguration)
		}
	default:
		return fmt.Errorf("unknown provider %q: %w", c.Provider, classifier.ErrConfiguration)
	}
	if c.StageMaxTokens <= 0 {
		return fmt.Errorf("STAGE_MAX_TOKENS must be positive: %w", classifier.ErrConfiguration)
	}
	return nil
}

// SlackEnabled reports whether escalations should be posted to Slack.
func (c Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
