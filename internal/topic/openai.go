package topic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/neo/battlearena/internal/logging"
	"github.com/sashabaranov/go-openai"
)

const topicSystemPrompt = `You are the editor of a daily debate arena.
Propose ONE timely, debatable topic that reasonable people disagree on.

Your response MUST ONLY be a valid JSON object with this structure, starting with a { symbol:
{
    "title": "<short question or statement, under 100 characters>",
    "description": "<two or three sentences of neutral context>",
    "category": "<one of: tech, politics, science, culture, economy, sports>",
    "source": "<publication or 'editorial'>",
    "source_url": "<link or empty string>",
    "support_points": ["<argument for>", "<argument for>", "<argument for>"],
    "oppose_points": ["<argument against>", "<argument against>", "<argument against>"]
}`

// OpenAIConfig configures the OpenAI-backed provider
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint. Empty uses the public API.
	BaseURL string
	// Attempts is the number of tries for transient failures (default 3)
	Attempts int
	// Backoff is the first retry delay, doubled each attempt (default 2s)
	Backoff time.Duration
}

// OpenAIProvider asks a chat model for a new topic. Transient failures and
// repeats are retried internally; a rate-limit response is returned at once.
type OpenAIProvider struct {
	client   *openai.Client
	model    string
	history  History
	attempts int
	backoff  time.Duration
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider. history may be nil.
func NewOpenAIProvider(cfg OpenAIConfig, history History) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		history:  history,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
	}, nil
}

// GetDailyTopic implements Provider
func (p *OpenAIProvider) GetDailyTopic(ctx context.Context) (*Topic, error) {
	recent := recentTitles(ctx, p.history)

	var lastErr error
	delay := p.backoff
	for attempt := 1; attempt <= p.attempts; attempt++ {
		topic, err := p.generate(ctx, recent)
		if err == nil {
			return topic, nil
		}
		if IsRateLimit(err) {
			return nil, err
		}
		lastErr = err

		logging.Warn("Topic generation attempt failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})

		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrNoTopic, p.attempts, lastErr)
}

func (p *OpenAIProvider) generate(ctx context.Context, recent []string) (*Topic, error) {
	userPrompt := "Suggest today's debate topic."
	if len(recent) > 0 {
		userPrompt += "\nDo not repeat or closely paraphrase any of these recent topics:\n- " +
			strings.Join(recent, "\n- ")
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: topicSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.9,
	})
	if err != nil {
		if isRateLimitResponse(err) {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("topic request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}

	topic, err := parseTopic(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if topic.Source == "" {
		topic.Source = "openai"
	}
	if IsRepeat(topic.Title, recent) {
		return nil, fmt.Errorf("%w: %q repeats a recent topic", ErrInvalidTopic, topic.Title)
	}
	return topic, nil
}

func parseTopic(raw string) (*Topic, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	var topic Topic
	if err := json.Unmarshal([]byte(raw), &topic); err != nil {
		return nil, fmt.Errorf("failed to parse topic: %w", err)
	}
	if err := topic.Validate(); err != nil {
		return nil, err
	}
	return &topic, nil
}

func isRateLimitResponse(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	return false
}
