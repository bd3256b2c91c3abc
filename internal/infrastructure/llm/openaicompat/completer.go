// Package openaicompat talks to any OpenAI-compatible chat endpoint (Groq,
// OpenRouter, vLLM) and rotates API keys from a credential pool on
// rate-limit, auth or server errors.
package openaicompat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/infrastructure/credentials"
	"github.com/muffakir/legal-assistant/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// RotationWait is the pause between attempts with different keys.
	RotationWait time.Duration
}

type Completer struct {
	client      openai.Client
	model       string
	temperature float64
	retrier     *resilience.RotatingRetrier
}

func New(cfg Config, pool *credentials.Pool) (*Completer, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "new openai completer", errors.New("credential pool is empty"))
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new openai completer", errors.New("model is required"))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Completer{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		retrier:     resilience.NewRotatingRetrier(pool, cfg.RotationWait),
	}, nil
}

// Complete sends the prompt as a single user message.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", domain.WrapError(domain.ErrInvalidRequest, "openai chat", errors.New("empty prompt"))
	}
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
	}

	text, err := resilience.RetryWithRotation(ctx, c.retrier, "openai chat", func(ctx context.Context, key string) (string, error) {
		resp, err := c.client.Chat.Completions.New(ctx, params, option.WithAPIKey(key))
		if err != nil {
			if shouldRotate(err) {
				return "", domain.WrapError(domain.ErrTemporary, "openai chat", err)
			}
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("openai chat: response has no choices")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrCompletionService) {
			return "", err
		}
		return "", domain.WrapError(domain.ErrCompletionService, "openai chat", err)
	}
	return text, nil
}

// shouldRotate reports whether another key might succeed where this one failed.
func shouldRotate(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
			return true
		}
		return resilience.ClassifyHTTPStatus(apiErr.StatusCode).Retryable
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
