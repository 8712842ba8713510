// Package llm provides completion backends for report generation.
package llm

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/inspectforge/ddrgen/internal/ddr"
)

// AnthropicClient implements ddr.CompletionClient against the Messages API.
// Temperature is pinned to 0: report prose must be reproducible.
type AnthropicClient struct {
	messages AnthropicMessager
	model    anthropic.Model
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

func NewAnthropicClientFromEnv() (*AnthropicClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return &AnthropicClient{
		messages: newAnthropicClient(apiKey),
		model:    anthropic.ModelClaudeSonnet4_20250514,
	}, nil
}

// Complete sends one message and returns the concatenated text blocks.
// Transient transport failures (timeouts, rate limits, 5xx) are retried
// with a short backoff before giving up.
func (c *AnthropicClient) Complete(ctx context.Context, req ddr.CompletionRequest) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.messages.New(ctx, anthropic.MessageNewParams{
			Model:       c.model,
			MaxTokens:   maxTokens,
			System:      []anthropic.TextBlockParam{{Text: req.System}},
			Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
			Temperature: anthropic.Float(0),
		})
		if err != nil {
			lastErr = err
			if retriable(err) && attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(backoffDelay(attempt)):
				}
				continue
			}
			return "", err
		}
		var sb strings.Builder
		for _, b := range resp.Content {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String(), nil
	}
	return "", lastErr
}
