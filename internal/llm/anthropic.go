package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicModel     = "claude-3-5-haiku-latest"
	anthropicMaxTokens = 2048
)

type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient disables the SDK's own retries; RetryingOracle owns
// the retry policy.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) *AnthropicClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
	}
}

func (c *AnthropicClient) Invoke(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(anthropicModel),
		MaxTokens: anthropicMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode != http.StatusTooManyRequests && apiErr.StatusCode < 500 {
			return "", err
		}
		return "", transportError("anthropic", err)
	}

	var textParts []string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			textParts = append(textParts, block.Text)
		}
	}
	if len(textParts) == 0 {
		return "", malformed("anthropic", "returned no content")
	}
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		return "", malformed("anthropic", "output truncated at token limit")
	}

	return strings.TrimSpace(strings.Join(textParts, "")), nil
}
