package llm

import (
	"context"
	"net/http"
)

const (
	cerebrasAPIURL = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasModel  = "llama-3.3-70b"
)

// CerebrasClient speaks the OpenAI-compatible chat format.
type CerebrasClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewCerebrasClient(apiKey string) *CerebrasClient {
	return &CerebrasClient{
		apiKey:     apiKey,
		url:        cerebrasAPIURL,
		httpClient: &http.Client{},
	}
}

func (c *CerebrasClient) Invoke(ctx context.Context, prompt string) (string, error) {
	return completeChat(ctx, c.httpClient, "cerebras", c.url, c.apiKey, cerebrasModel, prompt)
}
