package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	chatModel     = "gpt-4o-mini"

	// Contributor turns are short; this caps runaway narratives.
	maxOutputTokens   = 1024
	oracleTemperature = 0.2
	systemInstruction = "You are one member of a diagnostic reasoning panel. Answer only in the format the request asks for."
)

type OpenAIClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		url:        openAIChatURL,
		httpClient: &http.Client{},
	}
}

// chat types shared by the OpenAI-compatible providers
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// completeChat posts one user message to an OpenAI-compatible endpoint.
func completeChat(ctx context.Context, client *http.Client, provider, url, apiKey, model, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: prompt},
		},
		Temperature: oracleTemperature,
		MaxTokens:   maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return "", transportError(provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(provider, resp.StatusCode, respBody)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", malformed(provider, "response is not JSON")
	}

	if result.Error != nil {
		return "", fmt.Errorf("%s API error: %s", provider, result.Error.Message)
	}

	if len(result.Choices) > 0 && result.Choices[0].FinishReason == "length" {
		return "", malformed(provider, "output truncated at token limit")
	}

	if len(result.Choices) == 0 {
		return "", malformed(provider, "returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Invoke(ctx context.Context, prompt string) (string, error) {
	return completeChat(ctx, c.httpClient, "openai", c.url, c.apiKey, chatModel, prompt)
}
