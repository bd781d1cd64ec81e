package llm

import (
	"context"
	"strings"
	"sync"
)

// MockRule answers prompts that contain Match.
type MockRule struct {
	Match    string
	Response string
	Err      error
}

// MockClient is a scripted oracle for tests and offline runs. Queued
// responses are consumed first, then the first matching rule, then
// DefaultResponse.
type MockClient struct {
	mu sync.Mutex

	DefaultResponse string
	DefaultError    error
	Rules           []MockRule

	queue []MockRule

	// Call tracking for assertions
	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		DefaultResponse: "No further comment.",
	}
}

// Respond adds a rule answering every prompt that contains match.
func (c *MockClient) Respond(match, response string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rules = append(c.Rules, MockRule{Match: match, Response: response})
	return c
}

// Fail adds a rule failing every prompt that contains match.
func (c *MockClient) Fail(match string, err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rules = append(c.Rules, MockRule{Match: match, Err: err})
	return c
}

// Queue appends one-shot results answered in order regardless of prompt.
func (c *MockClient) Queue(results ...MockRule) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, results...)
	return c
}

func (c *MockClient) Invoke(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, prompt)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		return next.Response, next.Err
	}
	for _, r := range c.Rules {
		if strings.Contains(prompt, r.Match) {
			return r.Response, r.Err
		}
	}
	return c.DefaultResponse, c.DefaultError
}

// CallCount returns how many prompts contained match.
func (c *MockClient) CallCount(match string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.Calls {
		if strings.Contains(p, match) {
			n++
		}
	}
	return n
}

// Reset clears recorded calls, rules and queued results.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = nil
	c.Rules = nil
	c.queue = nil
	c.DefaultResponse = "No further comment."
	c.DefaultError = nil
}
