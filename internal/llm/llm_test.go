package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestRetrying(next domain.Oracle) (*RetryingOracle, *[]string) {
	r := NewRetryingOracle(next, zap.NewNop())
	r.sleep = noSleep
	var outcomes []string
	r.OnAttempt = func(o string) { outcomes = append(outcomes, o) }
	return r, &outcomes
}

func TestRetryingOracle_RetriesUnavailable(t *testing.T) {
	mock := NewMockClient().Queue(
		MockRule{Err: domain.ErrOracleUnavailable},
		MockRule{Err: domain.ErrOracleUnavailable},
		MockRule{Response: "answer"},
	)
	r, outcomes := newTestRetrying(mock)

	out, err := r.Invoke(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Len(t, mock.Calls, 3)
	assert.Equal(t, []string{"unavailable", "unavailable", "ok"}, *outcomes)
}

func TestRetryingOracle_GivesUpAfterMaxAttempts(t *testing.T) {
	mock := NewMockClient()
	mock.DefaultError = domain.ErrOracleUnavailable
	r, _ := newTestRetrying(mock)
	r.MaxAttempts = 4

	_, err := r.Invoke(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.Len(t, mock.Calls, 4)
}

func TestRetryingOracle_NeverRetriesMalformed(t *testing.T) {
	mock := NewMockClient()
	mock.DefaultError = malformed("mock", "garbage")
	r, outcomes := newTestRetrying(mock)

	_, err := r.Invoke(context.Background(), "prompt")
	assert.ErrorIs(t, err, domain.ErrMalformedOutput)
	assert.Len(t, mock.Calls, 1)
	assert.Equal(t, []string{"malformed"}, *outcomes)
}

func TestRetryingOracle_DoesNotRetryPlainErrors(t *testing.T) {
	mock := NewMockClient()
	mock.DefaultError = errors.New("bad request")
	r, _ := newTestRetrying(mock)

	_, err := r.Invoke(context.Background(), "prompt")
	assert.Error(t, err)
	assert.Len(t, mock.Calls, 1)
}

type slowOracle struct{}

func (slowOracle) Invoke(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRetryingOracle_TimeoutIsRetryable(t *testing.T) {
	r, outcomes := newTestRetrying(slowOracle{})
	r.Timeout = 5 * time.Millisecond
	r.MaxAttempts = 2

	_, err := r.Invoke(context.Background(), "prompt")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.Equal(t, []string{"unavailable", "unavailable"}, *outcomes)
}

func TestRetryingOracle_StopsOnCancelledContext(t *testing.T) {
	mock := NewMockClient()
	r, _ := newTestRetrying(mock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Invoke(ctx, "prompt")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, mock.Calls, 1)
}

func TestMockClient_RulesAndQueue(t *testing.T) {
	mock := NewMockClient().
		Respond("hypothesis", "Pneumonia: 40%").
		Fail("broken", domain.ErrOracleUnavailable)

	out, err := mock.Invoke(context.Background(), "you are the hypothesis role")
	require.NoError(t, err)
	assert.Equal(t, "Pneumonia: 40%", out)

	_, err = mock.Invoke(context.Background(), "broken prompt")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)

	out, _ = mock.Invoke(context.Background(), "anything else")
	assert.Equal(t, "No further comment.", out)

	mock.Queue(MockRule{Response: "queued"})
	out, _ = mock.Invoke(context.Background(), "hypothesis")
	assert.Equal(t, "queued", out)

	assert.Equal(t, 2, mock.CallCount("hypothesis"))

	mock.Reset()
	assert.Empty(t, mock.Calls)
}

func TestOffline(t *testing.T) {
	_, err := Offline().Invoke(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.True(t, Retryable(err))
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(ProviderOpenAI, "")
	assert.Error(t, err)

	_, err = NewClient("nope", "key")
	assert.Error(t, err)

	for _, p := range []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderCerebras, ProviderMock} {
		c, err := NewClient(p, "key")
		require.NoError(t, err, p)
		assert.NotNil(t, c)
	}
}

func TestOpenAIClient_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, chatModel, req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "hi", req.Messages[1].Content)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key")
	c.url = srv.URL

	out, err := c.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOpenAIClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{"server error", http.StatusBadGateway, "oops", domain.ErrOracleUnavailable},
		{"throttled", http.StatusTooManyRequests, "slow down", domain.ErrOracleUnavailable},
		{"garbage body", http.StatusOK, "<html>", domain.ErrMalformedOutput},
		{"no choices", http.StatusOK, `{"choices":[]}`, domain.ErrMalformedOutput},
		{"truncated", http.StatusOK, `{"choices":[{"message":{"content":"Pneu"},"finish_reason":"length"}]}`, domain.ErrMalformedOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewCerebrasClient("key")
			c.url = srv.URL
			_, err := c.Invoke(context.Background(), "hi")
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestOpenAIClient_ClientErrorNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewOpenAIClient("key")
	c.url = srv.URL
	_, err := c.Invoke(context.Background(), "hi")
	require.Error(t, err)
	assert.False(t, Retryable(err))
}

func TestGeminiClient_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"gem"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("key")
	c.url = srv.URL
	out, err := c.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "gem", out)
}

func TestGeminiClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		target error
	}{
		{"in-body overload", `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, domain.ErrOracleUnavailable},
		{"safety block", `{"candidates":[{"content":{"parts":[{"text":""}]},"finishReason":"SAFETY"}]}`, domain.ErrMalformedOutput},
		{"no candidates", `{"candidates":[]}`, domain.ErrMalformedOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewGeminiClient("key")
			c.url = srv.URL
			_, err := c.Invoke(context.Background(), "hi")
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestAnthropicClient_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": " Influenza: 60% "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("key", option.WithBaseURL(srv.URL))
	out, err := c.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Influenza: 60%", out)
}
