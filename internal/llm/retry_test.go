package llm

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Invoke(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func TestRetryingOracle_BackoffDoubles(t *testing.T) {
	oracle := new(mockOracle)
	oracle.On("Invoke", mock.Anything, "prompt").Return("", domain.ErrOracleUnavailable).Times(3)
	oracle.On("Invoke", mock.Anything, "prompt").Return("done", nil).Once()

	r := NewRetryingOracle(oracle, zap.NewNop())
	r.MaxAttempts = 4
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	out, err := r.Invoke(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, slept)
	oracle.AssertNumberOfCalls(t, "Invoke", 4)
	oracle.AssertExpectations(t)
}

func TestRetryingOracle_BackoffCapped(t *testing.T) {
	oracle := new(mockOracle)
	oracle.On("Invoke", mock.Anything, mock.AnythingOfType("string")).Return("", domain.ErrOracleUnavailable)

	r := NewRetryingOracle(oracle, zap.NewNop())
	r.MaxAttempts = 6
	r.BaseBackoff = 4 * time.Second
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := r.Invoke(context.Background(), "prompt")
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second, 8 * time.Second, 8 * time.Second, 8 * time.Second}, slept)
	oracle.AssertNumberOfCalls(t, "Invoke", 6)
}

func TestRetryingOracle_PassesPromptThrough(t *testing.T) {
	oracle := new(mockOracle)
	oracle.On("Invoke", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "what next?").Return("ok", nil).Once()

	r := NewRetryingOracle(oracle, zap.NewNop())
	r.Timeout = time.Minute

	out, err := r.Invoke(context.Background(), "what next?")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	oracle.AssertExpectations(t)
}
