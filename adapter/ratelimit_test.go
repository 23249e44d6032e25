package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jherleth/salvo-ai/model"
)

type countingAdapter struct{ calls int }

func (c *countingAdapter) SendTurn(context.Context, []model.Message, []model.ToolDefinition, model.Config) (model.AdapterTurnResult, error) {
	c.calls++
	return model.AdapterTurnResult{}, nil
}

func TestRateLimited_DelegatesWhenAdmitted(t *testing.T) {
	inner := &countingAdapter{}
	rl := NewRateLimited(inner, 1000, 10)

	_, err := rl.SendTurn(context.Background(), nil, nil, model.Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRateLimited_RespectsContextCancellation(t *testing.T) {
	inner := &countingAdapter{}
	// A single-token bucket exhausted by the first call forces the second
	// to wait; a 5ms context deadline makes Wait return an error rather
	// than delegating.
	rl := NewRateLimited(inner, 0.001, 1)

	_, err := rl.SendTurn(context.Background(), nil, nil, model.Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = rl.SendTurn(ctx, nil, nil, model.Config{})
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
