package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jherleth/salvo-ai/model"
)

type stubAdapter struct{}

func (stubAdapter) SendTurn(context.Context, []model.Message, []model.ToolDefinition, model.Config) (model.AdapterTurnResult, error) {
	return model.AdapterTurnResult{}, nil
}

func TestRegistry_LookupUnregistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", func() (Adapter, error) { return stubAdapter{}, nil })

	a, err := r.Build("stub")
	require.NoError(t, err)
	assert.IsType(t, stubAdapter{}, a)
}

func TestRegistry_BuildPropagatesFactoryError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register("broken", func() (Adapter, error) { return nil, boom })

	_, err := r.Build("broken")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(err, boom))
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register("name", func() (Adapter, error) { return stubAdapter{}, nil })
	r.Register("name", func() (Adapter, error) { return nil, errors.New("replaced") })

	_, err := r.Build("name")
	require.Error(t, err)
}
