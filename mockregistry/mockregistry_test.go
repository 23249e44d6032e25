package mockregistry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_Found(t *testing.T) {
	r := New(map[string]any{"get_weather": `{"temp":72}`})
	payload, err := r.Lookup("get_weather")
	require.NoError(t, err)
	assert.Equal(t, `{"temp":72}`, payload)
}

func TestLookup_MissingReturnsTypedError(t *testing.T) {
	r := New(map[string]any{"get_weather": "x"})
	_, err := r.Lookup("search_web")

	var missing *ErrToolMockMissing
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "search_web", missing.Tool)
	assert.Equal(t, []string{"get_weather"}, missing.Defined)
}

func TestNew_CopiesInputMap(t *testing.T) {
	src := map[string]any{"a": 1}
	r := New(src)
	src["b"] = 2
	_, err := r.Lookup("b")
	assert.Error(t, err, "mutating the caller's map after New must not affect the registry")
}
