package adapter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTransient_WrapsAndUnwraps(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := NewTransient(base)
	assert.True(t, errors.Is(wrapped, ErrTransient))
	assert.True(t, errors.Is(wrapped, base))
	assert.True(t, IsTransient(wrapped))
}

func TestNewUnavailable_WrapsAndUnwraps(t *testing.T) {
	base := errors.New("unknown adapter")
	wrapped := NewUnavailable(base)
	assert.True(t, errors.Is(wrapped, ErrUnavailable))
	assert.True(t, errors.Is(wrapped, base))
}

func TestIsTransient_FalseForUnrelatedError(t *testing.T) {
	assert.False(t, IsTransient(errors.New("some other failure")))
	assert.False(t, IsTransient(NewUnavailable(errors.New("x"))))
}

func TestNewTransient_NilPassesThrough(t *testing.T) {
	assert.Nil(t, NewTransient(nil))
	assert.Nil(t, NewUnavailable(nil))
}
