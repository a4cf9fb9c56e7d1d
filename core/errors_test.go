package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient_Default(t *testing.T) {
	assert.True(t, IsTransient(errors.New("connection reset")),
		"unclassified errors default to retryable")
}

func TestIsTransient_Fatal(t *testing.T) {
	err := MarkFatal(errors.New("unsupported format"))
	assert.False(t, IsTransient(err))

	// Fatal survives wrapping.
	wrapped := fmt.Errorf("extract stage: %w", err)
	assert.False(t, IsTransient(wrapped))
}

func TestIsTransient_Explicit(t *testing.T) {
	err := MarkTransient(errors.New("rate limited"))
	assert.True(t, IsTransient(err))
}

func TestIsTransient_Context(t *testing.T) {
	assert.False(t, IsTransient(context.Canceled), "cancellation is not retried")
	assert.True(t, IsTransient(context.DeadlineExceeded), "per-call timeout is retried")
}

func TestIsTransient_Nil(t *testing.T) {
	assert.False(t, IsTransient(nil))
}

func TestMark_Nil(t *testing.T) {
	assert.NoError(t, MarkTransient(nil))
	assert.NoError(t, MarkFatal(nil))
}

func TestMark_Unwrap(t *testing.T) {
	base := errors.New("boom")
	assert.ErrorIs(t, MarkTransient(base), base)
	assert.ErrorIs(t, MarkFatal(base), base)
}
