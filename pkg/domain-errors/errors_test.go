package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("direct error", func(t *testing.T) {
		err := New(CodeNotFound, "application not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("wrapped by fmt", func(t *testing.T) {
		err := fmt.Errorf("load: %w", New(CodeConflict, "version changed"))
		assert.True(t, HasCode(err, CodeConflict))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to save application")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to save application")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWithMessages(t *testing.T) {
	err := WithMessages(CodeInvalidRequest, []string{"name is missing", "age is missing"})

	de, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "name is missing", de.Message)
	assert.Len(t, de.Messages, 2)
}
