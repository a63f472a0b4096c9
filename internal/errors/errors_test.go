package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByCode(t *testing.T) {
	err := SessionNotFound(3)
	assert.True(t, stderrors.Is(err, ErrSessionNotFound))
	assert.False(t, stderrors.Is(err, ErrInvalidSlot))

	wrapped := fmt.Errorf("dispatch: %w", err)
	assert.True(t, stderrors.Is(wrapped, ErrSessionNotFound))
	assert.Equal(t, CodeSessionNotFound, CodeOf(wrapped))
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("boom")))
	assert.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("device busy")
	err := Engine("start", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "engine start failed: device busy", err.Error())
}

func TestWithMetadataDoesNotAlias(t *testing.T) {
	base := InvalidArgument("codec", "unknown codec %q", "wma")
	extended := base.WithMetadata("slot", "1")

	assert.Equal(t, "codec", base.Metadata["field"])
	_, ok := base.Metadata["slot"]
	assert.False(t, ok)
	assert.Equal(t, "1", extended.Metadata["slot"])
	assert.Equal(t, "codec: unknown codec \"wma\"", base.Error())
}
