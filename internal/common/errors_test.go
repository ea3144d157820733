package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionConflictError_MatchesSentinel(t *testing.T) {
	err := NewVersionConflict(7)
	require.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, int64(7), err.CurrentVersion)
}

func TestVersionConflictError_UnwrapsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("save failed: %w", NewVersionConflict(3))
	require.ErrorIs(t, wrapped, ErrVersionConflict)

	var vc *VersionConflictError
	require.True(t, errors.As(wrapped, &vc))
	assert.Equal(t, int64(3), vc.CurrentVersion)
}
