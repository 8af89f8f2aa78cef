package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	base := Validation("INVALID_QUANTITY", "quantity must be positive")
	derived := base.WithMessage("split quantity %s exceeds %s", "5", "4")

	wrapped := fmt.Errorf("split: %w", derived)
	require.ErrorIs(t, wrapped, base)
	require.False(t, errors.Is(wrapped, NotFound("LP_NOT_FOUND", "")))

	coded, ok := AsError(wrapped)
	require.True(t, ok)
	require.Equal(t, KindValidation, coded.Kind)
	require.Equal(t, "INVALID_QUANTITY: split quantity 5 exceeds 4", coded.Error())
}

func TestWithDetailsDoesNotMutateSentinel(t *testing.T) {
	withDetails := ErrValidation.WithDetails(map[string]string{"quantity": "required"})
	require.Nil(t, ErrValidation.Details)
	require.Equal(t, "required", withDetails.Details["quantity"])
}
