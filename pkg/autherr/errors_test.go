package autherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := Forbidden("access denied")
	assert.Equal(t, "forbidden: access denied", err.Error())

	wrapped := Wrap(KindConfiguration, "tenant binding failed", errors.New("connection refused"))
	assert.Equal(t, "configuration: tenant binding failed: connection refused", wrapped.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnauthenticated, KindOf(Unauthenticated("no credential")))
	assert.Equal(t, KindValidation, KindOf(Validation("store id is required")))
	assert.Equal(t, KindForbidden, KindOf(Forbidden("nope")))
	assert.Equal(t, KindNotFound, KindOf(NotFound("store not found")))
	assert.Equal(t, KindConfiguration, KindOf(Configuration("orphaned key")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain error")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	// Kinds must propagate unmodified through fmt.Errorf chains so the
	// transport boundary still maps them to the right status.
	err := fmt.Errorf("while resolving context: %w", NotFound("store not found"))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsForbidden(err))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("db down")
	err := Wrap(KindConfiguration, "lookup failed", cause)
	require.ErrorIs(t, err, cause)
}

func TestErrorsIsMatchesOnKind(t *testing.T) {
	err := NotFound("store not found")
	assert.True(t, errors.Is(err, New(KindNotFound, "")))
	assert.False(t, errors.Is(err, New(KindForbidden, "")))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		err  error
		pred func(error) bool
	}{
		{Unauthenticated("x"), IsUnauthenticated},
		{Validation("x"), IsValidation},
		{Forbidden("x"), IsForbidden},
		{NotFound("x"), IsNotFound},
		{Configuration("x"), IsConfiguration},
	}
	for _, tt := range tests {
		assert.True(t, tt.pred(tt.err), "predicate should match %v", tt.err)
	}
	assert.False(t, IsForbidden(NotFound("x")), "kinds must not cross-match")
}
