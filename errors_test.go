package fanout

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	assert.Equal(t, "NO_DATA: no data found", ErrNoData.Error())

	wrapped := NewErrorWithCause(ErrCodeDatabase, "failed to load", errors.New("timeout"))
	assert.Equal(t, "DATABASE_ERROR: failed to load: timeout", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "timeout")
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("publish: %w", NewErrorWithCause(ErrCodeTransportUnavailable, "dispatcher closed", nil))

	assert.ErrorIs(t, err, ErrTransportUnavailable)
	assert.True(t, IsTransportUnavailable(err))
	assert.False(t, IsConnectionClosed(err))
	assert.False(t, IsNoData(err))
}

func TestError_PredicatesWalkTheChain(t *testing.T) {
	inner := NewErrorWithCause(ErrCodeNoData, "missing", nil)
	outer := NewErrorWithCause(ErrCodeDatabase, "query failed", inner)

	assert.True(t, IsNoData(outer))
	assert.False(t, IsValidation(outer))
	assert.False(t, IsNoData(errors.New("plain")))
	assert.False(t, IsNoData(nil))
}
