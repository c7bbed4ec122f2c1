package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	// Given: errors created from codes in each range
	cfgErr := New(ErrCodeInvalidConfig, "bad overlap", nil)
	ioErr := New(ErrCodeIndexCorrupt, "stamp mismatch", nil)
	netErr := New(ErrCodeStoreUnavailable, "dense store down", nil)
	intErr := New(ErrCodeInternal, "boom", nil)

	// Then: categories follow the code ranges
	assert.Equal(t, CategoryConfig, cfgErr.Category)
	assert.Equal(t, CategoryIO, ioErr.Category)
	assert.Equal(t, CategoryNetwork, netErr.Category)
	assert.Equal(t, CategoryInternal, intErr.Category)

	// And: store unavailability is fatal, extraction is not
	assert.True(t, IsFatal(netErr))
	assert.False(t, IsFatal(ExtractionError("/tmp/a.txt", errors.New("no reader"))))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("underlying failure")
	err := Wrap(ErrCodeEmbedding, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, &KnowError{Code: ErrCodeEmbedding})
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, IsRetryable(err))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail_Chains(t *testing.T) {
	err := ExtractionError("notes/a.pdf", errors.New("binary format")).
		WithDetail("extension", ".pdf").
		WithSuggestion("convert to text first")

	assert.Equal(t, "notes/a.pdf", err.Details["path"])
	assert.Equal(t, ".pdf", err.Details["extension"])
	assert.Equal(t, "convert to text first", err.Suggestion)
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidConfig, GetCode(InvalidConfig("bad")))
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.Equal(t, "", GetCode(nil))
}
