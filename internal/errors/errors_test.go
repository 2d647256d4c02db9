package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmanError_Unwrap_PreservesCause(t *testing.T) {
	// Given: a low-level error
	cause := errors.New("disk I/O error")

	// When: wrapping it as a persist failure
	err := PersistError(cause)

	// Then: the cause is reachable through the chain
	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestAmanError_Error_Format(t *testing.T) {
	tests := []struct {
		name     string
		err      *AmanError
		expected string
	}{
		{
			name:     "no cause",
			err:      New(ErrCodeConfigInvalid, "limit must be positive", nil),
			expected: "[ERR_102_CONFIG_INVALID] limit must be positive",
		},
		{
			name:     "wrapped cause is not repeated",
			err:      Wrap(ErrCodeInternal, errors.New("boom")),
			expected: "[ERR_501_INTERNAL] boom",
		},
		{
			name:     "distinct cause is appended",
			err:      ScanError("a.txt", errors.New("permission denied")),
			expected: "[ERR_201_SCAN_FAILED] cannot read a.txt: permission denied",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAmanError_Is_MatchesSentinelByCode(t *testing.T) {
	// Given: a busy error wrapped by fmt.Errorf
	err := fmt.Errorf("index: %w", New(ErrCodeIndexInProgress, "run 42 active", nil))

	// Then: it matches the sentinel but not an unrelated one
	assert.ErrorIs(t, err, ErrIndexInProgress)
	assert.NotErrorIs(t, err, ErrCacheCorrupt)
}

func TestNew_DerivesClassification(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeScanFailed, CategoryIO, SeverityWarning, false},
		{ErrCodeStoreOpen, CategoryIO, SeverityFatal, false},
		{ErrCodePersistFailed, CategoryIO, SeverityWarning, true},
		{ErrCodeProviderTimeout, CategoryNetwork, SeverityWarning, true},
		{ErrCodeIndexInProgress, CategoryValidation, SeverityWarning, true},
		{ErrCodeEmbeddingFailed, CategoryInternal, SeverityWarning, false},
		{"bogus", CategoryInternal, SeverityError, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHelpers_LookThroughWrapping(t *testing.T) {
	// Given: an AmanError buried under fmt wrapping
	err := fmt.Errorf("outer: %w", New(ErrCodeStoreOpen, "open failed", nil))

	// Then: helpers still see it
	assert.Equal(t, ErrCodeStoreOpen, GetCode(err))
	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))

	// And: plain errors have no code
	assert.Empty(t, GetCode(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestWithDetail_And_Suggestion(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad", nil).
		WithDetail("field", "limit").
		WithSuggestion("use a positive number")

	assert.Equal(t, "limit", err.Details["field"])
	assert.Equal(t, "use a positive number", err.Suggestion)
}
