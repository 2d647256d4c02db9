package errors

import (
	stderrors "errors"
	"fmt"
)

// AmanError carries a stable code plus enough context for logs and for
// the hint shown to a CLI user.
type AmanError struct {
	Code       string
	Message    string
	Category   Category
	Severity   Severity
	Details    map[string]string
	Cause      error
	Retryable  bool
	Suggestion string
}

func (e *AmanError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AmanError) Unwrap() error {
	return e.Cause
}

// Is matches another AmanError by code, so sentinel values such as
// ErrIndexInProgress work with errors.Is.
func (e *AmanError) Is(target error) bool {
	t, ok := target.(*AmanError)
	return ok && e.Code == t.Code
}

// WithDetail attaches a key/value pair and returns e.
func (e *AmanError) WithDetail(key, value string) *AmanError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the user-facing hint and returns e.
func (e *AmanError) WithSuggestion(s string) *AmanError {
	e.Suggestion = s
	return e
}

// New builds an AmanError; category, severity and retryability come from the code.
func New(code, message string, cause error) *AmanError {
	return &AmanError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap returns nil for a nil err.
func Wrap(code string, err error) *AmanError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is checks. Only the code is compared.
var (
	ErrIndexInProgress = New(ErrCodeIndexInProgress, "an index run is already in progress", nil)
	ErrCacheCorrupt    = New(ErrCodeCacheCorrupt, "index cache is corrupt", nil)
	ErrPersistFailed   = New(ErrCodePersistFailed, "failed to persist index snapshot", nil)
)

func ScanError(path string, cause error) *AmanError {
	return New(ErrCodeScanFailed, "cannot read "+path, cause).WithDetail("path", path)
}

func CacheCorruptError(cause error) *AmanError {
	return New(ErrCodeCacheCorrupt, "index cache is corrupt", cause).
		WithSuggestion("the cache will be rebuilt; run 'amanidx cache clear' if this repeats")
}

func PersistError(cause error) *AmanError {
	return New(ErrCodePersistFailed, "failed to persist index snapshot", cause).
		WithSuggestion("the previous index is still served; retry 'amanidx index'")
}

func EmbeddingError(cause error) *AmanError {
	return New(ErrCodeEmbeddingFailed, "embedding provider failed", cause)
}

func ConfigError(message string, cause error) *AmanError {
	return New(ErrCodeConfigInvalid, message, cause)
}

func ValidationError(message string, cause error) *AmanError {
	return New(ErrCodeInvalidInput, message, cause)
}

func InternalError(message string, cause error) *AmanError {
	return New(ErrCodeInternal, message, cause)
}

func asAman(err error) (*AmanError, bool) {
	var ae *AmanError
	if err == nil || !stderrors.As(err, &ae) {
		return nil, false
	}
	return ae, true
}

// IsRetryable reports whether any AmanError in err's chain is retryable.
func IsRetryable(err error) bool {
	ae, ok := asAman(err)
	return ok && ae.Retryable
}

func IsFatal(err error) bool {
	ae, ok := asAman(err)
	return ok && ae.Severity == SeverityFatal
}

// GetCode returns "" when err carries no AmanError.
func GetCode(err error) string {
	if ae, ok := asAman(err); ok {
		return ae.Code
	}
	return ""
}
