// Package errors provides the structured error type shared by the indexer,
// the CLI and the protocol adapters.
//
// Codes follow ERR_XXX_DESCRIPTION:
//   - 1XX: configuration
//   - 2XX: filesystem and snapshot storage
//   - 3XX: embedding providers and other remote calls
//   - 4XX: caller input and engine state
//   - 5XX: internal
package errors

// Category groups codes by the hundreds digit.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity tells callers whether an error ends the current operation.
type Severity string

const (
	// SeverityFatal aborts the operation that produced it.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the call but leaves the engine usable.
	SeverityError Severity = "ERROR"
	// SeverityWarning is recovered locally; the run continues degraded.
	SeverityWarning Severity = "WARNING"
)

const (
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	ErrCodeScanFailed    = "ERR_201_SCAN_FAILED"
	ErrCodeRootNotFound  = "ERR_202_ROOT_NOT_FOUND"
	ErrCodeFileTooLarge  = "ERR_204_FILE_TOO_LARGE"
	ErrCodeCacheCorrupt  = "ERR_205_CACHE_CORRUPT"
	ErrCodeStoreOpen     = "ERR_206_STORE_OPEN"
	ErrCodePersistFailed = "ERR_207_PERSIST_FAILED"

	ErrCodeProviderTimeout     = "ERR_301_PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"

	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery    = "ERR_403_INVALID_QUERY"
	ErrCodeIndexInProgress = "ERR_409_INDEX_IN_PROGRESS"

	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeWatchFailed     = "ERR_503_WATCH_FAILED"
)

func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreOpen, ErrCodeRootNotFound:
		return SeverityFatal
	case ErrCodeScanFailed, ErrCodeCacheCorrupt, ErrCodeEmbeddingFailed, ErrCodeFileTooLarge:
		return SeverityWarning
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode lists codes a caller can simply try again.
// A failed persist leaves the previous snapshot live, so retrying index is safe.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderTimeout, ErrCodeProviderUnavailable,
		ErrCodePersistFailed, ErrCodeIndexInProgress:
		return true
	default:
		return false
	}
}
