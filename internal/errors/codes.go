// Package errors provides structured error handling for know.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: configuration and validation errors
//   - 2XX: IO and index errors (file, disk, cache)
//   - 3XX: network and backend errors
//   - 5XX: internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration or input validation errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and index I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network and external backend errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the run can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config and validation errors (100-199)
	ErrCodeInvalidConfig = "ERR_101_INVALID_CONFIG"
	ErrCodeInvalidChunk  = "ERR_102_INVALID_CHUNK_CONFIG"
	ErrCodeInvalidFilter = "ERR_103_INVALID_FILTER"
	ErrCodeInvalidQuery  = "ERR_104_INVALID_QUERY"

	// IO and index errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeExtraction   = "ERR_202_EXTRACTION_FAILED"
	ErrCodeIndexCorrupt = "ERR_203_INDEX_CORRUPT"
	ErrCodeIndexLocked  = "ERR_204_INDEX_LOCKED"
	ErrCodeDiskFull     = "ERR_205_DISK_FULL"

	// Network and backend errors (300-399)
	ErrCodeStoreUnavailable = "ERR_301_STORE_UNAVAILABLE"
	ErrCodeEmbedding        = "ERR_302_EMBEDDING_FAILED"
	ErrCodeBackendTimeout   = "ERR_303_BACKEND_TIMEOUT"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
	ErrCodeChunking = "ERR_502_CHUNKING_FAILED"
	ErrCodeSearch   = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
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
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDiskFull, ErrCodeStoreUnavailable, ErrCodeIndexLocked:
		return SeverityFatal
	case ErrCodeExtraction, ErrCodeEmbedding, ErrCodeChunking:
		// Per-document failures are recorded and skipped, not fatal.
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendTimeout, ErrCodeEmbedding:
		return true
	default:
		return false
	}
}
