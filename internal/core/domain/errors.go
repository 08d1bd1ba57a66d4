// Package domain defines the bucket snapshot model and the errors shared by
// the storage engine and its callers.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError is an error carrying a stable code of the form
// US-<AREA>-<NNNN>. Two DomainErrors match under errors.Is when their codes
// are equal, so callers compare against the package-level values below.
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Code)
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DomainError) Unwrap() error { return e.Cause }

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WithDetails returns a copy of the error with details attached.
func (e *DomainError) WithDetails(format string, args ...any) *DomainError {
	cp := *e
	cp.Details = fmt.Sprintf(format, args...)
	return &cp
}

// WithCause returns a copy of the error wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// IsDomainError reports whether err wraps a DomainError. A non-empty code
// additionally requires that code.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return code == "" || de.Code == code
}

// GetErrorCode returns the code of the first DomainError in err's chain, or
// "" when there is none.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Storage errors.

var (
	// ErrStorageUnavailable indicates a storage directory cannot be created.
	// It is fatal for Database initialization.
	ErrStorageUnavailable = NewDomainError("US-STOR-5030", "storage unavailable")

	// ErrCorruptRead indicates a bucket file is truncated or was caught mid-write.
	ErrCorruptRead = NewDomainError("US-STOR-5001", "corrupt bucket file")

	// ErrRenameFailed indicates a bucket file could not be renamed.
	ErrRenameFailed = NewDomainError("US-STOR-5002", "bucket rename failed")

	// ErrVersionReadFailure indicates the version file could not be read.
	// Callers treat it as a first run at schema version 0.
	ErrVersionReadFailure = NewDomainError("US-STOR-5003", "version file unreadable")

	// ErrKeyMismatch indicates a bucket whose encryption does not match the
	// configured key: sealed without a key configured, plain with one, or
	// failing to decrypt.
	ErrKeyMismatch = NewDomainError("US-STOR-4010", "bucket key mismatch")

	// ErrBucketNotFound indicates no bucket exists for the requested begin time.
	ErrBucketNotFound = NewDomainError("US-STOR-4040", "bucket not found")
)

// Data errors.

var (
	// ErrDecodeFailure indicates snapshot bytes could not be decoded.
	ErrDecodeFailure = NewDomainError("US-DATA-4220", "snapshot decode failed")

	// ErrEncodeFailure indicates a snapshot could not be encoded.
	ErrEncodeFailure = NewDomainError("US-DATA-5000", "snapshot encode failed")

	// ErrUnsupportedBackupVersion indicates a backup payload of an unknown version.
	ErrUnsupportedBackupVersion = NewDomainError("US-DATA-4150", "unsupported backup version")
)

// Argument errors.

var (
	// ErrInvalidArgument indicates a programmer error such as a bad granularity.
	ErrInvalidArgument = NewDomainError("US-ARG-4000", "invalid argument")

	// ErrNilSnapshot indicates a nil snapshot was passed to a write path.
	ErrNilSnapshot = NewDomainError("US-ARG-4001", "snapshot is nil")

	// ErrInvalidInterval indicates a snapshot whose end time is not after its begin time.
	ErrInvalidInterval = NewDomainError("US-ARG-4002", "snapshot end time must be after begin time")
)
