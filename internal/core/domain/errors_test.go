package domain

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
)

var allErrors = []*DomainError{
	ErrStorageUnavailable,
	ErrCorruptRead,
	ErrRenameFailed,
	ErrVersionReadFailure,
	ErrKeyMismatch,
	ErrBucketNotFound,
	ErrDecodeFailure,
	ErrEncodeFailure,
	ErrUnsupportedBackupVersion,
	ErrInvalidArgument,
	ErrNilSnapshot,
	ErrInvalidInterval,
}

func TestErrors_CodesUniqueAndWellFormed(t *testing.T) {
	seen := make(map[string]bool)
	for _, e := range allErrors {
		if seen[e.Code] {
			t.Errorf("duplicate code %s", e.Code)
		}
		seen[e.Code] = true
		if parts := strings.Split(e.Code, "-"); len(parts) != 3 || parts[0] != "US" || len(parts[2]) != 4 {
			t.Errorf("code %q is not of the form US-<AREA>-<NNNN>", e.Code)
		}
		if e.Message == "" {
			t.Errorf("%s has no message", e.Code)
		}
	}
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"bare", ErrBucketNotFound, "[US-STOR-4040] bucket not found"},
		{"details", ErrBucketNotFound.WithDetails("%s/%d", "daily", 1000), "[US-STOR-4040] bucket not found: daily/1000"},
		{"cause", ErrCorruptRead.WithCause(io.ErrUnexpectedEOF), "[US-STOR-5001] corrupt bucket file: unexpected EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDomainError_CopiesDoNotMutateSentinel(t *testing.T) {
	_ = ErrRenameFailed.WithDetails("daily/1 already exists").WithCause(os.ErrExist)
	if ErrRenameFailed.Details != "" || ErrRenameFailed.Cause != nil {
		t.Fatalf("sentinel mutated: %+v", ErrRenameFailed)
	}
}

func TestDomainError_ErrorsIs(t *testing.T) {
	err := fmt.Errorf("read daily/1000: %w",
		ErrBucketNotFound.WithDetails("daily/1000").WithCause(os.ErrNotExist))

	if !errors.Is(err, ErrBucketNotFound) {
		t.Fatal("errors.Is(err, ErrBucketNotFound) = false, want true")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatal("errors.Is(err, os.ErrNotExist) = false, want true")
	}
	if errors.Is(err, ErrCorruptRead) {
		t.Fatal("errors.Is(err, ErrCorruptRead) = true, want false")
	}
}

func TestGetErrorCodeAndIsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("init: %w", ErrStorageUnavailable.WithCause(os.ErrPermission))
	tests := []struct {
		name     string
		err      error
		code     string
		isDomain bool
		isCode   bool
	}{
		{"nil", nil, "", false, false},
		{"plain", io.EOF, "", false, false},
		{"direct", ErrInvalidInterval, "US-ARG-4002", true, true},
		{"wrapped", wrapped, "US-STOR-5030", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.code {
				t.Errorf("GetErrorCode = %q, want %q", got, tt.code)
			}
			if got := IsDomainError(tt.err, ""); got != tt.isDomain {
				t.Errorf("IsDomainError(err, \"\") = %v, want %v", got, tt.isDomain)
			}
			if got := IsDomainError(tt.err, tt.code); tt.code != "" && got != tt.isCode {
				t.Errorf("IsDomainError(err, %q) = %v, want %v", tt.code, got, tt.isCode)
			}
			if IsDomainError(tt.err, "US-NONE-0000") {
				t.Error("IsDomainError matched an unknown code")
			}
		})
	}
}
