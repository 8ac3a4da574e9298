package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeStorageUnavailable, "persist session", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped error to unwrap to its cause")
	}
	if !IsCode(err, CodeStorageUnavailable) {
		t.Fatal("expected storage_unavailable code")
	}
	if !IsInternalCode(err) {
		t.Fatal("expected storage_unavailable to be an internal code")
	}
	if got, want := err.Error(), "persist session: connection refused"; got != want {
		t.Fatalf("unexpected message: got %q want %q", got, want)
	}
}

func TestIsCodeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("authenticate: %w", ErrOperationInProgress)

	if !IsCode(err, CodeOperationInProgress) {
		t.Fatal("expected operation_in_progress code through fmt wrapping")
	}
	if IsInternalCode(err) {
		t.Fatal("operation_in_progress must not be internal")
	}
	if !errors.Is(err, ErrOperationInProgress) {
		t.Fatal("expected sentinel identity through fmt wrapping")
	}
}

func TestErrorStringFallbacks(t *testing.T) {
	var nilErr *Error
	if nilErr.Error() != "" {
		t.Fatal("expected empty string for nil error")
	}
	if nilErr.Unwrap() != nil {
		t.Fatal("expected nil unwrap for nil error")
	}

	if got := (&Error{Code: CodeUnknown}).Error(); got != "unknown" {
		t.Fatalf("expected code fallback, got %q", got)
	}
	if got := (&Error{Err: errors.New("boom")}).Error(); got != "boom" {
		t.Fatalf("expected cause fallback, got %q", got)
	}
}
