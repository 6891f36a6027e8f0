package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesUnderlyingError(t *testing.T) {
	base := fmt.Errorf("connection reset")
	wrapped := Wrap(base, DatabaseError)

	if wrapped.Code != DatabaseError {
		t.Fatalf("code = %d, want %d", wrapped.Code, DatabaseError)
	}
	if !stderrors.Is(wrapped, base) {
		t.Fatal("wrapped error should match the underlying error")
	}
	if Wrap(nil, DatabaseError) != nil {
		t.Fatal("wrapping nil should return nil")
	}
}

func TestWrapUpdatesCodeOnExistingError(t *testing.T) {
	inner := New(CacheError)
	outer := Wrap(inner, ServiceUnavailable)

	if outer != inner {
		t.Fatal("wrapping a coded error should not allocate a new one")
	}
	if outer.Code != ServiceUnavailable {
		t.Fatalf("code = %d, want %d", outer.Code, ServiceUnavailable)
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil error", nil, Success},
		{"coded error", New(ProblemNotFound), ProblemNotFound},
		{"plain error", fmt.Errorf("boom"), InternalServerError},
		{"wrapped plain error", Wrap(fmt.Errorf("boom"), JudgeUnavailable), JudgeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Fatalf("GetCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(SubmitTooFrequently)
	if !Is(err, SubmitTooFrequently) {
		t.Fatal("Is should match the error's own code")
	}
	if Is(err, ProblemNotFound) {
		t.Fatal("Is should not match a different code")
	}
	if Is(fmt.Errorf("plain"), InternalServerError) {
		t.Fatal("Is should reject errors without a code")
	}
	if Is(nil, Success) {
		t.Fatal("Is should reject nil")
	}
}

func TestWithDetailAndMessage(t *testing.T) {
	err := New(ValidationFailed).
		WithMessage("difficulty out of range").
		WithDetail("field", "difficulty").
		WithDetail("max", 3)

	if err.Error() != "difficulty out of range" {
		t.Fatalf("message = %q", err.Error())
	}
	if err.Details["field"] != "difficulty" || err.Details["max"] != 3 {
		t.Fatalf("details = %v", err.Details)
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("title", "must not be empty")
	if err.Code != ValidationFailed {
		t.Fatalf("code = %d, want %d", err.Code, ValidationFailed)
	}
	if err.Details["field"] != "title" {
		t.Fatalf("details = %v", err.Details)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{Success, 200},
		{TokenExpired, 401},
		{InvalidCredentials, 401},
		{Forbidden, 403},
		{ProblemNotFound, 404},
		{SubmissionNotFound, 404},
		{UsernameAlreadyExists, 409},
		{SubmitTooFrequently, 429},
		{ValidationFailed, 400},
		{LanguageNotSupported, 400},
		{CodeTooLarge, 400},
		{TestCaseMissing, 400},
		{JudgeUnavailable, 503},
		{JudgeTimeout, 504},
		{DatabaseError, 500},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%d) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
