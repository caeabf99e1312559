package apperror

import (
	"errors"
	"io/fs"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("external tool", "/opt/app"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("code", "No code provided"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "System wraps ErrSystem",
			err:       System("writing artifact", fs.ErrPermission),
			target:    ErrSystem,
			wantMatch: true,
		},
		{
			name:      "System exposes its cause",
			err:       System("writing artifact", fs.ErrPermission),
			target:    fs.ErrPermission,
			wantMatch: true,
		},
		{
			name:      "Unavailable wraps ErrUnavailable",
			err:       Unavailable("busy"),
			target:    ErrUnavailable,
			wantMatch: true,
		},
		{
			name:      "MethodNotAllowed wraps ErrMethodNotAllowed",
			err:       MethodNotAllowed("GET", "/api/run"),
			target:    ErrMethodNotAllowed,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed does NOT match ErrSystem",
			err:       ValidationFailed("code", "No code provided"),
			target:    ErrSystem,
			wantMatch: false,
		},
		{
			name:      "System without cause does NOT match ErrValidation",
			err:       System("spawning", nil),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and location",
			err:         NotFound("external tool", "/opt/app"),
			wantMessage: "external tool not found at /opt/app",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("code", "No code provided"),
			wantMessage: "No code provided",
		},
		{
			name:        "System joins operation and cause",
			err:         System("writing artifact", errors.New("disk full")),
			wantMessage: "writing artifact: disk full",
		},
		{
			name:        "System without cause is just the operation",
			err:         System("execution capacity exhausted", nil),
			wantMessage: "execution capacity exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestErrorsAs(t *testing.T) {
	// A wrapped AppError must still be extractable so the coordinator can
	// read its Message after layers of fmt.Errorf("...: %w").
	wrapped := errors.Join(errors.New("outer"), ValidationFailed("code", "No code provided"))

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As() did not find *AppError")
	}
	if appErr.Field != "code" {
		t.Errorf("Field = %q, want %q", appErr.Field, "code")
	}
}
