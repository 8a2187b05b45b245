package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationEmptyCity,
		Message: "city must not be empty",
	}

	expected := "validation_empty_city: city must not be empty"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeUpstreamNetwork, "weather service unreachable", underlying)

	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should find the underlying error")
	}

	wrapped := fmt.Errorf("fetch weather: %w", appErr)
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeUpstreamNetwork {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeUpstreamNetwork)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationNoPredictions, http.StatusBadRequest},
		{ErrCodeNotFoundSession, http.StatusNotFound},
		{ErrCodeNotFoundRoute, http.StatusNotFound},
		{ErrCodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{ErrCodeConflictPredictionPending, http.StatusConflict},
		{ErrCodeUpstreamNetwork, http.StatusBadGateway},
		{ErrCodeUpstreamRejected, http.StatusBadGateway},
		{ErrCodeUpstreamMalformed, http.StatusBadGateway},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	orig := NewAppErrorWithDetails(ErrCodeUpstreamRejected, "rejected", nil, map[string]any{"kind": "server_rejected"})
	extended := orig.WithDetails(map[string]any{"stage": "weather"})

	if _, ok := orig.Details["stage"]; ok {
		t.Error("WithDetails mutated the original error")
	}
	if extended.Details["kind"] != "server_rejected" || extended.Details["stage"] != "weather" {
		t.Errorf("unexpected merged details: %v", extended.Details)
	}
}

func TestRemoteKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   RemoteErrorKind
		wantOK bool
	}{
		{"network", NewRemoteError(RemoteNetwork, "down", 0, nil), RemoteNetwork, true},
		{"rejected", NewRemoteError(RemoteServerRejected, "bad city", 404, nil), RemoteServerRejected, true},
		{"malformed wrapped", fmt.Errorf("x: %w", NewRemoteError(RemoteMalformed, "bad json", 200, nil)), RemoteMalformed, true},
		{"validation", NewValidationError(ErrCodeValidationEmptyCity, "city", "empty"), "", false},
		{"plain", errors.New("boom"), "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RemoteKind(tt.err)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("RemoteKind() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNewRemoteErrorDetails(t *testing.T) {
	err := NewRemoteError(RemoteServerRejected, "city not found", http.StatusNotFound, nil)
	if err.Details["kind"] != "server_rejected" {
		t.Errorf("kind detail = %v", err.Details["kind"])
	}
	if err.Details["status"] != http.StatusNotFound {
		t.Errorf("status detail = %v", err.Details["status"])
	}

	noStatus := NewRemoteError(RemoteNetwork, "timeout", 0, nil)
	if _, ok := noStatus.Details["status"]; ok {
		t.Error("status detail should be omitted when no response was received")
	}
}

func TestIsValidationError(t *testing.T) {
	if !IsValidationError(NewValidationError(ErrCodeValidationNotNumeric, "Humidity", "not a number")) {
		t.Error("expected validation error to be recognized")
	}
	if IsValidationError(NewRemoteError(RemoteNetwork, "down", 0, nil)) {
		t.Error("remote error must not be classified as validation")
	}
}
