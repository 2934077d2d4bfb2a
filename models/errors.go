package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is a machine-readable failure classification carried by
// every IntegrationError.
type ErrorCode string

const (
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeMissingEnvVars      ErrorCode = "MISSING_ENV_VARS"
	CodeConfigNotFound      ErrorCode = "CONFIG_NOT_FOUND"
	CodeIntegrationDisabled ErrorCode = "INTEGRATION_DISABLED"
	CodeUnknownProvider     ErrorCode = "UNKNOWN_PROVIDER"
	CodeNotImplemented      ErrorCode = "NOT_IMPLEMENTED"
	CodeSyncInProgress      ErrorCode = "SYNC_IN_PROGRESS"
	CodeInvalidSchedule     ErrorCode = "INVALID_SCHEDULE"
	CodeConnectionFailed    ErrorCode = "CONNECTION_FAILED"
	CodeAuthFailed          ErrorCode = "AUTH_FAILED"
	CodeSyncFailed          ErrorCode = "SYNC_FAILED"
	CodeWebhookFailed       ErrorCode = "WEBHOOK_FAILED"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
)

// IntegrationError is the base error for everything in the integration
// layer. Specializations embed it so errors.As can match either the
// concrete type or this base.
type IntegrationError struct {
	Provider Provider
	Code     ErrorCode
	Message  string
	Err      error
}

func (e *IntegrationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Provider, e.Code, e.Message)
	}

	return fmt.Sprintf("[%s]: %s", e.Code, e.Message)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

func NewIntegrationError(provider Provider, code ErrorCode, message string) *IntegrationError {
	return &IntegrationError{Provider: provider, Code: code, Message: message}
}

// ErrorCodeOf extracts the code from err, or "" when err is not an
// integration error.
func ErrorCodeOf(err error) ErrorCode {
	var ie *IntegrationError
	if errors.As(err, &ie) {
		return ie.Code
	}

	return ""
}

func IsCode(err error, code ErrorCode) bool {
	return ErrorCodeOf(err) == code
}

type ConnectionError struct {
	IntegrationError
}

func NewConnectionError(provider Provider, message string, err error) *ConnectionError {
	return &ConnectionError{IntegrationError{Provider: provider, Code: CodeConnectionFailed, Message: message, Err: err}}
}

type AuthenticationError struct {
	IntegrationError
}

func NewAuthenticationError(provider Provider, message string) *AuthenticationError {
	return &AuthenticationError{IntegrationError{Provider: provider, Code: CodeAuthFailed, Message: message}}
}

// SyncError is a systemic sync failure (adapter threw), distinct from
// a sync result that merely counted failed records.
type SyncError struct {
	IntegrationError
}

func NewSyncError(provider Provider, code ErrorCode, message string) *SyncError {
	return &SyncError{IntegrationError{Provider: provider, Code: code, Message: message}}
}

type WebhookError struct {
	IntegrationError
}

func NewWebhookError(provider Provider, message string) *WebhookError {
	return &WebhookError{IntegrationError{Provider: provider, Code: CodeWebhookFailed, Message: message}}
}

// RateLimitError carries the provider's requested backoff.
type RateLimitError struct {
	IntegrationError
	RetryAfter time.Duration
}

func NewRateLimitError(provider Provider, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		IntegrationError: IntegrationError{
			Provider: provider,
			Code:     CodeRateLimited,
			Message:  fmt.Sprintf("rate limited, retry after %s", retryAfter),
		},
		RetryAfter: retryAfter,
	}
}
