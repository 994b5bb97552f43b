package errors

import (
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
// Rate limiting and every 5xx qualify; other 4xx responses are terminal.
func IsRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// NewDeliveryError creates an error for a failed destination webhook call
func NewDeliveryError(operation string, statusCode int, body string) *AppError {
	appErr := New(ErrCodeDeliveryFailed, fmt.Sprintf("discord %s failed with status %d", operation, statusCode)).
		WithContext("operation", operation).
		WithContext("status_code", statusCode).
		WithContext("body", body).
		WithUserMessage(fmt.Sprintf("Discord rejected %s (HTTP %d)", operation, statusCode))
	appErr.Retryable = IsRetryableStatus(statusCode)
	return appErr
}

// NewAPIError creates an error for a failed call to a source-side API
func NewAPIError(service, method string, statusCode int, err error) *AppError {
	code := ErrCodeInternalError
	switch service {
	case "telegram":
		code = ErrCodeTelegramAPI
	case "userclient":
		code = ErrCodeUserClientAPI
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s API call failed", service)).
		WithContext("service", service).
		WithContext("method", method).
		WithContext("status_code", statusCode)
	appErr.Retryable = statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout
	return appErr
}

// NewAcquisitionError creates a media acquisition error. Only transient
// failures are retryable.
func NewAcquisitionError(code ErrorCode, kind string, err error) *AppError {
	var msg, user string
	switch code {
	case ErrCodeAcquisitionTooLarge:
		msg, user = "attachment too large for every download path", "File too large to download"
	case ErrCodeAcquisitionAccessDenied:
		msg, user = "secondary client has no access to the source chat", "No access to download the file"
	default:
		code = ErrCodeAcquisitionTransient
		msg, user = "attachment download failed", "Temporary download failure"
	}
	appErr := Wrap(err, code, msg).
		WithContext("media_type", kind).
		WithUserMessage(user)
	appErr.Retryable = code == ErrCodeAcquisitionTransient
	return appErr
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTPStatusCode maps error codes to HTTP status codes for the inbound webhook
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeDeliveryFailed, ErrCodeTelegramAPI, ErrCodeUserClientAPI:
		if IsRetryable(err) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
