// Package apierr defines the closed error taxonomy shared by the JSON and
// SSE response paths. Every user-visible failure maps to one of these codes.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeSessionNotFound  Code = "SESSION_NOT_FOUND"
	CodeProfileNotFound  Code = "PROFILE_NOT_FOUND"
	CodeDocumentNotFound Code = "DOCUMENT_NOT_FOUND"
	CodeMessageNotFound  Code = "MESSAGE_NOT_FOUND"
	CodeUsageLogNotFound Code = "USAGE_LOG_NOT_FOUND"
	CodeMissingAPIKey    Code = "MISSING_API_KEY"
	CodeMissingFilename  Code = "MISSING_FILENAME"
	CodeFileSaveFailed   Code = "FILE_SAVE_FAILED"
	CodeFileDeleteFailed Code = "FILE_DELETE_FAILED"
	CodeOpenRouterError  Code = "OPENROUTER_ERROR"
	CodeStreamError      Code = "STREAM_ERROR"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeBadQuery         Code = "BAD_QUERY"
	CodeValidationError  Code = "VALIDATION_ERROR"
)

// Error is a typed API failure. Status is the HTTP status used on JSON
// endpoints; the streaming endpoint embeds it in the SSE payload instead.
type Error struct {
	Code         Code
	Status       int
	Message      string
	ResourceType string
	ResourceID   string
	Details      map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Envelope is the wire form shared by JSON bodies and SSE error frames.
// SSE frames additionally carry Status and RequestID.
type Envelope struct {
	ErrorCode    Code           `json:"error_code"`
	Message      string         `json:"message"`
	Status       int            `json:"status,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

func (e *Error) Envelope(requestID string) Envelope {
	return Envelope{
		ErrorCode:    e.Code,
		Message:      e.Message,
		RequestID:    requestID,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
	}
}

// StreamEnvelope is the SSE form, which always carries the status so
// EventSource clients can act on it despite the fixed 200 response.
func (e *Error) StreamEnvelope(requestID string) Envelope {
	env := e.Envelope(requestID)
	env.Status = e.Status
	return env
}

func NotFound(code Code, resourceType, resourceID string) *Error {
	label := resourceType
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	return &Error{
		Code:         code,
		Status:       http.StatusNotFound,
		Message:      fmt.Sprintf("%s not found", label),
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

func BadRequest(code Code, message string, details map[string]any) *Error {
	return &Error{Code: code, Status: http.StatusBadRequest, Message: message, Details: details}
}

func Internal(code Code, message string) *Error {
	return &Error{Code: code, Status: http.StatusInternalServerError, Message: message}
}

// OpenRouter wraps an upstream provider failure, preserving its status code.
func OpenRouter(status int, message string) *Error {
	return &Error{Code: CodeOpenRouterError, Status: http.StatusBadGateway, Message: message,
		Details: map[string]any{"upstream_status": status}}
}

func RateLimited(policy string, retryAfterSec int) *Error {
	return &Error{
		Code:    CodeRateLimited,
		Status:  http.StatusTooManyRequests,
		Message: fmt.Sprintf("Rate limit exceeded: %s", policy),
		Details: map[string]any{"retry_after": retryAfterSec, "limit": policy},
	}
}

func MissingAPIKey() *Error {
	return BadRequest(CodeMissingAPIKey, "OpenRouter API key is not configured", nil)
}

// From coerces any error into a typed one; unknown failures collapse to
// STREAM_ERROR so no raw internals leak to clients.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(CodeStreamError, "An internal error occurred while processing the stream")
}
