package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

// NewNoActiveSession reports that the caller has no session for the conversation.
func NewNoActiveSession(conversationID string) error {
	return NewDomainError("NO_ACTIVE_SESSION", "no active chat session for conversation", http.StatusNotFound,
		map[string]any{"conversation_id": conversationID})
}

// NewSendNotAllowed reports an invalid send attempt that never reached the backend.
func NewSendNotAllowed(message string) error {
	return NewDomainError("SEND_NOT_ALLOWED", message, http.StatusUnprocessableEntity, nil)
}

// NewOpenSuperseded reports an open request overtaken by a later one from the same user.
func NewOpenSuperseded(conversationID string) error {
	return NewDomainError("OPEN_SUPERSEDED", "a newer conversation was opened", http.StatusConflict,
		map[string]any{"conversation_id": conversationID})
}

// NewAttachmentRejected reports a file refused at the upload boundary.
func NewAttachmentRejected(message string, details map[string]any) error {
	return NewDomainError("ATTACHMENT_REJECTED", message, http.StatusBadRequest, details)
}

// NewFetchFailed wraps a backend failure while loading data.
func NewFetchFailed(err error) error {
	return &DomainError{
		Code:       "FETCH_FAILED",
		Message:    "backend request failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewSendFailed wraps a backend failure while persisting a message.
func NewSendFailed(err error) error {
	return &DomainError{
		Code:       "SEND_FAILED",
		Message:    "message could not be sent",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fromStatus(fiberErr.Code, fiberErr.Message)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func fromStatus(status int, message string) *DomainError {
	code := "INTERNAL_ERROR"
	switch status {
	case http.StatusBadRequest:
		code = "VALIDATION_FAILED"
	case http.StatusUnauthorized:
		code = "UNAUTHORIZED"
	case http.StatusForbidden:
		code = "FORBIDDEN"
	case http.StatusNotFound:
		code = "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		code = "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		code = "ATTACHMENT_REJECTED"
	}
	return &DomainError{Code: code, Message: message, HTTPStatus: status}
}
