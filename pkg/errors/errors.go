package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound   = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict   = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal   = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss  = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Conversation error taxonomy. A protocol violation is an inbound
	// message whose shape does not match the participant's current step;
	// the participant state must not be mutated when one is raised.
	ErrProtocolViolation       = New("PROTOCOL_VIOLATION", http.StatusBadRequest, "message does not match the expected step")
	ErrUnknownParticipantState = New("UNKNOWN_PARTICIPANT_STATE", http.StatusInternalServerError, "participant fields match no known onboarding step")
	ErrSendFailed              = New("SEND_FAILED", http.StatusBadGateway, "outbound message delivery failed")
	ErrUnsupportedMediaType    = New("UNSUPPORTED_MEDIA_TYPE", http.StatusUnsupportedMediaType, "media mime type is not supported")
	ErrMediaFetchFailed        = New("MEDIA_FETCH_FAILED", http.StatusBadGateway, "failed to fetch media from channel")
	ErrAudioRequired           = New("AUDIO_REQUIRED", http.StatusBadRequest, "no audio file provided")
	ErrSurveyNotFound          = New("SURVEY_NOT_FOUND", http.StatusNotFound, "survey not found")
	ErrQuestionNotFound        = New("QUESTION_NOT_FOUND", http.StatusNotFound, "question not found")
	ErrVerificationFailed      = New("VERIFICATION_FAILED", http.StatusForbidden, "invalid webhook verify token")

	ErrExportNotFound    = New("EXPORT_NOT_FOUND", http.StatusNotFound, "export job not found")
	ErrExportLinkInvalid = New("EXPORT_LINK_INVALID", http.StatusForbidden, "download link is invalid or expired")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
