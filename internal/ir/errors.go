package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes boundary errors.
type ErrorCode string

const (
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeInvalidArgument        ErrorCode = "INVALID_ARGUMENT"
	CodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	CodeSafetyViolation        ErrorCode = "SAFETY_VIOLATION"

	// CodeConfiguration is boot-only. A runtime call never returns it.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
)

// Error is the error type returned at the registry boundary.
// Only the fields relevant to Code are set.
type Error struct {
	Code       ErrorCode    `json:"code"`
	Message    string       `json:"message"`
	ID         string       `json:"id,omitempty"`
	SessionID  string       `json:"session_id,omitempty"`
	From       SessionState `json:"from,omitempty"`
	To         SessionState `json:"to,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Violations []Violation  `json:"violations,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case CodeNotFound:
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, e.Message, e.ID)
	case CodeInvalidStateTransition:
		return fmt.Sprintf("%s: %s (session=%s, from=%s, to=%s)", e.Code, e.Message, e.SessionID, e.From, e.To)
	case CodeSafetyViolation:
		return fmt.Sprintf("%s: %s (session=%s)", e.Code, e.Reason, e.SessionID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NotFound reports a missing entity or session.
func NotFound(id string) *Error {
	return &Error{Code: CodeNotFound, Message: "not found", ID: id}
}

// InvalidArgument reports unusable caller input.
func InvalidArgument(format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Code: CodeInvalidArgument, Message: msg, Reason: msg}
}

// InvalidStateTransition reports an illegal session transition.
func InvalidStateTransition(sessionID string, from, to SessionState) *Error {
	return &Error{
		Code:      CodeInvalidStateTransition,
		Message:   "illegal session transition",
		SessionID: sessionID,
		From:      from,
		To:        to,
	}
}

// SafetyViolation reports a session that failed a safety or consent check.
func SafetyViolation(sessionID, reason string) *Error {
	return &Error{Code: CodeSafetyViolation, Message: reason, SessionID: sessionID, Reason: reason}
}

// ConfigurationError reports a fatal boot-time problem.
func ConfigurationError(message string, violations ...Violation) *Error {
	return &Error{Code: CodeConfiguration, Message: message, Violations: violations}
}

// CodeOf extracts the code of a wrapped *Error, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsInvalidArgument reports whether err carries CodeInvalidArgument.
func IsInvalidArgument(err error) bool { return CodeOf(err) == CodeInvalidArgument }

// IsInvalidStateTransition reports whether err carries CodeInvalidStateTransition.
func IsInvalidStateTransition(err error) bool { return CodeOf(err) == CodeInvalidStateTransition }

// IsSafetyViolation reports whether err carries CodeSafetyViolation.
func IsSafetyViolation(err error) bool { return CodeOf(err) == CodeSafetyViolation }

// IsConfigurationError reports whether err carries CodeConfiguration.
func IsConfigurationError(err error) bool { return CodeOf(err) == CodeConfiguration }
