package errors

import (
	"errors"
	"fmt"
)

// Error codes for the quest board.
const (
	// Lookup errors
	ErrCodeNotFound = "NOT_FOUND"

	// Mutation errors
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"

	// Validation errors
	ErrCodeValidationFailed = "VALIDATION_FAILED"

	// Record store errors
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"

	// Config errors
	ErrCodeConfigInvalid = "CONFIG_INVALID"

	// Completion side-effect errors
	ErrCodeProgressGrantFailed = "PROGRESS_GRANT_FAILED"
	ErrCodeRewardGrantFailed   = "REWARD_GRANT_FAILED"
)

// QuestError is the error type surfaced by every quest board operation.
// Field and RecordID are set when the failure concerns a specific field or record,
// so the presentation layer can render a precise message.
type QuestError struct {
	Code     string
	Message  string
	Field    string
	RecordID string
	Err      error
}

func (e *QuestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *QuestError) Unwrap() error {
	return e.Err
}

// NewQuestError creates a new QuestError.
func NewQuestError(code, message string, err error) *QuestError {
	return &QuestError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrNotFound returns an error when no record of the given kind matches id.
func ErrNotFound(kind, id string) *QuestError {
	return &QuestError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found: %s", kind, id),
		RecordID: id,
	}
}

// ErrUnauthorized returns an error when the acting identity may not perform action on the record.
func ErrUnauthorized(action, recordID, reason string) *QuestError {
	return &QuestError{
		Code:     ErrCodeUnauthorized,
		Message:  fmt.Sprintf("not allowed to %s %s: %s", action, recordID, reason),
		RecordID: recordID,
	}
}

// ErrConflict returns an error when an optimistic-concurrency condition was lost.
func ErrConflict(recordID, reason string) *QuestError {
	return &QuestError{
		Code:     ErrCodeConflict,
		Message:  fmt.Sprintf("%s: %s", recordID, reason),
		RecordID: recordID,
	}
}

// ErrQuestNoLongerAvailable returns the conflict a losing acceptance racer receives.
func ErrQuestNoLongerAvailable(questID string) *QuestError {
	return ErrConflict(questID, "quest is no longer available")
}

// ErrInvalidTransition returns an error when a status change violates the quest lifecycle.
func ErrInvalidTransition(recordID, from, to string) *QuestError {
	return &QuestError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("cannot move %s from %s to %s", recordID, from, to),
		Field:    "status",
		RecordID: recordID,
	}
}

// ErrValidationFailed returns a validation error.
func ErrValidationFailed(field, reason string) *QuestError {
	return &QuestError{
		Code:    ErrCodeValidationFailed,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
		Field:   field,
	}
}

// ErrUpstreamUnavailable wraps record store failures.
func ErrUpstreamUnavailable(operation string, err error) *QuestError {
	return &QuestError{
		Code:    ErrCodeUpstreamUnavailable,
		Message: fmt.Sprintf("record store error during %s", operation),
		Err:     err,
	}
}

// ErrConfigInvalid wraps a configuration validation failure.
func ErrConfigInvalid(err error) *QuestError {
	return &QuestError{
		Code:    ErrCodeConfigInvalid,
		Message: "config validation failed",
		Err:     err,
	}
}

// ErrProgressGrantFailed returns an error when a completed quest's experience could not be awarded.
func ErrProgressGrantFailed(questID, userID string, err error) *QuestError {
	return &QuestError{
		Code:     ErrCodeProgressGrantFailed,
		Message:  fmt.Sprintf("failed to award progress for quest %s to %s", questID, userID),
		RecordID: questID,
		Err:      err,
	}
}

// ErrRewardGrantFailed returns an error when paying out a quest reward fails.
func ErrRewardGrantFailed(questID, userID string, err error) *QuestError {
	return &QuestError{
		Code:     ErrCodeRewardGrantFailed,
		Message:  fmt.Sprintf("failed to grant reward for quest %s to %s", questID, userID),
		RecordID: questID,
		Err:      err,
	}
}

// Code returns the QuestError code carried by err, or "" when err is not a QuestError.
func Code(err error) string {
	var qe *QuestError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

func IsNotFound(err error) bool            { return Code(err) == ErrCodeNotFound }
func IsUnauthorized(err error) bool        { return Code(err) == ErrCodeUnauthorized }
func IsConflict(err error) bool            { return Code(err) == ErrCodeConflict }
func IsValidation(err error) bool          { return Code(err) == ErrCodeValidationFailed }
func IsUpstreamUnavailable(err error) bool { return Code(err) == ErrCodeUpstreamUnavailable }
func IsConfigInvalid(err error) bool       { return Code(err) == ErrCodeConfigInvalid }
