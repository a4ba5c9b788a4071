package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Application error codes
const (
	EINVALID      = "invalid"               // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"          // Authentication required
	EFORBIDDEN    = "forbidden"             // Permission denied
	ENOTFOUND     = "not_found"             // Resource not found
	ECONFLICT     = "conflict"              // Resource conflict (e.g., duplicate)
	ETOOLARGE     = "too_large"             // Request entity too large
	EINTERNAL     = "internal"              // Internal server error
	EPROFILE      = "profile_incomplete"    // Reporter profile missing a jurisdiction
	EMISMATCH     = "jurisdiction_mismatch" // Pinned location outside registered jurisdiction
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "report.submit")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
// Submission errors map onto the same code space so the HTTP layer can
// render every failure uniformly.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return EINVALID
	}
	var pe *ProfileIncompleteError
	if errors.As(err, &pe) {
		return EPROFILE
	}
	var me *JurisdictionMismatchError
	if errors.As(err, &me) {
		return EMISMATCH
	}
	var pf *PersistenceError
	if errors.As(err, &pf) {
		return EINTERNAL
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	var pe *ProfileIncompleteError
	var me *JurisdictionMismatchError
	switch {
	case errors.As(err, &ve):
		return ve.Message()
	case errors.As(err, &pe):
		return pe.Message()
	case errors.As(err, &me):
		return me.Message()
	}

	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// =============================================================================
// Submission Errors
// =============================================================================

// ValidationError lists required report fields that were left blank, plus
// fields that were present but malformed. It is produced before any
// network or store call.
type ValidationError struct {
	Op            string
	MissingFields []string          // Display names, in form order
	InvalidFields map[string]string // Display name -> reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message())
}

// Message is the user-facing text, listing every missing field verbatim.
func (e *ValidationError) Message() string {
	var parts []string
	if len(e.MissingFields) > 0 {
		parts = append(parts, "Please fill in the required fields: "+strings.Join(e.MissingFields, ", "))
	}
	for _, field := range slices.Sorted(maps.Keys(e.InvalidFields)) {
		parts = append(parts, fmt.Sprintf("%s %s", field, e.InvalidFields[field]))
	}
	if len(parts) == 0 {
		return "validation failed"
	}
	return strings.Join(parts, ". ")
}

// HasMissing reports whether field is among the missing fields.
func (e *ValidationError) HasMissing(field string) bool {
	for _, f := range e.MissingFields {
		if f == field {
			return true
		}
	}
	return false
}

// ProfileIncompleteError means the reporter has no profile or no registered
// jurisdiction. The user must complete their profile before retrying.
type ProfileIncompleteError struct {
	Op     string
	UserID string
}

func (e *ProfileIncompleteError) Error() string {
	return fmt.Sprintf("%s: profile for user %s has no registered jurisdiction", e.Op, e.UserID)
}

// Message is the user-facing text.
func (e *ProfileIncompleteError) Message() string {
	return "Please complete your profile and set your city or municipality before filing a report."
}

// JurisdictionMismatchError means the pinned location resolved to a
// jurisdiction other than the reporter's registered one.
type JurisdictionMismatchError struct {
	Op         string
	Resolved   string
	Registered string
}

func (e *JurisdictionMismatchError) Error() string {
	return fmt.Sprintf("%s: pinned location is in %q, reporter is registered in %q", e.Op, e.Resolved, e.Registered)
}

// Message is the user-facing text naming both jurisdictions so the pin can
// be corrected.
func (e *JurisdictionMismatchError) Message() string {
	return fmt.Sprintf("The pinned location appears to be in %s, but you are registered in %s. Please move the pin inside your jurisdiction.", e.Resolved, e.Registered)
}

// PersistenceError means the report row could not be created. Nothing was
// saved, so retrying is safe.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: failed to save report: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
