package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for recovery logic.
type ErrorClass string

const (
	// ErrorClassUnavailable indicates the module backing an element cannot be
	// introspected at all. It is fatal to the enclosing resolution.
	ErrorClassUnavailable ErrorClass = "element_unavailable"

	// ErrorClassConstruction indicates a single attribute record could not be
	// turned into a marker instance. The record is skipped and resolution continues.
	ErrorClassConstruction ErrorClass = "marker_construction_failed"

	// ErrorClassPolicy indicates the usage policy of a marker type could not be
	// determined. Callers fall back to allowing multiple applications.
	ErrorClassPolicy ErrorClass = "policy_unresolved"
)

// Sentinel causes that request per-record recovery. Catalog lookups, marker
// constructors and property setters wrap one of these when the failure stems
// from a missing or incompatible type rather than from a logic error.
var (
	ErrTypeLoad       = errors.New("type could not be loaded")
	ErrBadImageFormat = errors.New("incompatible binary shape")
	ErrFileLoad       = errors.New("defining module could not be loaded")
)

// Error represents a classified error with element and marker context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Element is the element being resolved when the error occurred.
	Element string `json:"element,omitempty"`

	// Marker is the marker type involved, if any.
	Marker string `json:"marker,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Element != "" && e.Marker != "":
		msg += fmt.Sprintf(" (element=%s, marker=%s)", e.Element, e.Marker)
	case e.Element != "":
		msg += fmt.Sprintf(" (element=%s)", e.Element)
	case e.Marker != "":
		msg += fmt.Sprintf(" (marker=%s)", e.Marker)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewUnavailableError creates an ElementUnavailable error.
func NewUnavailableError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassUnavailable,
		Message: message,
		Err:     err,
	}
}

// NewConstructionError creates a MarkerConstructionFailed error. The code is
// derived from the sentinel wrapped by err.
func NewConstructionError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassConstruction,
		Message: message,
		Code:    codeFor(err),
		Err:     err,
	}
}

// NewPolicyError creates a PolicyUnresolved error.
func NewPolicyError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassPolicy,
		Message: message,
		Err:     err,
	}
}

// WithElement adds element context to an error.
func (e *Error) WithElement(element string) *Error {
	e.Element = element
	return e
}

// WithMarker adds marker type context to an error.
func (e *Error) WithMarker(marker string) *Error {
	e.Marker = marker
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsUnavailable returns true if the error is classified as ElementUnavailable.
func IsUnavailable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassUnavailable
	}
	return false
}

// IsConstructionFailed returns true if the error is classified as MarkerConstructionFailed.
func IsConstructionFailed(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassConstruction
	}
	return false
}

// IsPolicyUnresolved returns true if the error is classified as PolicyUnresolved.
func IsPolicyUnresolved(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassPolicy
	}
	return false
}

// IsRecoverable reports whether err stems from a missing, mismatched or
// unloadable type and may therefore be absorbed for a single record.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrTypeLoad) ||
		errors.Is(err, ErrBadImageFormat) ||
		errors.Is(err, ErrFileLoad)
}

// CodeOf returns the code of a classified error, or an empty string.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, ErrTypeLoad):
		return ErrCodeTypeLoad
	case errors.Is(err, ErrBadImageFormat):
		return ErrCodeBadImageFormat
	case errors.Is(err, ErrFileLoad):
		return ErrCodeFileLoad
	}
	return ""
}

// Common error codes.
const (
	ErrCodeTypeLoad       = "TYPE_LOAD"
	ErrCodeBadImageFormat = "BAD_IMAGE_FORMAT"
	ErrCodeFileLoad       = "FILE_LOAD"
	ErrCodeNotFound       = "NOT_FOUND"
)
