// Package errors defines the stable error codes for specpatch and maps
// them to process exit codes.
package errors

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

// Code is a stable error code string.
type Code string

// Error codes. These are part of the command-line contract.
const (
	EUsage    Code = "E_USAGE"
	EConfig   Code = "E_CONFIG"
	EInternal Code = "E_INTERNAL"

	// Patch set validation. Raised before any document is read.
	EInvalidPatchSet   Code = "E_INVALID_PATCH_SET"
	EDependencyCycle   Code = "E_DEPENDENCY_CYCLE"
	EOrderingViolation Code = "E_ORDERING_VIOLATION"

	// Per-patch application failures. The affected documents are not committed.
	EAnchorNotFound  Code = "E_ANCHOR_NOT_FOUND"
	EAmbiguousAnchor Code = "E_AMBIGUOUS_ANCHOR"
	EPatchFailed     Code = "E_PATCH_FAILED"
	EConsistency     Code = "E_CONSISTENCY"

	// I/O.
	EDocumentStore Code = "E_DOCUMENT_STORE"
	EJournal       Code = "E_JOURNAL"
)

// Error is the standard error type for specpatch errors.
type Error struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string // optional structured context
}

// Error returns the stable error format: "CODE: message".
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// NewWithDetails creates an Error with code, message, and details.
// The details map is copied (nil if empty).
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &Error{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates an Error wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &Error{Code: code, Msg: msg, Cause: err}
}

// WrapWithDetails creates an Error wrapping an underlying error with details.
func WrapWithDetails(code Code, msg string, err error, details map[string]string) error {
	return &Error{Code: code, Msg: msg, Cause: err, Details: copyDetails(details)}
}

// GetCode extracts the error code from an error, or "" if it carries none.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// As returns (*Error, true) if err is or wraps an Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// Exit codes.
const (
	ExitOK         = 0
	ExitPatchFault = 1 // drift, ambiguity or inconsistency; nothing was mutated for the affected documents
	ExitFatal      = 2 // I/O, store, configuration or patch set validation failure
)

// ExitCode returns the process exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch GetCode(err) {
	case EAnchorNotFound, EAmbiguousAnchor, EPatchFailed, EConsistency:
		return ExitPatchFault
	default:
		return ExitFatal
	}
}

// Print writes the error to w in the stable stderr format:
//
//	error_code: <CODE>
//	<message>
//	  <key>: <value>
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	e, ok := As(err)
	if !ok {
		fmt.Fprintln(w, err.Error())
		return
	}
	fmt.Fprintf(w, "error_code: %s\n", e.Code)
	msg := e.Msg
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	fmt.Fprintln(w, msg)
	for _, k := range sortedKeys(e.Details) {
		fmt.Fprintf(w, "  %s: %s\n", k, e.Details[k])
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
