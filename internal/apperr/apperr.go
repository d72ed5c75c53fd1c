// Package apperr holds the error type shared by every pipeline stage.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code classifies a failure by the stage boundary it crossed.
type Code int

const (
	CodeUnknown Code = iota
	CodeInvalidArgument
	CodeTransport
	CodeInference
	CodeExternalTool
	CodeFilesystem
)

func (c Code) String() string {
	switch c {
	case CodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case CodeTransport:
		return "TRANSPORT"
	case CodeInference:
		return "INFERENCE"
	case CodeExternalTool:
		return "EXTERNAL_TOOL"
	case CodeFilesystem:
		return "FILESYSTEM"
	default:
		return "UNKNOWN"
	}
}

// Error is the application error carried up to the CLI.
type Error struct {
	Raw     error
	Code    Code
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, e.Details[k])
		}
	}
	if e.Raw != nil {
		fmt.Fprintf(&b, ": %v", e.Raw)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Raw }

// WithDetail adds a key/value pair shown in the error message.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

func ErrInvalidArgument(message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message}
}

func ErrDownloadFailed(url string, err error) *Error {
	return (&Error{
		Raw:     err,
		Code:    CodeTransport,
		Message: "download failed",
	}).WithDetail("url", url)
}

func ErrUnexpectedStatus(url string, status int) *Error {
	return (&Error{
		Code:    CodeTransport,
		Message: fmt.Sprintf("unexpected HTTP status %d", status),
	}).WithDetail("url", url)
}

func ErrTranscriptionFailed(backend string, err error) *Error {
	return (&Error{
		Raw:     err,
		Code:    CodeInference,
		Message: "transcription failed",
	}).WithDetail("backend", backend)
}

func ErrToolUnavailable(tool string, err error) *Error {
	return (&Error{
		Raw:     err,
		Code:    CodeExternalTool,
		Message: "external tool unavailable",
	}).WithDetail("tool", tool)
}

func ErrToolFailed(tool, step string, err error) *Error {
	return (&Error{
		Raw:     err,
		Code:    CodeExternalTool,
		Message: fmt.Sprintf("%s %s failed", tool, step),
	}).WithDetail("tool", tool)
}

func ErrFilesystem(op, path string, err error) *Error {
	return (&Error{
		Raw:     err,
		Code:    CodeFilesystem,
		Message: op,
	}).WithDetail("path", path)
}
