package core

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of capture failure.
type ErrorCode string

const (
	CodeContainerNotFound ErrorCode = "CONTAINER_NOT_FOUND"
	CodeAnchorUnresolved  ErrorCode = "ANCHOR_UNRESOLVED"
	CodeSearchTimeout     ErrorCode = "SEARCH_TIMEOUT"
	CodeSearchBoundary    ErrorCode = "SEARCH_BOUNDARY"
	CodeEmptyRange        ErrorCode = "EMPTY_RANGE"
	CodeExtractionSkip    ErrorCode = "EXTRACTION_SKIP"
)

// Fatal reports whether errors with this code terminate a session. Every
// other code degrades toward a best-effort transcript.
func (c ErrorCode) Fatal() bool {
	return c == CodeContainerNotFound || c == CodeEmptyRange
}

// CaptureError is a structured capture failure.
type CaptureError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Is matches any CaptureError carrying the same code, so callers can write
// errors.Is(err, core.ErrEmptyRange).
func (e *CaptureError) Is(target error) bool {
	var ce *CaptureError
	if errors.As(target, &ce) {
		return ce.Code == e.Code
	}
	return false
}

func newCaptureError(code ErrorCode, msg string, err error) *CaptureError {
	return &CaptureError{Code: code, Msg: msg, Err: err}
}

// Code-only sentinels for errors.Is comparisons.
var (
	ErrContainerNotFound = &CaptureError{Code: CodeContainerNotFound}
	ErrAnchorUnresolved  = &CaptureError{Code: CodeAnchorUnresolved}
	ErrSearchTimeout     = &CaptureError{Code: CodeSearchTimeout}
	ErrSearchBoundary    = &CaptureError{Code: CodeSearchBoundary}
	ErrEmptyRange        = &CaptureError{Code: CodeEmptyRange}
	ErrExtractionSkip    = &CaptureError{Code: CodeExtractionSkip}
)

// Session lifecycle errors.
var (
	ErrSessionBusy   = errors.New("a capture session is already searching or resolving")
	ErrNoSession     = errors.New("no capture session in progress")
	ErrNotAnchorable = errors.New("row carries no extractable message")
)

// ErrorCodeOf returns the capture error code carried by err, or "" if none.
func ErrorCodeOf(err error) ErrorCode {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
