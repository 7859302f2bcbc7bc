package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of build failures.
type ErrorType string

const (
	ErrorTypeTransform ErrorType = "transform"
	ErrorTypeFetch     ErrorType = "fetch"
	ErrorTypePublish   ErrorType = "publish"
	ErrorTypeWatch     ErrorType = "watch"
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeGraph     ErrorType = "graph"
	ErrorTypeIO        ErrorType = "io"
)

// SiteError is a structured error naming the task and file involved.
type SiteError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Task     string
	FilePath string
}

// Error implements the error interface.
func (e *SiteError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Task != "" {
		parts = append(parts, "task:"+e.Task)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SiteError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *SiteError) Is(target error) bool {
	var t *SiteError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithFile records the source or output file the error refers to.
func (e *SiteError) WithFile(path string) *SiteError {
	e.FilePath = path

	return e
}

// WithTask records the task that was running.
func (e *SiteError) WithTask(task string) *SiteError {
	e.Task = task

	return e
}

// Common error codes.
const (
	ErrCodeTransformFailed = "ERR_TRANSFORM_FAILED"
	ErrCodeFetchFailed     = "ERR_FETCH_FAILED"
	ErrCodeManifestInvalid = "ERR_MANIFEST_INVALID"
	ErrCodePublishFailed   = "ERR_PUBLISH_FAILED"
	ErrCodeWatchFailed     = "ERR_WATCH_FAILED"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeGraphCycle      = "ERR_GRAPH_CYCLE"
	ErrCodeUnknownTask     = "ERR_UNKNOWN_TASK"
	ErrCodeDuplicateTask   = "ERR_DUPLICATE_TASK"
	ErrCodeTaskFailed      = "ERR_TASK_FAILED"
	ErrCodeIO              = "ERR_IO"
)

// Sentinels usable with errors.Is; they match any SiteError of the same type and code.
var (
	ErrTransformFailed = &SiteError{Type: ErrorTypeTransform, Code: ErrCodeTransformFailed}
	ErrFetchFailed     = &SiteError{Type: ErrorTypeFetch, Code: ErrCodeFetchFailed}
	ErrPublishFailed   = &SiteError{Type: ErrorTypePublish, Code: ErrCodePublishFailed}
	ErrWatchFailed     = &SiteError{Type: ErrorTypeWatch, Code: ErrCodeWatchFailed}
	ErrGraphCycle      = &SiteError{Type: ErrorTypeGraph, Code: ErrCodeGraphCycle}
	ErrUnknownTask     = &SiteError{Type: ErrorTypeGraph, Code: ErrCodeUnknownTask}
)

// NewTransformError reports that a compiler or optimizer rejected a source file.
func NewTransformError(transform, file string, cause error) *SiteError {
	return &SiteError{
		Type:     ErrorTypeTransform,
		Code:     ErrCodeTransformFailed,
		Message:  transform + " failed",
		Cause:    cause,
		FilePath: file,
	}
}

// NewFetchError reports a dependency retrieval failure.
func NewFetchError(pkg string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeFetch,
		Code:    ErrCodeFetchFailed,
		Message: "fetching package " + pkg,
		Cause:   cause,
	}
}

// NewManifestError reports an unreadable or malformed dependency manifest.
func NewManifestError(path string, cause error) *SiteError {
	return &SiteError{
		Type:     ErrorTypeFetch,
		Code:     ErrCodeManifestInvalid,
		Message:  "invalid dependency manifest",
		Cause:    cause,
		FilePath: path,
	}
}

// NewPublishError reports that the output tree was not fully published.
func NewPublishError(message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypePublish,
		Code:    ErrCodePublishFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewWatchError reports a filesystem watch setup failure.
func NewWatchError(path string, cause error) *SiteError {
	return &SiteError{
		Type:     ErrorTypeWatch,
		Code:     ErrCodeWatchFailed,
		Message:  "watching source files",
		Cause:    cause,
		FilePath: path,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *SiteError {
	return &SiteError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeConfigInvalid,
		Message: message,
	}
}

// NewGraphError creates a task graph declaration error.
func NewGraphError(code, message string) *SiteError {
	return &SiteError{
		Type:    ErrorTypeGraph,
		Code:    code,
		Message: message,
	}
}

// NewTaskError wraps the failure of a task's action.
func NewTaskError(task string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeGraph,
		Code:    ErrCodeTaskFailed,
		Message: "task failed",
		Cause:   cause,
		Task:    task,
	}
}

// NewIOError creates an I/O error.
func NewIOError(message, path string, cause error) *SiteError {
	return &SiteError{
		Type:     ErrorTypeIO,
		Code:     ErrCodeIO,
		Message:  message,
		Cause:    cause,
		FilePath: path,
	}
}

// TypeOf returns the type of the outermost SiteError in the chain, or "".
func TypeOf(err error) ErrorType {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Type
	}

	return ""
}

// RootType returns the type of the innermost SiteError in the chain.
// A task failure wrapping a transform failure reports ErrorTypeTransform.
func RootType(err error) ErrorType {
	var found ErrorType
	for err != nil {
		var se *SiteError
		if !errors.As(err, &se) {
			break
		}
		found = se.Type
		err = se.Cause
	}

	return found
}

// Logger is the subset of the logging interface used for error reporting.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// Report logs err with fields derived from its SiteError chain.
func Report(ctx context.Context, logger Logger, err error) {
	if err == nil || logger == nil {
		return
	}

	var se *SiteError
	if !errors.As(err, &se) {
		logger.Error(ctx, err, "Unhandled error occurred")

		return
	}

	fields := []interface{}{"type", se.Type, "code", se.Code}
	if se.Task != "" {
		fields = append(fields, "task", se.Task)
	}
	if se.FilePath != "" {
		fields = append(fields, "file", se.FilePath)
	}
	if root := RootType(err); root != se.Type {
		fields = append(fields, "cause_type", root)
	}

	switch RootType(err) {
	case ErrorTypeWatch:
		logger.Warn(ctx, err, "Watch error occurred", fields...)
	default:
		logger.Error(ctx, err, "Build error occurred", fields...)
	}
}
