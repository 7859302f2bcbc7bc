// Package errors defines the failure taxonomy of a site build: transform,
// fetch, publish, watch, configuration and task graph errors, plus a
// collector for per-file failures reported during publishing.
package errors

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileError records a failure tied to a single file.
type FileError struct {
	File      string
	Operation string
	Err       error
	Timestamp time.Time
}

// Error implements the error interface
func (fe *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", fe.Operation, fe.File, fe.Err)
}

// Unwrap returns the underlying cause.
func (fe *FileError) Unwrap() error {
	return fe.Err
}

// ErrorCollector collects per-file errors from concurrent or sequential work
type ErrorCollector struct {
	errors []FileError
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make([]FileError, 0),
	}
}

// Add records a failure for file. A nil err is ignored.
func (ec *ErrorCollector) Add(operation, file string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, FileError{
		File:      file,
		Operation: operation,
		Err:       err,
		Timestamp: time.Now(),
	})
}

// GetErrors returns a copy of the collected errors sorted by file
func (ec *ErrorCollector) GetErrors() []FileError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]FileError, len(ec.errors))
	copy(result, ec.errors)
	sort.SliceStable(result, func(i, j int) bool { return result[i].File < result[j].File })
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errors) > 0
}

// Count returns the number of collected errors
func (ec *ErrorCollector) Count() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errors)
}

// Err folds the collected errors into a single error, or nil when empty.
func (ec *ErrorCollector) Err() error {
	errs := ec.GetErrors()
	if len(errs) == 0 {
		return nil
	}
	return &MultiFileError{Errors: errs}
}

// MultiFileError aggregates several per-file failures.
type MultiFileError struct {
	Errors []FileError
}

// Error implements the error interface
func (m *MultiFileError) Error() string {
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	lines := make([]string, 0, len(m.Errors))
	for i := range m.Errors {
		lines = append(lines, m.Errors[i].Error())
	}
	return fmt.Sprintf("%d files failed:\n  %s", len(m.Errors), strings.Join(lines, "\n  "))
}

// Unwrap exposes every per-file error to errors.Is and errors.As.
func (m *MultiFileError) Unwrap() []error {
	out := make([]error, len(m.Errors))
	for i := range m.Errors {
		out[i] = &m.Errors[i]
	}
	return out
}
