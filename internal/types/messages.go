package types

import (
	"fmt"
	"slices"
	"sync"
)

// Messages collects the non-fatal output of a scan.
// Warnings are appended by workers concurrently; every method is safe for
// concurrent use.
type Messages struct {
	mu       sync.Mutex
	messages []string
	warnings []string
	errors   []string
}

// NewMessages returns an empty bundle.
func NewMessages() *Messages { return &Messages{} }

// Info records an informational message.
func (m *Messages) Info(format string, args ...any) {
	m.mu.Lock()
	m.messages = append(m.messages, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

// Warn records a recoverable per-item failure.
func (m *Messages) Warn(format string, args ...any) {
	m.mu.Lock()
	m.warnings = append(m.warnings, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

// Error records a failed operation whose scan still produced results.
func (m *Messages) Error(format string, args ...any) {
	m.mu.Lock()
	m.errors = append(m.errors, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

// AddWarnings appends already formatted warnings.
func (m *Messages) AddWarnings(warnings []string) {
	m.mu.Lock()
	m.warnings = append(m.warnings, warnings...)
	m.mu.Unlock()
}

// Merge appends every message of other.
func (m *Messages) Merge(other *Messages) {
	if other == nil || other == m {
		return
	}
	msgs, warns, errs := other.Messages(), other.Warnings(), other.Errors()
	m.mu.Lock()
	m.messages = append(m.messages, msgs...)
	m.warnings = append(m.warnings, warns...)
	m.errors = append(m.errors, errs...)
	m.mu.Unlock()
}

// Messages returns a copy of the informational messages.
func (m *Messages) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages)
}

// Warnings returns a copy of the warnings.
func (m *Messages) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.warnings)
}

// Errors returns a copy of the errors.
func (m *Messages) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.errors)
}
