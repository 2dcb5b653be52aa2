// Package diag defines the diagnostics passes attach to methods: warnings
// about dropped constructs and errors that stop a method from being
// decompiled.
package diag

import "fmt"

// Stage identifies which decompiler pass produced the diagnostic.
type Stage string

const (
	StageBlocks      Stage = "blocks"
	StageExcHandlers Stage = "exc-handlers"
)

// Severity captures how impactful the diagnostic is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityDebug   Severity = "debug"
)

// rank orders severities from least to most important.
func (s Severity) rank() int {
	switch s {
	case SeverityDebug:
		return 0
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	default:
		return 3
	}
}

// AtLeast reports whether s is as important as level or more.
func (s Severity) AtLeast(level Severity) bool {
	return s.rank() >= level.rank()
}

// Code is a stable identifier for a diagnostic.
type Code string

const (
	// Exception handler reconstruction
	CodeExcHandlerUnreachable Code = "EXC_HANDLER_UNREACHABLE"
	CodeInternalInvariant     Code = "INTERNAL_INVARIANT"

	// Pass harness
	CodePassFailed Code = "PASS_FAILED"
	CodePassPanic  Code = "PASS_PANIC"
)

// Location points at a method and, optionally, a bytecode offset inside it.
type Location struct {
	Method string
	Offset int // -1 when the diagnostic applies to the whole method
}

// String returns a human-readable representation of the location.
func (l Location) String() string {
	if l.Offset >= 0 {
		return fmt.Sprintf("%s@0x%x", l.Method, l.Offset)
	}
	return l.Method
}

// IsValid returns true if the location names a method.
func (l Location) IsValid() bool {
	return l.Method != ""
}

// Diagnostic is a decompiler diagnostic surfaced to end-users.
type Diagnostic struct {
	Stage    Stage
	Severity Severity
	Code     Code
	Message  string
	Location Location
	Notes    []string // Additional notes to display
	Help     string   // Suggestion for the user
	Cause    error    // Underlying error, if the diagnostic reports a failure
}

// Error implements error so error diagnostics can travel as values.
func (d Diagnostic) Error() string {
	msg := d.Message
	if d.Code != "" {
		msg = fmt.Sprintf("%s[%s]: %s", d.Severity, d.Code, d.Message)
	}
	if d.Cause != nil {
		msg += ": " + d.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (d Diagnostic) Unwrap() error { return d.Cause }

// WithNote adds a note to the diagnostic.
func (d Diagnostic) WithNote(note string) Diagnostic {
	d.Notes = append(d.Notes, note)
	return d
}

// WithHelp returns a new diagnostic with the given help text.
func (d Diagnostic) WithHelp(help string) Diagnostic {
	d.Help = help
	return d
}

// WithOffset returns a new diagnostic pointing at the given offset.
func (d Diagnostic) WithOffset(offset int) Diagnostic {
	d.Location.Offset = offset
	return d
}

// WithCause returns a new diagnostic with the given cause.
func (d Diagnostic) WithCause(err error) Diagnostic {
	d.Cause = err
	return d
}
