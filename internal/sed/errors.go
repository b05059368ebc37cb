package sed

import (
	"fmt"
	"strings"
)

// InvalidSpecError reports a malformed modifier specification. It is
// returned at parse time, before any row is processed.
type InvalidSpecError struct {
	Spec   string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid modifier spec %q: %s", e.Spec, e.Reason)
}

func invalidSpec(spec, format string, args ...any) error {
	return &InvalidSpecError{Spec: spec, Reason: fmt.Sprintf(format, args...)}
}

// ColumnConflictError reports a column identifier that cannot be turned into
// a unique column index: a name that is missing from the header (or has no
// header to look in), or a name and an index addressing the same column.
type ColumnConflictError struct {
	Column string
	Index  int
	Reason string
}

func (e *ColumnConflictError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("column %s (index %d): %s", e.Column, e.Index, e.Reason)
	}
	return fmt.Sprintf("column %s: %s", e.Column, e.Reason)
}

// RowWidthError reports a row that is too short for a configured column.
// Line is the 1-based position of the row in the upstream source.
type RowWidthError struct {
	Line   int
	Column int
	Width  int
}

func (e *RowWidthError) Error() string {
	return fmt.Sprintf("line %d: row has %d columns, modifier configured for column %d",
		e.Line, e.Width, e.Column)
}

// ExternalCommandError reports a failed external modifier command. Stderr
// holds whatever the command wrote to its error stream.
type ExternalCommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExternalCommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command %q failed", e.Command)
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		fmt.Fprintf(&b, ": %s", msg)
	}
	return b.String()
}

func (e *ExternalCommandError) Unwrap() error {
	return e.Err
}
