package rules

import (
	"errors"
	"fmt"
)

// SyntaxError is a rule-file parse failure. It carries the source file,
// the 1-based line number and the offending line text so load failures
// point at the exact spot.
type SyntaxError struct {
	File string
	Line int
	Text string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		} else {
			msg = e.Err.Error()
		}
	}
	if e.Text != "" {
		return fmt.Sprintf("%s:%d: %s\n\t%s", e.File, e.Line, msg, e.Text)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
}

// Unwrap returns the underlying cause, if any.
func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// AsSyntaxError extracts a *SyntaxError from an error chain.
func AsSyntaxError(err error) (*SyntaxError, bool) {
	var se *SyntaxError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
