package loopguard

import (
	"errors"
	"fmt"
)

// ParseError reports a lexical or syntactic problem at a source position.
type ParseError struct {
	Pos Pos
	Msg string
	// AtEOF is set when the input ended before the construct did.
	AtEOF bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Pos.Line, e.Msg)
}

// IsIncomplete reports whether err is a parse error that more input could fix.
func IsIncomplete(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.AtEOF
}

// RuntimeError is raised by the interpreter while evaluating a program.
type RuntimeError struct {
	Pos Pos
	Msg string
	Err error
}

func (e *RuntimeError) Error() string {
	if e.Pos.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("line %d: %s", e.Pos.Line, e.Msg)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// ErrCallDepth is wrapped by the runtime error raised when MaxCallDepth is exceeded.
var ErrCallDepth = errors.New("maximum call stack size exceeded")

func runtimeErrorf(pos Pos, format string, args ...any) error {
	return &RuntimeError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// locate attaches pos to a position-less runtime error produced by a builtin.
// Errors that are not *RuntimeError pass through untouched.
func locate(err error, pos Pos) error {
	var re *RuntimeError
	if errors.As(err, &re) && re.Pos.Line == 0 {
		re.Pos = pos
	}
	return err
}
