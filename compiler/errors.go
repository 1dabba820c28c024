package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Compile error kinds. An *Error wraps one of these.
var (
	ErrUnknownOperator   = errors.New("unknown operator")
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrUnsupportedNode   = errors.New("unsupported node")
)

// Error is a compile failure at a source position.
type Error struct {
	Pos Position
	Msg string
	Err error // one of the Err* sentinels
}

func (e *Error) Error() string {
	if e.Pos.Line == 0 {
		return fmt.Sprintf("compile error: %s", e.Msg)
	}
	return fmt.Sprintf("compile error at %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ParseError is one syntax error reported by the parser.
type ParseError struct {
	Pos Position
	Msg string
}

func (e ParseError) String() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// ParseErrors is the list of syntax errors for one source text.
type ParseErrors []ParseError

func (e ParseErrors) Error() string {
	lines := make([]string, len(e))
	for i, pe := range e {
		lines[i] = pe.String()
	}
	return "parse errors:\n\t" + strings.Join(lines, "\n\t")
}
