package vm

import (
	"errors"
	"fmt"
)

// Fatal error kinds. A RuntimeError wraps exactly one of these, so callers
// can test with errors.Is.
var (
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrFrameOverflow  = errors.New("frame overflow")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrArity          = errors.New("wrong number of arguments")
	ErrNotCallable    = errors.New("calling non-function")
	ErrDivisionByZero = errors.New("division by zero")
	ErrNotIndexable   = errors.New("index operator not supported")
	ErrUnhashable     = errors.New("unusable as hash key")
	ErrBadOperand     = errors.New("operand out of range")
	ErrHalted         = errors.New("vm halted by previous error")
)

// RuntimeError is a fatal VM failure. The run that produced it is abandoned.
type RuntimeError struct {
	Kind error  // one of the Err* sentinels
	Op   Opcode // instruction being executed
	IP   int    // offset of that instruction in its frame
	Msg  string // detail
}

func (e *RuntimeError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s (%s at %04d)", e.Kind, e.Op, e.IP)
	}
	return fmt.Sprintf("%s: %s (%s at %04d)", e.Kind, e.Msg, e.Op, e.IP)
}

func (e *RuntimeError) Unwrap() error {
	return e.Kind
}
