package vm

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// ---------------------------------------------------------------------------
// Object: runtime values
// ---------------------------------------------------------------------------

// ObjectType tags the variant of a runtime object.
type ObjectType string

const (
	IntegerObj          ObjectType = "INTEGER"
	BooleanObj          ObjectType = "BOOLEAN"
	NullObj             ObjectType = "NULL"
	StringObj           ObjectType = "STRING"
	ArrayObj            ObjectType = "ARRAY"
	HashObj             ObjectType = "HASH"
	ErrorObj            ObjectType = "ERROR"
	CompiledFunctionObj ObjectType = "COMPILED_FUNCTION"
	ClosureObj          ObjectType = "CLOSURE"
	BuiltinObj          ObjectType = "BUILTIN"
)

// Object is implemented by every runtime value. Values are immutable once
// constructed.
type Object interface {
	Type() ObjectType
	Inspect() string
}

// Integer is a 64-bit signed integer.
type Integer int64

func (i Integer) Type() ObjectType { return IntegerObj }
func (i Integer) Inspect() string  { return strconv.FormatInt(int64(i), 10) }

// Boolean is true or false. The True and False values are the only
// instances; comparison is plain value equality.
type Boolean bool

func (b Boolean) Type() ObjectType { return BooleanObj }
func (b Boolean) Inspect() string  { return strconv.FormatBool(bool(b)) }

// Null is the absence of a value.
type Null struct{}

func (Null) Type() ObjectType { return NullObj }
func (Null) Inspect() string  { return "null" }

// Well-known singletons.
var (
	True  Object = Boolean(true)
	False Object = Boolean(false)
	Nil   Object = Null{}
)

// NativeBool converts a Go bool to True or False.
func NativeBool(b bool) Object {
	if b {
		return True
	}
	return False
}

// IsTruthy reports whether obj counts as true in a condition. Only null and
// false are falsy; integer zero is truthy.
func IsTruthy(obj Object) bool {
	switch o := obj.(type) {
	case Boolean:
		return bool(o)
	case Null:
		return false
	default:
		return true
	}
}

// String is an immutable string value.
type String string

func (s String) Type() ObjectType { return StringObj }
func (s String) Inspect() string  { return string(s) }

// Array is an ordered sequence of objects.
type Array struct {
	Elements []Object
}

func (a *Array) Type() ObjectType { return ArrayObj }
func (a *Array) Inspect() string {
	elements := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		elements[i] = e.Inspect()
	}
	return "[" + strings.Join(elements, ", ") + "]"
}

// Error carries a language-level error message. Errors are ordinary values
// and never abort execution.
type Error struct {
	Message string
}

func (e *Error) Type() ObjectType { return ErrorObj }
func (e *Error) Inspect() string  { return "ERROR: " + e.Message }

// NewError builds an Error from a format string.
func NewError(format string, a ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, a...)}
}

// ---------------------------------------------------------------------------
// Hashing
// ---------------------------------------------------------------------------

// HashKey identifies a hashable value by type tag and 64-bit digest.
type HashKey struct {
	Type  ObjectType
	Value uint64
}

// Hashable is implemented by objects usable as hash keys.
type Hashable interface {
	Object
	HashKey() HashKey
}

func (i Integer) HashKey() HashKey {
	return HashKey{Type: IntegerObj, Value: uint64(i)}
}

func (b Boolean) HashKey() HashKey {
	var v uint64
	if b {
		v = 1
	}
	return HashKey{Type: BooleanObj, Value: v}
}

func (s String) HashKey() HashKey {
	return HashKey{Type: StringObj, Value: xxh3.HashString(string(s))}
}

// HashPair keeps the original key next to its value for rendering.
type HashPair struct {
	Key   Object
	Value Object
}

// Hash maps hashable keys to values.
type Hash struct {
	Pairs map[HashKey]HashPair
}

func (h *Hash) Type() ObjectType { return HashObj }
func (h *Hash) Inspect() string {
	pairs := make([]string, 0, len(h.Pairs))
	for _, pair := range h.Pairs {
		pairs = append(pairs, pair.Key.Inspect()+": "+pair.Value.Inspect())
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ", ") + "}"
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// CompiledFunction is the output of compiling a function literal.
type CompiledFunction struct {
	Instructions  Instructions
	NumLocals     int
	NumParameters int
	Name          string // let-bound name, if any
}

func (cf *CompiledFunction) Type() ObjectType { return CompiledFunctionObj }
func (cf *CompiledFunction) Inspect() string {
	if cf.Name != "" {
		return fmt.Sprintf("CompiledFunction<%s>[%p]", cf.Name, cf)
	}
	return fmt.Sprintf("CompiledFunction[%p]", cf)
}

// Closure pairs a compiled function with the values of its free variables,
// captured when the closure was created.
type Closure struct {
	Fn   *CompiledFunction
	Free []Object
}

func (c *Closure) Type() ObjectType { return ClosureObj }
func (c *Closure) Inspect() string {
	return fmt.Sprintf("Closure[%p]", c)
}

// BuiltinFunction is the signature of native functions. Output produced by
// the builtin goes to out. A nil result is treated as null.
type BuiltinFunction func(out io.Writer, args ...Object) Object

// Builtin wraps a native function.
type Builtin struct {
	Name string
	Fn   BuiltinFunction
}

func (b *Builtin) Type() ObjectType { return BuiltinObj }
func (b *Builtin) Inspect() string  { return "builtin function " + b.Name }
