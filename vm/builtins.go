package vm

import (
	"fmt"
	"io"
)

// Builtins is the builtin function table. The order is the index used by
// OpGetBuiltin and by the compiler's DefineBuiltin calls; entries are only
// ever appended.
var Builtins = []struct {
	Name    string
	Builtin *Builtin
}{
	{"len", &Builtin{Name: "len", Fn: builtinLen}},
	{"puts", &Builtin{Name: "puts", Fn: builtinPuts}},
	{"first", &Builtin{Name: "first", Fn: builtinFirst}},
	{"last", &Builtin{Name: "last", Fn: builtinLast}},
	{"rest", &Builtin{Name: "rest", Fn: builtinRest}},
	{"push", &Builtin{Name: "push", Fn: builtinPush}},
}

// GetBuiltinByName returns the builtin with the given name, or nil.
func GetBuiltinByName(name string) *Builtin {
	for _, def := range Builtins {
		if def.Name == name {
			return def.Builtin
		}
	}
	return nil
}

func wrongArgCount(got, want int) *Error {
	return NewError("wrong number of arguments. got=%d, want=%d", got, want)
}

func builtinLen(out io.Writer, args ...Object) Object {
	if len(args) != 1 {
		return wrongArgCount(len(args), 1)
	}
	switch arg := args[0].(type) {
	case *Array:
		return Integer(len(arg.Elements))
	case String:
		return Integer(len(arg))
	default:
		return NewError("argument to `len` not supported, got %s", args[0].Type())
	}
}

func builtinPuts(out io.Writer, args ...Object) Object {
	for _, arg := range args {
		fmt.Fprintln(out, arg.Inspect())
	}
	return nil
}

func builtinFirst(out io.Writer, args ...Object) Object {
	if len(args) != 1 {
		return wrongArgCount(len(args), 1)
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return NewError("argument to `first` must be ARRAY, got %s", args[0].Type())
	}
	if len(arr.Elements) > 0 {
		return arr.Elements[0]
	}
	return nil
}

func builtinLast(out io.Writer, args ...Object) Object {
	if len(args) != 1 {
		return wrongArgCount(len(args), 1)
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return NewError("argument to `last` must be ARRAY, got %s", args[0].Type())
	}
	if n := len(arr.Elements); n > 0 {
		return arr.Elements[n-1]
	}
	return nil
}

func builtinRest(out io.Writer, args ...Object) Object {
	if len(args) != 1 {
		return wrongArgCount(len(args), 1)
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return NewError("argument to `rest` must be ARRAY, got %s", args[0].Type())
	}
	n := len(arr.Elements)
	if n == 0 {
		return nil
	}
	rest := make([]Object, n-1)
	copy(rest, arr.Elements[1:])
	return &Array{Elements: rest}
}

func builtinPush(out io.Writer, args ...Object) Object {
	if len(args) != 2 {
		return wrongArgCount(len(args), 2)
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return NewError("argument to `push` must be ARRAY, got %s", args[0].Type())
	}
	n := len(arr.Elements)
	elements := make([]Object, n+1)
	copy(elements, arr.Elements)
	elements[n] = args[1]
	return &Array{Elements: elements}
}
