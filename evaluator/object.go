package evaluator

import (
	"bytes"
	"strings"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/vm"
)

// FunctionObj is the type of evaluator closures.
const FunctionObj vm.ObjectType = "FUNCTION"

// Function is a function literal closed over its defining environment.
type Function struct {
	Parameters []*compiler.Identifier
	Body       *compiler.BlockStatement
	Env        *Environment
	Name       string
}

func (f *Function) Type() vm.ObjectType { return FunctionObj }
func (f *Function) Inspect() string {
	params := make([]string, len(f.Parameters))
	for i, p := range f.Parameters {
		params[i] = p.String()
	}
	var out bytes.Buffer
	out.WriteString("fn(")
	out.WriteString(strings.Join(params, ", "))
	out.WriteString(") {\n")
	out.WriteString(f.Body.String())
	out.WriteString("\n}")
	return out.String()
}

// returnValue carries a return statement's value up to the enclosing call.
type returnValue struct {
	value vm.Object
}

func (r *returnValue) Type() vm.ObjectType { return "RETURN_VALUE" }
func (r *returnValue) Inspect() string     { return r.value.Inspect() }

// abort carries a fatal error up to Eval. Unlike *vm.Error values produced
// by builtins, an abort stops evaluation.
type abort struct {
	kind error
	err  *vm.Error
}

func (a *abort) Type() vm.ObjectType { return vm.ErrorObj }
func (a *abort) Inspect() string     { return a.err.Inspect() }

// Error is a fatal evaluation error returned by Run.
type Error struct {
	Kind error // one of the vm.Err* or compiler.Err* sentinels
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}
