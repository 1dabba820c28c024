// Package evaluator is a tree-walking interpreter for Monkey programs. It
// shares the parser and the runtime object model with the bytecode VM and
// serves as the reference engine the VM is checked against.
package evaluator

import (
	"fmt"
	"io"
	"os"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/vm"
)

// DefaultMaxDepth bounds nested function calls, matching the VM's frame
// limit.
const DefaultMaxDepth = vm.MaxFrames

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithOutput sets where builtins such as puts write. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(e *Evaluator) { e.out = w }
}

// WithMaxDepth sets the maximum call depth.
func WithMaxDepth(n int) Option {
	return func(e *Evaluator) { e.maxDepth = n }
}

// Evaluator evaluates AST nodes. It is not safe for concurrent use.
type Evaluator struct {
	out      io.Writer
	maxDepth int
	depth    int
}

// New creates an evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{out: os.Stdout, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Eval evaluates node in env with a default evaluator.
func Eval(node compiler.Node, env *Environment) vm.Object {
	return New().Eval(node, env)
}

// Eval evaluates node in env. Fatal errors (the ones that abort the VM) are
// returned as *vm.Error; a top-level return yields its value.
func (e *Evaluator) Eval(node compiler.Node, env *Environment) vm.Object {
	result, err := e.Run(node, env)
	if err != nil {
		return &vm.Error{Message: err.Error()}
	}
	return result
}

// Run evaluates node in env like Eval, but reports fatal errors as an
// *Error instead of a *vm.Error value.
func (e *Evaluator) Run(node compiler.Node, env *Environment) (vm.Object, error) {
	e.depth = 0
	switch result := e.eval(node, env).(type) {
	case *returnValue:
		return result.value, nil
	case *abort:
		return nil, &Error{Kind: result.kind, Msg: result.err.Message}
	case nil:
		return vm.Nil, nil
	default:
		return result, nil
	}
}

func fatal(kind error, format string, args ...interface{}) *abort {
	return &abort{kind: kind, err: vm.NewError("%s: %s", kind, fmt.Sprintf(format, args...))}
}

// stops reports whether obj ends the enclosing statement list.
func stops(obj vm.Object) bool {
	switch obj.(type) {
	case *returnValue, *abort:
		return true
	}
	return false
}

func isAbort(obj vm.Object) bool {
	_, ok := obj.(*abort)
	return ok
}

func (e *Evaluator) eval(node compiler.Node, env *Environment) vm.Object {
	switch node := node.(type) {
	// Statements
	case *compiler.Program:
		return e.evalStatements(node.Statements, env)

	case *compiler.BlockStatement:
		return e.evalStatements(node.Statements, env)

	case *compiler.ExpressionStatement:
		return e.eval(node.Expression, env)

	case *compiler.ReturnStatement:
		val := e.eval(node.ReturnValue, env)
		if isAbort(val) {
			return val
		}
		return &returnValue{value: val}

	case *compiler.LetStatement:
		val := e.eval(node.Value, env)
		if isAbort(val) {
			return val
		}
		env.Set(node.Name.Value, val)
		return vm.Nil

	// Expressions
	case *compiler.IntegerLiteral:
		return vm.Integer(node.Value)

	case *compiler.StringLiteral:
		return vm.String(node.Value)

	case *compiler.Boolean:
		return vm.NativeBool(node.Value)

	case *compiler.PrefixExpression:
		right := e.eval(node.Right, env)
		if isAbort(right) {
			return right
		}
		return evalPrefixExpression(node.Operator, right)

	case *compiler.InfixExpression:
		left := e.eval(node.Left, env)
		if isAbort(left) {
			return left
		}
		right := e.eval(node.Right, env)
		if isAbort(right) {
			return right
		}
		return evalInfixExpression(node.Operator, left, right)

	case *compiler.IfExpression:
		return e.evalIfExpression(node, env)

	case *compiler.Identifier:
		return evalIdentifier(node, env)

	case *compiler.FunctionLiteral:
		return &Function{Parameters: node.Parameters, Body: node.Body, Env: env, Name: node.Name}

	case *compiler.CallExpression:
		function := e.eval(node.Function, env)
		if isAbort(function) {
			return function
		}
		args := make([]vm.Object, 0, len(node.Arguments))
		for _, a := range node.Arguments {
			val := e.eval(a, env)
			if isAbort(val) {
				return val
			}
			args = append(args, val)
		}
		return e.applyFunction(function, args)

	case *compiler.ArrayLiteral:
		elements := make([]vm.Object, 0, len(node.Elements))
		for _, el := range node.Elements {
			val := e.eval(el, env)
			if isAbort(val) {
				return val
			}
			elements = append(elements, val)
		}
		return &vm.Array{Elements: elements}

	case *compiler.HashLiteral:
		return e.evalHashLiteral(node, env)

	case *compiler.IndexExpression:
		left := e.eval(node.Left, env)
		if isAbort(left) {
			return left
		}
		index := e.eval(node.Index, env)
		if isAbort(index) {
			return index
		}
		return evalIndexExpression(left, index)
	}

	return fatal(compiler.ErrUnsupportedNode, "%T", node)
}

func (e *Evaluator) evalStatements(stmts []compiler.Statement, env *Environment) vm.Object {
	var result vm.Object = vm.Nil
	for _, stmt := range stmts {
		result = e.eval(stmt, env)
		if stops(result) {
			return result
		}
	}
	return result
}

func evalPrefixExpression(operator string, right vm.Object) vm.Object {
	switch operator {
	case "!":
		return vm.NativeBool(!vm.IsTruthy(right))
	case "-":
		i, ok := right.(vm.Integer)
		if !ok {
			return fatal(vm.ErrTypeMismatch, "unsupported type for negation: %s", right.Type())
		}
		return -i
	default:
		return fatal(compiler.ErrUnknownOperator, "%s%s", operator, right.Type())
	}
}

func evalInfixExpression(operator string, left, right vm.Object) vm.Object {
	if l, ok := left.(vm.Integer); ok {
		if r, ok := right.(vm.Integer); ok {
			return evalIntegerInfixExpression(operator, l, r)
		}
	}

	switch operator {
	case "+":
		if l, ok := left.(vm.String); ok {
			if r, ok := right.(vm.String); ok {
				return l + r
			}
		}
		return fatal(vm.ErrTypeMismatch, "unsupported types for binary operation: %s %s", left.Type(), right.Type())
	case "-", "*", "/":
		return fatal(vm.ErrTypeMismatch, "unsupported types for binary operation: %s %s", left.Type(), right.Type())
	case "==":
		return vm.NativeBool(left == right)
	case "!=":
		return vm.NativeBool(left != right)
	case "<", ">":
		return fatal(vm.ErrTypeMismatch, "unknown operator: %s (%s %s)", operator, left.Type(), right.Type())
	default:
		return fatal(compiler.ErrUnknownOperator, "%s %s %s", left.Type(), operator, right.Type())
	}
}

func evalIntegerInfixExpression(operator string, left, right vm.Integer) vm.Object {
	switch operator {
	case "+":
		return left + right
	case "-":
		return left - right
	case "*":
		return left * right
	case "/":
		if right == 0 {
			return fatal(vm.ErrDivisionByZero, "%d / 0", left)
		}
		return left / right
	case "<":
		return vm.NativeBool(left < right)
	case ">":
		return vm.NativeBool(left > right)
	case "==":
		return vm.NativeBool(left == right)
	case "!=":
		return vm.NativeBool(left != right)
	default:
		return fatal(compiler.ErrUnknownOperator, "INTEGER %s INTEGER", operator)
	}
}

func (e *Evaluator) evalIfExpression(ie *compiler.IfExpression, env *Environment) vm.Object {
	condition := e.eval(ie.Condition, env)
	if isAbort(condition) {
		return condition
	}

	switch {
	case vm.IsTruthy(condition):
		return e.eval(ie.Consequence, env)
	case ie.Alternative != nil:
		return e.eval(ie.Alternative, env)
	default:
		return vm.Nil
	}
}

func evalIdentifier(node *compiler.Identifier, env *Environment) vm.Object {
	if val, ok := env.Get(node.Value); ok {
		return val
	}
	if builtin := vm.GetBuiltinByName(node.Value); builtin != nil {
		return builtin
	}
	return fatal(compiler.ErrUndefinedVariable, "%s", node.Value)
}

func (e *Evaluator) evalHashLiteral(node *compiler.HashLiteral, env *Environment) vm.Object {
	pairs := make(map[vm.HashKey]vm.HashPair, len(node.Pairs))
	for _, p := range node.Pairs {
		key := e.eval(p.Key, env)
		if isAbort(key) {
			return key
		}
		hashKey, ok := key.(vm.Hashable)
		if !ok {
			return fatal(vm.ErrUnhashable, "%s", key.Type())
		}
		value := e.eval(p.Value, env)
		if isAbort(value) {
			return value
		}
		pairs[hashKey.HashKey()] = vm.HashPair{Key: key, Value: value}
	}
	return &vm.Hash{Pairs: pairs}
}

func evalIndexExpression(left, index vm.Object) vm.Object {
	switch l := left.(type) {
	case *vm.Array:
		i, ok := index.(vm.Integer)
		if !ok {
			return fatal(vm.ErrTypeMismatch, "array index must be INTEGER, got %s", index.Type())
		}
		if i < 0 || int64(i) >= int64(len(l.Elements)) {
			return vm.Nil
		}
		return l.Elements[i]

	case *vm.Hash:
		key, ok := index.(vm.Hashable)
		if !ok {
			return fatal(vm.ErrUnhashable, "%s", index.Type())
		}
		pair, ok := l.Pairs[key.HashKey()]
		if !ok {
			return vm.Nil
		}
		return pair.Value

	default:
		return fatal(vm.ErrNotIndexable, "%s", left.Type())
	}
}

func (e *Evaluator) applyFunction(fn vm.Object, args []vm.Object) vm.Object {
	switch fn := fn.(type) {
	case *Function:
		if len(args) != len(fn.Parameters) {
			return fatal(vm.ErrArity, "want=%d, got=%d", len(fn.Parameters), len(args))
		}
		if e.depth >= e.maxDepth-1 {
			return fatal(vm.ErrFrameOverflow, "max depth %d", e.maxDepth)
		}

		env := NewEnclosedEnvironment(fn.Env)
		for i, param := range fn.Parameters {
			env.Set(param.Value, args[i])
		}

		e.depth++
		result := e.eval(fn.Body, env)
		e.depth--

		if rv, ok := result.(*returnValue); ok {
			return rv.value
		}
		return result

	case *vm.Builtin:
		if result := fn.Fn(e.out, args...); result != nil {
			return result
		}
		return vm.Nil

	default:
		return fatal(vm.ErrNotCallable, "%s", fn.Type())
	}
}
