package evaluator

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/vm"
)

func testEval(t *testing.T, input string) vm.Object {
	t.Helper()
	program, err := compiler.Parse(input)
	if err != nil {
		t.Fatalf("%q: %v", input, err)
	}
	return New(WithOutput(&bytes.Buffer{})).Eval(program, NewEnvironment())
}

func TestEvalExpressions(t *testing.T) {
	tests := []struct {
		input string
		want  vm.Object
	}{
		{"5", vm.Integer(5)},
		{"-10", vm.Integer(-10)},
		{"2 * (5 + 10)", vm.Integer(30)},
		{"(5 + 10 * 2 + 15 / 3) * 2 + -10", vm.Integer(50)},
		{"true", vm.True},
		{"1 < 2", vm.True},
		{"1 > 2", vm.False},
		{"(1 < 2) == true", vm.True},
		{"!5", vm.False},
		{"!!5", vm.True},
		{`"Hello" + " " + "World!"`, vm.String("Hello World!")},
		{`"a" == "a"`, vm.True},
		{"1 == true", vm.False},
		{"if (1 < 2) { 10 } else { 20 }", vm.Integer(10)},
		{"if (false) { 10 }", vm.Nil},
		{"if (true) { }", vm.Nil},
		{"if (true) { let x = 1; }", vm.Nil},
		{"let a = 5; let b = a; let c = a + b + 5; c;", vm.Integer(15)},
		{"[1, 2, 3][3]", vm.Nil},
		{"[1, 2, 3][-1]", vm.Nil},
		{`{"foo": 5}["foo"]`, vm.Integer(5)},
		{`{"foo": 5}["bar"]`, vm.Nil},
		{`{true: 5}[true]`, vm.Integer(5)},
		{"let x = 1;", vm.Nil},
	}

	for _, tc := range tests {
		got := testEval(t, tc.input)
		if got != tc.want {
			t.Errorf("Eval(%q) = %s, want %s", tc.input, got.Inspect(), tc.want.Inspect())
		}
	}
}

func TestEvalReturnStatements(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"return 10;", 10},
		{"return 10; 9;", 10},
		{"return 2 * 5; 9;", 10},
		{"9; return 2 * 5; 9;", 10},
		{"if (10 > 1) { if (10 > 1) { return 10; } return 1; }", 10},
		{"let f = fn(x) { return x; x + 10; }; f(10);", 10},
		{"let f = fn(x) { let result = x + 10; return result; return 10; }; f(10);", 20},
	}

	for _, tc := range tests {
		if got := testEval(t, tc.input); got != vm.Integer(tc.want) {
			t.Errorf("Eval(%q) = %s, want %d", tc.input, got.Inspect(), tc.want)
		}
	}
}

func TestEvalFatalErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"5 + true;", "type mismatch: unsupported types for binary operation: INTEGER BOOLEAN"},
		{"5 + true; 5;", "type mismatch: unsupported types for binary operation: INTEGER BOOLEAN"},
		{"-true", "type mismatch: unsupported type for negation: BOOLEAN"},
		{"if (10 > 1) { true + false; }", "type mismatch: unsupported types for binary operation: BOOLEAN BOOLEAN"},
		{"foobar", "undefined variable: foobar"},
		{`"a" - "b"`, "type mismatch: unsupported types for binary operation: STRING STRING"},
		{`{"name": "Monkey"}[fn(x) { x }];`, "unusable as hash key: FUNCTION"},
		{`{[1]: 2}`, "unusable as hash key: ARRAY"},
		{"1 / 0", "division by zero: 1 / 0"},
		{"1()", "calling non-function: INTEGER"},
		{"1[0]", "index operator not supported: INTEGER"},
		{"fn(a) { a }()", "wrong number of arguments: want=1, got=0"},
	}

	for _, tc := range tests {
		got := testEval(t, tc.input)
		errObj, ok := got.(*vm.Error)
		if !ok {
			t.Errorf("Eval(%q) = %T (%s), want *vm.Error", tc.input, got, got.Inspect())
			continue
		}
		if errObj.Message != tc.want {
			t.Errorf("Eval(%q) message = %q, want %q", tc.input, errObj.Message, tc.want)
		}
	}
}

// Builtin misuse yields an error value but evaluation continues.
func TestEvalBuiltinErrorIsAValue(t *testing.T) {
	if got := testEval(t, "let x = len(1); 5"); got != vm.Integer(5) {
		t.Errorf("Eval = %s, want 5", got.Inspect())
	}
	got := testEval(t, "len(1)")
	if e, ok := got.(*vm.Error); !ok || e.Message != "argument to `len` not supported, got INTEGER" {
		t.Errorf("Eval(len(1)) = %s", got.Inspect())
	}
}

func TestEvalFunctions(t *testing.T) {
	fn, ok := testEval(t, "fn(x) { x + 2; };").(*Function)
	if !ok {
		t.Fatal("function literal did not evaluate to *Function")
	}
	if len(fn.Parameters) != 1 || fn.Parameters[0].String() != "x" {
		t.Errorf("parameters = %v", fn.Parameters)
	}
	if fn.Body.String() != "(x + 2)" {
		t.Errorf("body = %q", fn.Body.String())
	}

	tests := []struct {
		input string
		want  int64
	}{
		{"let identity = fn(x) { x; }; identity(5);", 5},
		{"let double = fn(x) { x * 2; }; double(5);", 10},
		{"let add = fn(x, y) { x + y; }; add(5 + 5, add(5, 5));", 20},
		{"fn(x) { x; }(5)", 5},
		{"let newAdder = fn(x) { fn(y) { x + y }; }; let addTwo = newAdder(2); addTwo(3);", 5},
		{"let fib = fn(n) { if (n < 2) { return n; } fib(n - 1) + fib(n - 2) }; fib(10)", 55},
	}
	for _, tc := range tests {
		if got := testEval(t, tc.input); got != vm.Integer(tc.want) {
			t.Errorf("Eval(%q) = %s, want %d", tc.input, got.Inspect(), tc.want)
		}
	}
}

func TestEvalMaxDepth(t *testing.T) {
	program, err := compiler.Parse("let f = fn(n) { f(n + 1) }; f(0)")
	if err != nil {
		t.Fatal(err)
	}
	got := New(WithMaxDepth(50)).Eval(program, NewEnvironment())
	errObj, ok := got.(*vm.Error)
	if !ok || !strings.HasPrefix(errObj.Message, "frame overflow") {
		t.Errorf("Eval = %s, want frame overflow", got.Inspect())
	}
}

func TestEvalPutsOutput(t *testing.T) {
	program, err := compiler.Parse(`puts("hello"); puts(1, [2])`)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if got := New(WithOutput(&out)).Eval(program, NewEnvironment()); got != vm.Nil {
		t.Errorf("puts returned %s", got.Inspect())
	}
	if out.String() != "hello\n1\n[2]\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestEnvironmentPersists(t *testing.T) {
	env := NewEnvironment()
	e := New()
	for _, input := range []string{"let a = 2;", "let double = fn(x) { x * a };"} {
		program, err := compiler.Parse(input)
		if err != nil {
			t.Fatal(err)
		}
		e.Eval(program, env)
	}
	program, _ := compiler.Parse("double(21)")
	if got := e.Eval(program, env); got != vm.Integer(42) {
		t.Errorf("double(21) = %s, want 42", got.Inspect())
	}
}

func TestRunReportsFatalErrors(t *testing.T) {
	program, err := compiler.Parse("let x = 1; x / 0")
	if err != nil {
		t.Fatal(err)
	}
	_, err = New().Run(program, NewEnvironment())
	if !errors.Is(err, vm.ErrDivisionByZero) {
		t.Fatalf("Run error = %v, want division by zero", err)
	}
	if err.Error() != "division by zero: 1 / 0" {
		t.Errorf("Run error = %q", err.Error())
	}

	program, _ = compiler.Parse("len(1)")
	got, err := New().Run(program, NewEnvironment())
	if err != nil {
		t.Fatalf("Run(len(1)) error = %v, want an error value", err)
	}
	if got.Type() != vm.ErrorObj {
		t.Errorf("Run(len(1)) = %s, want ERROR", got.Type())
	}
}
