package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/monkey/manifest"
)

// runCLI runs the CLI with the given options against a default manifest.
func runCLI(t *testing.T, o *options, m *manifest.Manifest, stdin string) (code int, stdout, stderr string) {
	t.Helper()
	if m == nil {
		m = manifest.Default()
	}
	if o.set == nil {
		o.set = map[string]bool{}
	}
	var out, errOut bytes.Buffer
	code = run(o, m, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---------------------------------------------------------------------------
// -e and files
// ---------------------------------------------------------------------------

func TestRun_Expression(t *testing.T) {
	tests := []struct {
		expr   string
		engine string
		want   string
	}{
		{"1 + 2", manifest.EngineVM, "3\n"},
		{"1 + 2", manifest.EngineEval, "3\n"},
		{`len("monkey")`, manifest.EngineVM, "6\n"},
		{`puts("hi"); [1, 2][1]`, manifest.EngineVM, "hi\n2\n"},
		{"let x = 1;", manifest.EngineVM, ""},
		{"let x = 1;", manifest.EngineEval, ""},
	}

	for _, tc := range tests {
		m := manifest.Default()
		m.VM.Engine = tc.engine
		code, stdout, stderr := runCLI(t, &options{expr: tc.expr}, m, "")
		if code != 0 {
			t.Errorf("[%s] -e %q exit = %d, stderr %q", tc.engine, tc.expr, code, stderr)
			continue
		}
		if stdout != tc.want {
			t.Errorf("[%s] -e %q stdout = %q, want %q", tc.engine, tc.expr, stdout, tc.want)
		}
	}
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 / 0", "Error: -e: division by zero"},
		{"missing", "Error: -e: compile error at 1:1: undefined variable missing"},
		{"let = 1", "Error: -e: parse errors"},
	}

	for _, tc := range tests {
		code, stdout, stderr := runCLI(t, &options{expr: tc.expr}, nil, "")
		if code != 1 {
			t.Errorf("-e %q exit = %d, want 1", tc.expr, code)
		}
		if stdout != "" {
			t.Errorf("-e %q stdout = %q, want nothing", tc.expr, stdout)
		}
		if !strings.HasPrefix(stderr, tc.want) {
			t.Errorf("-e %q stderr = %q, want prefix %q", tc.expr, stderr, tc.want)
		}
	}
}

func TestRun_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.monkey", `
// prints the tenth Fibonacci number
let fib = fn(n) { if (n < 2) { n } else { fib(n - 1) + fib(n - 2) } };
puts(fib(10));
fib(10);
`)

	code, stdout, stderr := runCLI(t, &options{file: path}, nil, "")
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, stderr)
	}
	// Files only print what puts writes.
	if stdout != "55\n" {
		t.Errorf("stdout = %q, want %q", stdout, "55\n")
	}

	code, _, stderr = runCLI(t, &options{file: filepath.Join(dir, "nope.monkey")}, nil, "")
	if code != 1 || !strings.HasPrefix(stderr, "Error: ") {
		t.Errorf("missing file: exit = %d, stderr %q", code, stderr)
	}
}

func TestRun_ManifestEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, manifest.FileName, "[project]\nname = \"demo\"\nentry = \"main.monkey\"\n")
	writeFile(t, dir, "main.monkey", `puts("from entry")`)

	m, err := loadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	code, stdout, stderr := runCLI(t, &options{}, m, "")
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, stderr)
	}
	if stdout != "from entry\n" {
		t.Errorf("stdout = %q, want %q", stdout, "from entry\n")
	}
}

func TestRun_Disassemble(t *testing.T) {
	code, stdout, stderr := runCLI(t, &options{expr: "1 + 2", disassemble: true}, nil, "")
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, stderr)
	}
	for _, want := range []string{"OpConstant 0", "OpConstant 1", "OpAdd", "OpPop"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("disassembly missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "\n3\n") {
		t.Errorf("-d should not run the program:\n%s", stdout)
	}
}

func TestRun_TraceAndProfile(t *testing.T) {
	m := manifest.Default()
	m.VM.Trace = true
	code, stdout, stderr := runCLI(t, &options{expr: "1 + 2", profile: true}, m, "")
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, stderr)
	}
	if stdout != "3\n" {
		t.Errorf("stdout = %q, want 3", stdout)
	}
	if !strings.Contains(stderr, "OpAdd") {
		t.Errorf("trace missing OpAdd:\n%s", stderr)
	}
	if !strings.Contains(stderr, "instructions") {
		t.Errorf("profile report missing:\n%s", stderr)
	}
}

// ---------------------------------------------------------------------------
// Flags over manifest
// ---------------------------------------------------------------------------

func TestOptionsApply(t *testing.T) {
	m := manifest.Default()
	o := &options{
		engine:    manifest.EngineEval,
		port:      8080,
		verbosity: 2,
		trace:     true,
		set:       map[string]bool{"engine": true, "port": true, "v": true},
	}
	if err := o.apply(m); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if m.VM.Engine != manifest.EngineEval {
		t.Errorf("Engine = %q, want eval", m.VM.Engine)
	}
	if m.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", m.Server.Addr)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("Verbosity = %d, want 2", m.Log.Verbosity)
	}
	if m.VM.Trace {
		t.Error("trace was not given explicitly but overrode the manifest")
	}

	bad := &options{engine: "jit", set: map[string]bool{"engine": true}}
	if err := bad.apply(manifest.Default()); err == nil || !strings.Contains(err.Error(), "vm.engine") {
		t.Errorf("apply(engine=jit) error = %v, want vm.engine", err)
	}
}

// ---------------------------------------------------------------------------
// REPL
// ---------------------------------------------------------------------------

func TestREPL_KeepsState(t *testing.T) {
	input := strings.Join([]string{
		"let a = 5;",
		"let add = fn(x) {",
		"  x + a",
		"}",
		"add(1)",
		"exit",
		"add(100)",
	}, "\n")

	code, stdout, _ := runCLI(t, &options{interactive: true}, nil, input)
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stdout, ".. ") {
		t.Errorf("no continuation prompt for the open brace:\n%s", stdout)
	}
	if !strings.Contains(stdout, "\n6\n") && !strings.Contains(stdout, ">> 6\n") {
		t.Errorf("add(1) result missing:\n%s", stdout)
	}
	if strings.Contains(stdout, "105") {
		t.Errorf("input after exit was evaluated:\n%s", stdout)
	}
}

func TestREPL_ErrorsDoNotEndSession(t *testing.T) {
	code, stdout, _ := runCLI(t, &options{}, nil, "nope\n40 + 2\n")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stdout, "Error: compile error at 1:1: undefined variable nope") {
		t.Errorf("error missing:\n%s", stdout)
	}
	if !strings.Contains(stdout, "42\n") {
		t.Errorf("evaluation after error missing:\n%s", stdout)
	}
}

func TestREPL_Commands(t *testing.T) {
	input := strings.Join([]string{
		":engine",
		":dis let q = 1; q",
		"q",
		":engine eval",
		"let b = 2; b * 3",
		":engine jit",
		":reset",
		":bogus",
	}, "\n")

	_, stdout, _ := runCLI(t, &options{}, nil, input)
	for _, want := range []string{
		"Current engine: vm",
		"Switched to eval engine",
		"6\n",
		"Unknown engine: jit",
		"OpSetGlobal",
		"Error: compile error at 1:1: undefined variable q",
		"State cleared",
		"Unknown command: :bogus",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("REPL output missing %q:\n%s", want, stdout)
		}
	}
}

func TestNeedsMore(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"1 + 2", false},
		{"fn(x) {", true},
		{"fn(x) {\n x\n}", false},
		{"[1, 2,", true},
		{"add(1,", true},
		{`"{"`, false},
		{"}", false},
	}
	for _, tc := range tests {
		if got := needsMore(tc.input); got != tc.want {
			t.Errorf("needsMore(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
