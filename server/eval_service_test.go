package server

import (
	"strings"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ---------------------------------------------------------------------------
// Evaluate: happy paths
// ---------------------------------------------------------------------------

func TestEvaluate_Results(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		source   string
		wantType string
		want     string
	}{
		{"42", "INTEGER", "42"},
		{"3 + 4 * 2", "INTEGER", "11"},
		{`"mon" + "key"`, "STRING", "monkey"},
		{"1 < 2", "BOOLEAN", "true"},
		{"if (false) { 1 }", "NULL", "null"},
		{"[1, 2, 3]", "ARRAY", "[1, 2, 3]"},
		{`{"b": 2, "a": 1}`, "HASH", "{a: 1, b: 2}"},
		{"len(1)", "ERROR", "ERROR: argument to `len` not supported, got INTEGER"},
		{"let fib = fn(n) { if (n < 2) { n } else { fib(n - 1) + fib(n - 2) } }; fib(15)", "INTEGER", "610"},
	}

	for _, engine := range []string{"", "vm", "eval"} {
		for _, tc := range tests {
			resp := env.evaluate(t, &EvaluateRequest{Source: tc.source, Engine: engine})
			if !resp.Success {
				t.Errorf("[%s] %q failed: %s", engine, tc.source, resp.ErrorMessage)
				continue
			}
			if resp.Type != tc.wantType || resp.Result != tc.want {
				t.Errorf("[%s] %q = %s (%s), want %s (%s)", engine, tc.source, resp.Result, resp.Type, tc.want, tc.wantType)
			}
		}
	}
}

func TestEvaluate_CapturesOutput(t *testing.T) {
	env := newTestEnv(t)

	for _, engine := range []string{"vm", "eval"} {
		resp := env.evaluate(t, &EvaluateRequest{Source: `puts("hi", 1 + 1); 5`, Engine: engine})
		if !resp.Success {
			t.Fatalf("[%s] failed: %s", engine, resp.ErrorMessage)
		}
		if resp.Output != "hi\n2\n" {
			t.Errorf("[%s] Output = %q, want %q", engine, resp.Output, "hi\n2\n")
		}
		if resp.Result != "5" {
			t.Errorf("[%s] Result = %q, want 5", engine, resp.Result)
		}
	}
}

// ---------------------------------------------------------------------------
// Evaluate: program failures are responses, not transport errors
// ---------------------------------------------------------------------------

func TestEvaluate_ProgramFailures(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		source string
		engine string
		want   string
	}{
		{"let = 5", "vm", "parse errors"},
		{"foobar", "vm", "undefined variable"},
		{"foobar", "eval", "undefined variable: foobar"},
		{"1 / 0", "vm", "division by zero"},
		{"1 / 0", "eval", "division by zero: 1 / 0"},
		{"let f = fn(n) { f(n + 1) }; f(0)", "vm", "frame overflow"},
		{"let f = fn(n) { f(n + 1) }; f(0)", "eval", "frame overflow"},
	}

	for _, tc := range tests {
		resp := env.evaluate(t, &EvaluateRequest{Source: tc.source, Engine: tc.engine})
		if resp.Success {
			t.Errorf("[%s] %q succeeded with %s, want failure", tc.engine, tc.source, resp.Result)
			continue
		}
		if !strings.Contains(resp.ErrorMessage, tc.want) {
			t.Errorf("[%s] %q error = %q, want it to contain %q", tc.engine, tc.source, resp.ErrorMessage, tc.want)
		}
	}
}

func TestEvaluate_InvalidArguments(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		req  *EvaluateRequest
		code connect.Code
	}{
		{&EvaluateRequest{}, connect.CodeInvalidArgument},
		{&EvaluateRequest{Source: "1", Engine: "jit"}, connect.CodeInvalidArgument},
		{&EvaluateRequest{Source: "1", SessionID: "no-such-session"}, connect.CodeNotFound},
	}

	for _, tc := range tests {
		_, err := env.Eval.Evaluate(bg(), connectReq(tc.req))
		if err == nil {
			t.Errorf("Evaluate(%+v) succeeded, want %v", tc.req, tc.code)
			continue
		}
		if connect.CodeOf(err) != tc.code {
			t.Errorf("Evaluate(%+v) code = %v, want %v", tc.req, connect.CodeOf(err), tc.code)
		}
	}
}

// ---------------------------------------------------------------------------
// Evaluate: sessions keep definitions
// ---------------------------------------------------------------------------

func TestEvaluate_SessionState(t *testing.T) {
	env := newTestEnv(t)
	session := env.Sessions.Create("repl")

	for _, engine := range []string{"vm", "eval"} {
		steps := []struct {
			source string
			want   string
		}{
			{"let a = 5;", ""},
			{"let add = fn(x) { x + a };", ""},
			{"add(10)", "15"},
			{"let a = 1; add(5) + a", ""},
		}
		for _, step := range steps {
			resp := env.evaluate(t, &EvaluateRequest{Source: step.source, SessionID: session.ID, Engine: engine})
			if !resp.Success {
				t.Fatalf("[%s] %q failed: %s", engine, step.source, resp.ErrorMessage)
			}
			if step.want != "" && resp.Result != step.want {
				t.Errorf("[%s] %q = %s, want %s", engine, step.source, resp.Result, step.want)
			}
		}
	}
}

func TestEvaluate_EphemeralSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t)

	if resp := env.evaluate(t, &EvaluateRequest{Source: "let x = 1; x"}); !resp.Success {
		t.Fatalf("first evaluation failed: %s", resp.ErrorMessage)
	}
	resp := env.evaluate(t, &EvaluateRequest{Source: "x"})
	if resp.Success {
		t.Errorf("x resolved to %s in a fresh session", resp.Result)
	}
}

func TestEvaluate_RecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	session := env.Sessions.Create("")

	env.evaluate(t, &EvaluateRequest{Source: "1 + 1", SessionID: session.ID})
	env.evaluate(t, &EvaluateRequest{Source: "1 / 0", SessionID: session.ID})
	env.evaluate(t, &EvaluateRequest{Source: "99"}) // ephemeral: not recorded

	entries, err := env.History.List(bg(), session.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Source != "1 / 0" || entries[0].Success {
		t.Errorf("newest entry = %+v, want failed 1 / 0", entries[0])
	}
	if entries[1].Source != "1 + 1" || entries[1].Result != "2" || !entries[1].Success {
		t.Errorf("oldest entry = %+v, want 1 + 1 = 2", entries[1])
	}
}

// ---------------------------------------------------------------------------
// CheckSyntax
// ---------------------------------------------------------------------------

func TestCheckSyntax(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		source    string
		valid     bool
		wantLines []int
	}{
		{"let x = 5; x * 2", true, nil},
		{"let x 5;\nlet y = 10;\nlet z 1;", false, []int{1, 3}},
		{"let x = 1;\ny + x", false, []int{2}},
	}

	for _, tc := range tests {
		resp, err := env.Eval.CheckSyntax(bg(), connectReq(&CheckSyntaxRequest{Source: tc.source}))
		if err != nil {
			t.Fatalf("CheckSyntax(%q) returned error: %v", tc.source, err)
		}
		if resp.Msg.Valid != tc.valid {
			t.Errorf("CheckSyntax(%q).Valid = %v, want %v", tc.source, resp.Msg.Valid, tc.valid)
		}
		if len(resp.Msg.Diagnostics) != len(tc.wantLines) {
			t.Errorf("CheckSyntax(%q) diagnostics = %d, want %d", tc.source, len(resp.Msg.Diagnostics), len(tc.wantLines))
			continue
		}
		for i, d := range resp.Msg.Diagnostics {
			if d.Line != tc.wantLines[i] {
				t.Errorf("CheckSyntax(%q) diagnostic %d line = %d, want %d", tc.source, i, d.Line, tc.wantLines[i])
			}
			if d.Message == "" {
				t.Errorf("CheckSyntax(%q) diagnostic %d has no message", tc.source, i)
			}
		}
	}
}

func TestCheckSyntax_EmptySource(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Eval.CheckSyntax(bg(), connectReq(&CheckSyntaxRequest{}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("CheckSyntax(\"\") code = %v, want invalid_argument", connect.CodeOf(err))
	}
}

// ---------------------------------------------------------------------------
// Disassemble
// ---------------------------------------------------------------------------

func TestDisassemble(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.Eval.Disassemble(bg(), connectReq(wrapperspb.String("let f = fn(a) { a + 1 }; f(2)")))
	if err != nil {
		t.Fatalf("Disassemble returned error: %v", err)
	}
	text := resp.Msg.GetValue()
	for _, want := range []string{"OpClosure", "OpCall 1", "OpReturnValue", "; Function [1] f params=1"} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly missing %q:\n%s", want, text)
		}
	}

	_, err = env.Eval.Disassemble(bg(), connectReq(wrapperspb.String("missing")))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("Disassemble(missing) code = %v, want invalid_argument", connect.CodeOf(err))
	}
}
