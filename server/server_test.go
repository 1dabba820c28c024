package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// startServer runs a MonkeyServer behind an httptest listener.
func startServer(t *testing.T) (*MonkeyServer, *httptest.Server) {
	t.Helper()

	history, err := OpenHistory(":memory:")
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	srv := New(WithHistory(history), WithGlobalsSize(1024), WithMaxFrames(128))
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return srv, ts
}

func TestServer_ConnectClient(t *testing.T) {
	srv, ts := startServer(t)
	client := NewClient(ts.Client(), ts.URL)
	ctx := bg()

	id, err := client.CreateSession(ctx, "e2e")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if srv.Sessions().Len() != 1 {
		t.Errorf("Sessions().Len() = %d, want 1", srv.Sessions().Len())
	}

	if _, err := client.Evaluate(ctx, &EvaluateRequest{Source: "let double = fn(x) { x * 2 };", SessionID: id}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	resp, err := client.Evaluate(ctx, &EvaluateRequest{Source: "double(21)", SessionID: id})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !resp.Success || resp.Result != "42" || resp.Type != "INTEGER" {
		t.Errorf("double(21) = %+v, want 42", resp)
	}

	check, err := client.CheckSyntax(ctx, "let = 1")
	if err != nil {
		t.Fatalf("CheckSyntax: %v", err)
	}
	if check.Valid || len(check.Diagnostics) == 0 {
		t.Errorf("CheckSyntax(let = 1) = %+v, want diagnostics", check)
	}

	text, err := client.Disassemble(ctx, "1 + 2")
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !strings.Contains(text, "OpAdd") {
		t.Errorf("disassembly missing OpAdd:\n%s", text)
	}

	entries, err := client.History(ctx, id, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 || entries[0].Source != "double(21)" {
		t.Errorf("History = %+v, want two entries, newest double(21)", entries)
	}

	if err := client.DestroySession(ctx, id); err != nil {
		t.Fatalf("DestroySession: %v", err)
	}
	_, err = client.Evaluate(ctx, &EvaluateRequest{Source: "1", SessionID: id})
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("Evaluate on destroyed session code = %v, want not_found", connect.CodeOf(err))
	}
}

func TestServer_GRPCClient(t *testing.T) {
	_, ts := startServer(t)

	client, err := DialGRPC(ts.Listener.Addr().String())
	if err != nil {
		t.Fatalf("DialGRPC: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(bg(), 5*time.Second)
	defer cancel()

	id, err := client.CreateSession(ctx, "grpc")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := client.Evaluate(ctx, &EvaluateRequest{Source: "let xs = [1, 2, 3];", SessionID: id}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	resp, err := client.Evaluate(ctx, &EvaluateRequest{Source: "push(xs, len(xs))", SessionID: id, Engine: "vm"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if resp.Result != "[1, 2, 3, 3]" {
		t.Errorf("push(xs, len(xs)) = %q, want [1, 2, 3, 3]", resp.Result)
	}

	check, err := client.CheckSyntax(ctx, "if (true) { 1 }")
	if err != nil {
		t.Fatalf("CheckSyntax: %v", err)
	}
	if !check.Valid {
		t.Errorf("CheckSyntax = %+v, want valid", check)
	}

	text, err := client.Disassemble(ctx, `"a" + "b"`)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !strings.Contains(text, "OpConstant") {
		t.Errorf("disassembly missing OpConstant:\n%s", text)
	}

	if err := client.DestroySession(ctx, id); err != nil {
		t.Fatalf("DestroySession: %v", err)
	}
	err = client.DestroySession(ctx, id)
	if status.Code(err) != codes.NotFound {
		t.Errorf("second DestroySession code = %v, want NotFound", status.Code(err))
	}
}

func TestServer_ServeAndStop(t *testing.T) {
	srv := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	client := NewClient(&http.Client{}, "http://"+ln.Addr().String())
	resp, err := client.Evaluate(bg(), &EvaluateRequest{Source: "10 - 3"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if resp.Result != "7" {
		t.Errorf("10 - 3 = %q, want 7", resp.Result)
	}

	ctx, cancel := context.WithTimeout(bg(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v after Stop, want nil", err)
	}
}
