package server

import (
	"context"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/monkey/vm"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

// testEnv bundles a worker, session store and optional history for one test.
type testEnv struct {
	Worker   *VMWorker
	Sessions *SessionStore
	History  *HistoryStore
	Eval     *EvalService
	Session  *SessionService
}

// newTestEnv creates an isolated environment with an in-memory history
// store. Everything is torn down when the test ends.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	history, err := OpenHistory(":memory:")
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}

	cfg := &config{
		vmOptions:   []vm.Option{vm.WithMaxFrames(64)},
		globalsSize: 1024,
		maxFrames:   64,
	}
	w := NewVMWorker()
	s := NewSessionStore(cfg.globalsSize)

	t.Cleanup(func() {
		w.Stop()
		history.Close()
	})

	return &testEnv{
		Worker:   w,
		Sessions: s,
		History:  history,
		Eval:     NewEvalService(w, s, history, cfg),
		Session:  NewSessionService(s, history),
	}
}

// ---------------------------------------------------------------------------
// Request builder helpers to reduce boilerplate in tests.
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}

// evaluate calls Evaluate and fails the test on a transport error.
func (e *testEnv) evaluate(t *testing.T, req *EvaluateRequest) *EvaluateResponse {
	t.Helper()
	resp, err := e.Eval.Evaluate(bg(), connectReq(req))
	if err != nil {
		t.Fatalf("Evaluate(%q) returned error: %v", req.Source, err)
	}
	return resp.Msg
}
