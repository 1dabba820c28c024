// Package server exposes Monkey evaluation over Connect, gRPC and LSP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/chazu/monkey/vm"
)

var log = commonlog.GetLogger("monkey.server")

// MonkeyServer serves the evaluation and session services. Connect
// (HTTP/1.1 or HTTP/2), gRPC and gRPC-Web clients share one port; HTTP/2
// is accepted in cleartext.
type MonkeyServer struct {
	worker   *VMWorker
	sessions *SessionStore
	history  *HistoryStore
	mux      *http.ServeMux

	httpServer *http.Server
}

// ServerOption configures a MonkeyServer.
type ServerOption func(*config)

type config struct {
	vmOptions   []vm.Option
	globalsSize int
	maxFrames   int
	history     *HistoryStore
}

// WithVMOptions sets options applied to every VM the server creates.
func WithVMOptions(opts ...vm.Option) ServerOption {
	return func(c *config) { c.vmOptions = append(c.vmOptions, opts...) }
}

// WithGlobalsSize sets the size of each session's globals store.
func WithGlobalsSize(n int) ServerOption {
	return func(c *config) { c.globalsSize = n }
}

// WithMaxFrames sets the call depth limit for both engines.
func WithMaxFrames(n int) ServerOption {
	return func(c *config) { c.maxFrames = n }
}

// WithHistory records every session evaluation in h. The server closes h
// on Stop.
func WithHistory(h *HistoryStore) ServerOption {
	return func(c *config) { c.history = h }
}

// New creates a MonkeyServer.
func New(opts ...ServerOption) *MonkeyServer {
	cfg := &config{
		globalsSize: vm.GlobalsSize,
		maxFrames:   vm.MaxFrames,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.vmOptions = append(cfg.vmOptions, vm.WithMaxFrames(cfg.maxFrames))

	worker := NewVMWorker()
	sessions := NewSessionStore(cfg.globalsSize)

	s := &MonkeyServer{
		worker:   worker,
		sessions: sessions,
		history:  cfg.history,
		mux:      http.NewServeMux(),
	}

	evalSvc := NewEvalService(worker, sessions, cfg.history, cfg)
	sessionSvc := NewSessionService(sessions, cfg.history)

	codec := connect.WithCodec(Codec{})

	s.mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, evalSvc.Evaluate, codec))
	s.mux.Handle(CheckSyntaxProcedure, connect.NewUnaryHandler(CheckSyntaxProcedure, evalSvc.CheckSyntax, codec))
	s.mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, evalSvc.Disassemble))
	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, sessionSvc.CreateSession, codec))
	s.mux.Handle(DestroySessionProcedure, connect.NewUnaryHandler(DestroySessionProcedure, sessionSvc.DestroySession, codec))
	s.mux.Handle(HistoryProcedure, connect.NewUnaryHandler(HistoryProcedure, sessionSvc.History, codec))

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler serving every procedure. It accepts
// HTTP/2 without TLS so gRPC clients can connect directly.
func (s *MonkeyServer) Handler() http.Handler {
	return h2c.NewHandler(s.mux, &http2.Server{})
}

// Sessions returns the session store.
func (s *MonkeyServer) Sessions() *SessionStore {
	return s.sessions
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until it stops. The address should be in the form "host:port" or ":port".
func (s *MonkeyServer) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *MonkeyServer) Serve(ln net.Listener) error {
	addr := ln.Addr().String()
	log.Infof("Monkey server listening on %s", addr)
	log.Infof("  Connect (CBOR): http://%s%s", addr, EvaluateProcedure)
	log.Infof("  gRPC (h2c):     grpc://%s", addr)

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts down the HTTP server, the worker and the history store.
func (s *MonkeyServer) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.worker.Stop()
	if s.history != nil {
		if cerr := s.history.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
