package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/evaluator"
	"github.com/chazu/monkey/manifest"
	"github.com/chazu/monkey/vm"
)

// EvalService implements the EvalService Connect handlers.
type EvalService struct {
	worker   *VMWorker
	sessions *SessionStore
	history  *HistoryStore // nil disables recording
	vmOpts   []vm.Option
	maxDepth int
}

// NewEvalService creates an EvalService. history may be nil.
func NewEvalService(worker *VMWorker, sessions *SessionStore, history *HistoryStore, cfg *config) *EvalService {
	return &EvalService{
		worker:   worker,
		sessions: sessions,
		history:  history,
		vmOpts:   cfg.vmOptions,
		maxDepth: cfg.maxFrames,
	}
}

// Evaluate compiles and executes a Monkey program, in a session when one is
// named and in a throwaway session otherwise.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[EvaluateRequest],
) (*connect.Response[EvaluateResponse], error) {
	source := req.Msg.Source
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	engine := req.Msg.Engine
	if engine == "" {
		engine = manifest.EngineVM
	}
	if engine != manifest.EngineVM && engine != manifest.EngineEval {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown engine %q", engine))
	}

	var session *Session
	if id := req.Msg.SessionID; id != "" {
		var ok bool
		session, ok = s.sessions.Get(id)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
		}
	} else {
		session = s.sessions.Ephemeral()
	}

	result, err := s.worker.Do(ctx, func() interface{} {
		return s.evaluate(session, source, engine)
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	if errors.Is(err, ErrWorkerStopped) {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	if err != nil {
		return connect.NewResponse(&EvaluateResponse{
			Success:      false,
			ErrorMessage: err.Error(),
		}), nil
	}

	resp := result.(*EvaluateResponse)
	log.Debugf("evaluate session=%s engine=%s success=%t", session.ID, engine, resp.Success)

	if s.history != nil && req.Msg.SessionID != "" {
		entry := &HistoryEntry{
			Source:    source,
			Result:    resp.Result,
			Success:   resp.Success,
			Engine:    engine,
			CreatedAt: time.Now(),
		}
		if !resp.Success {
			entry.Result = resp.ErrorMessage
		}
		if err := s.history.Record(ctx, session.ID, entry); err != nil {
			log.Warningf("%s", err)
		}
	}

	return connect.NewResponse(resp), nil
}

// CheckSyntax validates source code without executing it.
func (s *EvalService) CheckSyntax(
	ctx context.Context,
	req *connect.Request[CheckSyntaxRequest],
) (*connect.Response[CheckSyntaxResponse], error) {
	source := req.Msg.Source
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	diagnostics := Diagnose(source)
	return connect.NewResponse(&CheckSyntaxResponse{
		Valid:       len(diagnostics) == 0,
		Diagnostics: diagnostics,
	}), nil
}

// Disassemble compiles source and returns its disassembly. It uses the
// protobuf codec with a well-known wrapper type, so any Connect or gRPC
// client can call it without the CBOR codec.
func (s *EvalService) Disassemble(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	source := req.Msg.GetValue()
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	bc, err := compiler.Compile(source)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(wrapperspb.String(bc.Disassemble())), nil
}

// evaluate runs source against a session's state.
// Must be called on the VM worker goroutine.
func (s *EvalService) evaluate(session *Session, source, engine string) *EvaluateResponse {
	program, err := compiler.Parse(source)
	if err != nil {
		return &EvaluateResponse{Success: false, ErrorMessage: err.Error()}
	}

	var (
		out    bytes.Buffer
		result vm.Object
	)
	switch engine {
	case manifest.EngineEval:
		ev := evaluator.New(evaluator.WithOutput(&out), evaluator.WithMaxDepth(s.maxDepth))
		result, err = ev.Run(program, session.env)
	default:
		result, err = s.runVM(session, program, &out)
	}

	if err != nil {
		return &EvaluateResponse{
			Success:      false,
			Output:       out.String(),
			ErrorMessage: err.Error(),
		}
	}
	return &EvaluateResponse{
		Success: true,
		Result:  result.Inspect(),
		Type:    string(result.Type()),
		Output:  out.String(),
	}
}

// runVM compiles program on top of the session's symbol table and constant
// pool and runs it against the session's globals.
func (s *EvalService) runVM(session *Session, program *compiler.Program, out *bytes.Buffer) (vm.Object, error) {
	c := compiler.NewWithState(session.symbols, session.constants)
	if err := c.Compile(program); err != nil {
		return nil, err
	}
	session.constants = c.Constants()

	opts := make([]vm.Option, 0, len(s.vmOpts)+2)
	opts = append(opts, s.vmOpts...)
	opts = append(opts, vm.WithGlobals(session.globals), vm.WithOutput(out))

	machine := vm.New(c.Bytecode(), opts...)
	if err := machine.Run(); err != nil {
		return nil, err
	}
	return machine.LastPoppedStackElem(), nil
}

// Diagnose returns every parse error in source, or the first compile error
// if it parses. An empty result means the program compiles.
func Diagnose(source string) []*Diagnostic {
	program, err := compiler.Parse(source)
	if err != nil {
		var perrs compiler.ParseErrors
		if errors.As(err, &perrs) {
			diagnostics := make([]*Diagnostic, len(perrs))
			for i, pe := range perrs {
				diagnostics[i] = &Diagnostic{Line: pe.Pos.Line, Column: pe.Pos.Column, Message: pe.Msg}
			}
			return diagnostics
		}
		return []*Diagnostic{{Message: err.Error()}}
	}

	if err := compiler.New().Compile(program); err != nil {
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			return []*Diagnostic{{Line: cerr.Pos.Line, Column: cerr.Pos.Column, Message: cerr.Msg}}
		}
		return []*Diagnostic{{Message: err.Error()}}
	}
	return nil
}
