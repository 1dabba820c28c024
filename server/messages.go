package server

import "time"

// Procedure paths. Each is served by a Connect handler that also speaks the
// gRPC and gRPC-Web protocols.
const (
	EvalServiceName    = "monkey.v1.EvalService"
	SessionServiceName = "monkey.v1.SessionService"

	EvaluateProcedure       = "/" + EvalServiceName + "/Evaluate"
	CheckSyntaxProcedure    = "/" + EvalServiceName + "/CheckSyntax"
	DisassembleProcedure    = "/" + EvalServiceName + "/Disassemble"
	CreateSessionProcedure  = "/" + SessionServiceName + "/CreateSession"
	DestroySessionProcedure = "/" + SessionServiceName + "/DestroySession"
	HistoryProcedure        = "/" + SessionServiceName + "/History"
)

// EvaluateRequest asks the server to run a program.
type EvaluateRequest struct {
	Source    string `cbor:"1,keyasint"`
	SessionID string `cbor:"2,keyasint,omitempty"` // empty runs in a throwaway session
	Engine    string `cbor:"3,keyasint,omitempty"` // "vm" (default) or "eval"
}

// EvaluateResponse is the outcome of an evaluation. Program failures
// (syntax, compile and runtime errors) are reported with Success false;
// transport and argument problems are returned as Connect errors.
type EvaluateResponse struct {
	Success      bool   `cbor:"1,keyasint"`
	Result       string `cbor:"2,keyasint,omitempty"` // Inspect() of the result
	Type         string `cbor:"3,keyasint,omitempty"` // object type of the result
	Output       string `cbor:"4,keyasint,omitempty"` // text written by puts
	ErrorMessage string `cbor:"5,keyasint,omitempty"`
}

// CheckSyntaxRequest asks for diagnostics without running anything.
type CheckSyntaxRequest struct {
	Source string `cbor:"1,keyasint"`
}

// Diagnostic is one problem found in a source text. Line and Column are
// 1-based; zero means the position is unknown.
type Diagnostic struct {
	Line    int    `cbor:"1,keyasint"`
	Column  int    `cbor:"2,keyasint"`
	Message string `cbor:"3,keyasint"`
}

// CheckSyntaxResponse lists every parse error, or the first compile error.
type CheckSyntaxResponse struct {
	Valid       bool          `cbor:"1,keyasint"`
	Diagnostics []*Diagnostic `cbor:"2,keyasint,omitempty"`
}

// CreateSessionRequest creates a workspace session.
type CreateSessionRequest struct {
	Name string `cbor:"1,keyasint,omitempty"`
}

// CreateSessionResponse carries the new session's ID.
type CreateSessionResponse struct {
	SessionID string `cbor:"1,keyasint"`
}

// DestroySessionRequest removes a session.
type DestroySessionRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

// DestroySessionResponse is empty.
type DestroySessionResponse struct{}

// HistoryRequest lists past evaluations of a session.
type HistoryRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Limit     int    `cbor:"2,keyasint,omitempty"`
}

// HistoryEntry is one recorded evaluation.
type HistoryEntry struct {
	Source    string    `cbor:"1,keyasint"`
	Result    string    `cbor:"2,keyasint,omitempty"`
	Success   bool      `cbor:"3,keyasint"`
	Engine    string    `cbor:"4,keyasint"`
	CreatedAt time.Time `cbor:"5,keyasint"`
}

// HistoryResponse lists entries newest first.
type HistoryResponse struct {
	Entries []*HistoryEntry `cbor:"1,keyasint,omitempty"`
}
