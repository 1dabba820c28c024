package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a MonkeyServer over the Connect protocol.
type Client struct {
	evaluate       *connect.Client[EvaluateRequest, EvaluateResponse]
	checkSyntax    *connect.Client[CheckSyntaxRequest, CheckSyntaxResponse]
	disassemble    *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue]
	createSession  *connect.Client[CreateSessionRequest, CreateSessionResponse]
	destroySession *connect.Client[DestroySessionRequest, DestroySessionResponse]
	history        *connect.Client[HistoryRequest, HistoryResponse]
}

// NewClient creates a Client for the server at baseURL, for example
// "http://localhost:4567". Extra options apply to every procedure.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	cborOpts := append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)

	return &Client{
		evaluate: connect.NewClient[EvaluateRequest, EvaluateResponse](
			httpClient, baseURL+EvaluateProcedure, cborOpts...),
		checkSyntax: connect.NewClient[CheckSyntaxRequest, CheckSyntaxResponse](
			httpClient, baseURL+CheckSyntaxProcedure, cborOpts...),
		disassemble: connect.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](
			httpClient, baseURL+DisassembleProcedure, opts...),
		createSession: connect.NewClient[CreateSessionRequest, CreateSessionResponse](
			httpClient, baseURL+CreateSessionProcedure, cborOpts...),
		destroySession: connect.NewClient[DestroySessionRequest, DestroySessionResponse](
			httpClient, baseURL+DestroySessionProcedure, cborOpts...),
		history: connect.NewClient[HistoryRequest, HistoryResponse](
			httpClient, baseURL+HistoryProcedure, cborOpts...),
	}
}

// Evaluate runs source. Program failures come back with Success false.
func (c *Client) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	resp, err := c.evaluate.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// CheckSyntax returns diagnostics for source.
func (c *Client) CheckSyntax(ctx context.Context, source string) (*CheckSyntaxResponse, error) {
	resp, err := c.checkSyntax.CallUnary(ctx, connect.NewRequest(&CheckSyntaxRequest{Source: source}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Disassemble returns the disassembly of source.
func (c *Client) Disassemble(ctx context.Context, source string) (string, error) {
	resp, err := c.disassemble.CallUnary(ctx, connect.NewRequest(wrapperspb.String(source)))
	if err != nil {
		return "", err
	}
	return resp.Msg.GetValue(), nil
}

// CreateSession creates a session and returns its ID.
func (c *Client) CreateSession(ctx context.Context, name string) (string, error) {
	resp, err := c.createSession.CallUnary(ctx, connect.NewRequest(&CreateSessionRequest{Name: name}))
	if err != nil {
		return "", err
	}
	return resp.Msg.SessionID, nil
}

// DestroySession removes a session.
func (c *Client) DestroySession(ctx context.Context, id string) error {
	_, err := c.destroySession.CallUnary(ctx, connect.NewRequest(&DestroySessionRequest{SessionID: id}))
	return err
}

// History lists a session's evaluations, newest first.
func (c *Client) History(ctx context.Context, id string, limit int) ([]*HistoryEntry, error) {
	resp, err := c.history.CallUnary(ctx, connect.NewRequest(&HistoryRequest{SessionID: id, Limit: limit}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Entries, nil
}
