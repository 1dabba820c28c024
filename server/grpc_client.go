package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GRPCClient calls a MonkeyServer over the gRPC protocol. The server's
// Connect handlers speak gRPC natively, so no separate gRPC server is needed.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to target ("host:port") without TLS.
func DialGRPC(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc connect %s: %w", target, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close closes the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, method, req, resp, grpc.ForceCodec(Codec{}))
}

// Evaluate runs source. Program failures come back with Success false.
func (c *GRPCClient) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	var resp EvaluateResponse
	if err := c.invoke(ctx, EvaluateProcedure, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckSyntax returns diagnostics for source.
func (c *GRPCClient) CheckSyntax(ctx context.Context, source string) (*CheckSyntaxResponse, error) {
	var resp CheckSyntaxResponse
	if err := c.invoke(ctx, CheckSyntaxProcedure, &CheckSyntaxRequest{Source: source}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Disassemble returns the disassembly of source. This procedure uses the
// default protobuf codec.
func (c *GRPCClient) Disassemble(ctx context.Context, source string) (string, error) {
	var resp wrapperspb.StringValue
	if err := c.conn.Invoke(ctx, DisassembleProcedure, wrapperspb.String(source), &resp); err != nil {
		return "", err
	}
	return resp.GetValue(), nil
}

// CreateSession creates a session and returns its ID.
func (c *GRPCClient) CreateSession(ctx context.Context, name string) (string, error) {
	var resp CreateSessionResponse
	if err := c.invoke(ctx, CreateSessionProcedure, &CreateSessionRequest{Name: name}, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// DestroySession removes a session.
func (c *GRPCClient) DestroySession(ctx context.Context, id string) error {
	var resp DestroySessionResponse
	return c.invoke(ctx, DestroySessionProcedure, &DestroySessionRequest{SessionID: id}, &resp)
}
