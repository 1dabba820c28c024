package server

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
)

// SessionService implements the SessionService Connect handlers.
type SessionService struct {
	sessions *SessionStore
	history  *HistoryStore // nil when history is disabled
}

// NewSessionService creates a SessionService. history may be nil.
func NewSessionService(sessions *SessionStore, history *HistoryStore) *SessionService {
	return &SessionService{
		sessions: sessions,
		history:  history,
	}
}

// CreateSession creates a new workspace session.
func (s *SessionService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	session := s.sessions.Create(req.Msg.Name)
	return connect.NewResponse(&CreateSessionResponse{
		SessionID: session.ID,
	}), nil
}

// DestroySession destroys a session. Its history is kept.
func (s *SessionService) DestroySession(
	ctx context.Context,
	req *connect.Request[DestroySessionRequest],
) (*connect.Response[DestroySessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}

	if !s.sessions.Destroy(req.Msg.SessionID) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	return connect.NewResponse(&DestroySessionResponse{}), nil
}

// History lists a session's recorded evaluations, newest first. It works
// for destroyed sessions too, as long as the database still has them.
func (s *SessionService) History(
	ctx context.Context,
	req *connect.Request[HistoryRequest],
) (*connect.Response[HistoryResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	if s.history == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("history is disabled"))
	}

	entries, err := s.history.List(ctx, req.Msg.SessionID, req.Msg.Limit)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&HistoryResponse{Entries: entries}), nil
}
