package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/evaluator"
	"github.com/chazu/monkey/vm"
)

// Session is a workspace whose definitions persist across evaluations.
// The two engines keep separate state: a `let` evaluated with the VM is not
// visible to the evaluator and vice versa.
//
// Session state is only touched on the VMWorker goroutine.
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time

	// Bytecode engine state.
	symbols   *compiler.SymbolTable
	constants []vm.Object
	globals   []vm.Object

	// Evaluator state.
	env *evaluator.Environment
}

func newSession(name string, globalsSize int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
		symbols:   compiler.NewSymbolTableWithBuiltins(),
		globals:   make([]vm.Object, globalsSize),
		env:       evaluator.NewEnvironment(),
	}
}

// SessionStore manages workspace sessions.
type SessionStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	globalsSize int
}

// NewSessionStore creates a new session store. Each session gets a globals
// store of globalsSize slots.
func NewSessionStore(globalsSize int) *SessionStore {
	if globalsSize <= 0 {
		globalsSize = vm.GlobalsSize
	}
	return &SessionStore{
		sessions:    make(map[string]*Session),
		globalsSize: globalsSize,
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(name string) *Session {
	session := newSession(name, s.globalsSize)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Infof("session %s created (%q)", session.ID, name)
	return session
}

// Ephemeral returns a session that is not registered in the store.
func (s *SessionStore) Ephemeral() *Session {
	return newSession("", s.globalsSize)
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// Destroy removes a session. It reports whether the session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		log.Infof("session %s destroyed", id)
	}
	return ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
