package chatform

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session holds per-session mutable state: the turn history, the staged
// input, attached websocket clients, and the in-flight chain run. One chain
// runs at a time per session; the dispatcher serializes them.
type Session struct {
	ID string

	mu         sync.Mutex
	history    []Turn
	savedInput string

	runMu     sync.Mutex
	runCancel context.CancelFunc

	pool      *ConnectionPool
	createdAt time.Time
}

// History returns a snapshot of the session's turns.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneHistory(s.history)
}

func (s *Session) setHistory(h []Turn) {
	s.mu.Lock()
	s.history = cloneHistory(h)
	s.mu.Unlock()
}

// historyWithPending returns the live history including the pending turn.
func (s *Session) historyWithPending() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneHistory(s.history)
}

// StageInput stores the just-submitted message between the clear-textbox
// step and the append-to-history step.
func (s *Session) StageInput(message string) {
	s.mu.Lock()
	s.savedInput = message
	s.mu.Unlock()
}

// StagedInput returns the staged message.
func (s *Session) StagedInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedInput
}

// AppendPending pushes (message, nil) onto the history and returns the
// updated snapshot.
func (s *Session) AppendPending(message string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{User: message, Bot: nil})
	return cloneHistory(s.history)
}

// PopLastTurn removes and returns the last turn's user message. Popping an
// empty history stages an empty message and removes nothing.
func (s *Session) PopLastTurn() (message string, history []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return "", cloneHistory(s.history)
	}
	last := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	return last.User, cloneHistory(s.history)
}

// Reset clears history and staged input.
func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.savedInput = ""
	s.mu.Unlock()
}

func (s *Session) setRunCancel(cancel context.CancelFunc) {
	s.runMu.Lock()
	s.runCancel = cancel
	s.runMu.Unlock()
}

func (s *Session) clearRunCancel() {
	s.runMu.Lock()
	s.runCancel = nil
	s.runMu.Unlock()
}

// CancelRun cancels the in-flight chain run, if any. Partial updates already
// emitted remain; history reflects the last fully emitted update.
func (s *Session) CancelRun() bool {
	s.runMu.Lock()
	cancel := s.runCancel
	s.runMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Pool returns the session's websocket connection pool.
func (s *Session) Pool() *ConnectionPool { return s.pool }

// SessionManager stores all live sessions.
type SessionManager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	onEvict     func(sessionID string)
}

func NewSessionManager(idleTimeout time.Duration) *SessionManager {
	return &SessionManager{
		sessions:    map[string]*Session{},
		idleTimeout: idleTimeout,
	}
}

// SetEvictHook registers a callback invoked after a session is evicted.
func (m *SessionManager) SetEvictHook(f func(sessionID string)) {
	m.mu.Lock()
	m.onEvict = f
	m.mu.Unlock()
}

// GetOrCreate returns the session with the given ID, creating it when
// absent. An empty ID allocates a fresh one.
func (m *SessionManager) GetOrCreate(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if s, ok := m.sessions[sessionID]; ok {
		return s
	}
	s := &Session{ID: sessionID, createdAt: time.Now()}
	s.pool = NewConnectionPool(sessionID, m.idleTimeout, func() {
		m.evict(sessionID)
	})
	m.sessions[sessionID] = s
	log.Debug().Str("component", "chatform").Str("session_id", sessionID).Msg("session created")
	return s
}

// Get returns the session with the given ID if it exists.
func (m *SessionManager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Remove evicts a session, cancelling any in-flight run and closing its
// connections.
func (m *SessionManager) Remove(sessionID string) {
	m.evict(sessionID)
}

func (m *SessionManager) evict(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	onEvict := m.onEvict
	m.mu.Unlock()
	if !ok {
		return
	}
	s.CancelRun()
	s.pool.CloseAll()
	log.Info().Str("component", "chatform").Str("session_id", sessionID).Msg("session evicted")
	if onEvict != nil {
		onEvict(sessionID)
	}
}
