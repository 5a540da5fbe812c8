package chatform

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrConnectionPoolAbsent = errors.New("connection pool not available")
)

// UIPublisher broadcasts update envelopes to a session's attached clients.
type UIPublisher interface {
	PublishUpdates(ctx context.Context, sessionID string, updates ...Update) error
	PublishError(ctx context.Context, sessionID string, msg string) error
}

type sessionUIPublisher struct {
	sessions *SessionManager
}

func NewUIPublisher(sessions *SessionManager) UIPublisher {
	return &sessionUIPublisher{sessions: sessions}
}

func (p *sessionUIPublisher) PublishUpdates(_ context.Context, sessionID string, updates ...Update) error {
	if len(updates) == 0 {
		return nil
	}
	pool, err := p.pool(sessionID)
	if err != nil {
		return err
	}
	envelope := map[string]any{
		"ui": true,
		"event": map[string]any{
			"type":    "component.update",
			"ts":      time.Now().UnixMilli(),
			"updates": updates,
		},
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	pool.Broadcast(b)
	return nil
}

func (p *sessionUIPublisher) PublishError(_ context.Context, sessionID string, msg string) error {
	pool, err := p.pool(sessionID)
	if err != nil {
		return err
	}
	envelope := map[string]any{
		"ui": true,
		"event": map[string]any{
			"type":  "error",
			"ts":    time.Now().UnixMilli(),
			"error": msg,
		},
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	pool.Broadcast(b)
	return nil
}

func (p *sessionUIPublisher) pool(sessionID string) (*ConnectionPool, error) {
	if p == nil || p.sessions == nil {
		return nil, ErrSessionNotFound
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	sess, ok := p.sessions.Get(sessionID)
	if !ok || sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.pool == nil {
		return nil, ErrConnectionPoolAbsent
	}
	return sess.pool, nil
}
