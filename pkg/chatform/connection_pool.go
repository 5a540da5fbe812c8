package chatform

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conn is the websocket surface the pool needs. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// ConnectionPool manages websocket connections for a session. It centralizes
// broadcasting, error handling, and idle detection so dispatcher logic stays
// small. Each connection gets a buffered writer goroutine; a connection that
// cannot keep up is dropped.
type ConnectionPool struct {
	sessionID string

	mu    sync.Mutex
	conns map[Conn]*poolWriter

	sendBuffer   int
	writeTimeout time.Duration

	idleTimer   *time.Timer
	idleTimeout time.Duration
	onIdle      func()
}

type poolWriter struct {
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

func (w *poolWriter) stop() {
	w.once.Do(func() { close(w.done) })
}

func NewConnectionPool(sessionID string, idleTimeout time.Duration, onIdle func()) *ConnectionPool {
	return &ConnectionPool{
		sessionID:    sessionID,
		conns:        map[Conn]*poolWriter{},
		sendBuffer:   32,
		writeTimeout: 10 * time.Second,
		idleTimeout:  idleTimeout,
		onIdle:       onIdle,
	}
}

func (cp *ConnectionPool) Add(conn Conn) {
	if cp == nil || conn == nil {
		return
	}
	w := &poolWriter{sendCh: make(chan []byte, cp.sendBuffer), done: make(chan struct{})}
	cp.mu.Lock()
	cp.conns[conn] = w
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
	go cp.writeLoop(conn, w)
}

func (cp *ConnectionPool) Remove(conn Conn) {
	if cp == nil || conn == nil {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	cp.mu.Lock()
	if w, ok := cp.conns[conn]; ok {
		w.stop()
		delete(cp.conns, conn)
	}
	cp.scheduleIdleTimerLocked()
	cp.mu.Unlock()
	_ = conn.Close()
}

// Broadcast queues data on every connection, dropping connections whose
// buffers are full.
func (cp *ConnectionPool) Broadcast(data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	for conn, w := range cp.conns {
		select {
		case w.sendCh <- data:
		default:
			log.Warn().Str("component", "chatform").Str("session_id", cp.sessionID).Msg("ws send buffer full, dropping connection")
			w.stop()
			delete(cp.conns, conn)
			go func(c Conn) { _ = c.Close() }(conn)
		}
	}
	cp.scheduleIdleTimerLocked()
	cp.mu.Unlock()
}

// SendToOne queues data on a single connection if it is still attached.
func (cp *ConnectionPool) SendToOne(conn Conn, data []byte) {
	if cp == nil || conn == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	w, ok := cp.conns[conn]
	cp.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.sendCh <- data:
	default:
		cp.Remove(conn)
	}
}

func (cp *ConnectionPool) writeLoop(conn Conn, w *poolWriter) {
	for {
		select {
		case <-w.done:
			return
		case data := <-w.sendCh:
			if cp.writeTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(cp.writeTimeout))
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("component", "chatform").Str("session_id", cp.sessionID).Msg("ws write failed, dropping connection")
				cp.Remove(conn)
				return
			}
		}
	}
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.conns)
}

func (cp *ConnectionPool) IsEmpty() bool {
	return cp.Count() == 0
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	for conn, w := range cp.conns {
		w.stop()
		_ = conn.Close()
		delete(cp.conns, conn)
	}
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
}

func (cp *ConnectionPool) CancelIdleTimer() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
}

func (cp *ConnectionPool) stopIdleTimerLocked() {
	if cp.idleTimer != nil {
		cp.idleTimer.Stop()
		cp.idleTimer = nil
	}
}

func (cp *ConnectionPool) scheduleIdleTimerLocked() {
	if len(cp.conns) != 0 || cp.idleTimeout <= 0 || cp.onIdle == nil {
		cp.stopIdleTimerLocked()
		return
	}
	cp.stopIdleTimerLocked()
	cp.idleTimer = time.AfterFunc(cp.idleTimeout, cp.triggerIdle)
}

func (cp *ConnectionPool) triggerIdle() {
	if cp == nil {
		return
	}
	var callback func()
	cp.mu.Lock()
	if len(cp.conns) == 0 {
		callback = cp.onIdle
	}
	cp.idleTimer = nil
	cp.mu.Unlock()
	if callback != nil {
		callback()
	}
}
