package chatform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// WebSocketAttachOptions controls the attach handshake.
type WebSocketAttachOptions struct {
	SendHello      bool
	HandlePingPong bool
}

// AttachWebSocket joins a websocket client to a session: the session and its
// dispatcher runner are created on demand, the connection enters the pool,
// and a read loop answers pings until the client goes away.
func (o *Orchestrator) AttachWebSocket(ctx context.Context, sessionID string, conn *websocket.Conn, opts WebSocketAttachOptions) error {
	if o == nil {
		return errors.New("orchestrator is not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("missing sessionID")
	}
	if conn == nil {
		return errors.New("websocket connection is nil")
	}

	sess := o.sessions.GetOrCreate(sessionID)
	if err := o.dispatcher.EnsureRunner(ctx, sess.ID); err != nil {
		return err
	}
	sess.pool.Add(conn)

	wsLog := log.With().
		Str("component", "chatform").
		Str("remote", conn.RemoteAddr().String()).
		Str("session_id", sess.ID).
		Logger()

	if opts.SendHello {
		ts := time.Now().UnixMilli()
		hello := map[string]any{
			"ui": true,
			"event": map[string]any{
				"type": "ws.hello",
				"id":   fmt.Sprintf("ws.hello:%s:%d", sess.ID, ts),
				"data": map[string]any{
					"session_id":  sess.ID,
					"server_time": ts,
					"components":  o.Components(),
					"history":     sess.History(),
				},
			},
		}
		if b, err := json.Marshal(hello); err == nil {
			wsLog.Debug().Msg("ws sending hello")
			sess.pool.SendToOne(conn, b)
		}
	}

	go func() {
		defer sess.pool.Remove(conn)
		defer wsLog.Info().Msg("ws disconnected")
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				wsLog.Debug().Err(err).Msg("ws read loop end")
				return
			}
			if opts.HandlePingPong && msgType == websocket.TextMessage && isPingFrame(data) {
				ts := time.Now().UnixMilli()
				pong := map[string]any{
					"ui": true,
					"event": map[string]any{
						"type": "ws.pong",
						"id":   fmt.Sprintf("ws.pong:%s:%d", sess.ID, ts),
					},
				}
				if b, err := json.Marshal(pong); err == nil {
					wsLog.Debug().Msg("ws sending pong")
					sess.pool.SendToOne(conn, b)
				}
			}
		}
	}()
	return nil
}

func isPingFrame(data []byte) bool {
	text := strings.TrimSpace(strings.ToLower(string(data)))
	if text == "ping" {
		return true
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil || v == nil {
		return false
	}
	if t, ok := v["type"].(string); ok && strings.EqualFold(t, "ws.ping") {
		return true
	}
	return false
}
