package chatform

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// EventRequestBody is the POST /api/event payload.
type EventRequestBody struct {
	SessionID      string `json:"session_id"`
	Trigger        string `json:"trigger"`
	Text           string `json:"text,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ChatRequestBody is the POST /api/chat payload.
type ChatRequestBody struct {
	Message string `json:"message"`
	History []Turn `json:"history,omitempty"`
}

// ChatResponseBody is the POST /api/chat reply.
type ChatResponseBody struct {
	Response *string `json:"response"`
	History  []Turn  `json:"history"`
}

// NewEventHTTPHandler ingests trigger events for the dispatcher.
func NewEventHTTPHandler(o *Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if o == nil {
			http.Error(w, "orchestrator not initialized", http.StatusServiceUnavailable)
			return
		}
		var body EventRequestBody
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Trigger) == "" {
			http.Error(w, "missing trigger", http.StatusBadRequest)
			return
		}
		sessionID := strings.TrimSpace(body.SessionID)
		if sessionID == "" {
			http.Error(w, "missing session_id", http.StatusBadRequest)
			return
		}

		ev := TriggerEvent{
			Trigger:        body.Trigger,
			Text:           body.Text,
			IdempotencyKey: IdempotencyKeyFromRequest(req, body.IdempotencyKey),
		}
		if err := o.Trigger(req.Context(), sessionID, ev); err != nil {
			log.Warn().Err(err).Str("component", "chatform").Str("trigger", body.Trigger).Msg("trigger failed")
			http.Error(w, "trigger failed", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id":      sessionID,
			"idempotency_key": ev.IdempotencyKey,
		})
	}
}

// NewChatHTTPHandler exposes the programmatic chat entry point: raw
// (response, history) without the UI choreography.
func NewChatHTTPHandler(o *Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if o == nil {
			http.Error(w, "orchestrator not initialized", http.StatusServiceUnavailable)
			return
		}
		var body ChatRequestBody
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Message) == "" {
			http.Error(w, "missing message", http.StatusBadRequest)
			return
		}

		response, history, err := o.Chat(req.Context(), body.Message, body.History)
		if err != nil {
			log.Error().Err(err).Str("component", "chatform").Msg("chat invocation failed")
			http.Error(w, "chat invocation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ChatResponseBody{Response: response, History: history})
	}
}

// NewWSHTTPHandler upgrades and attaches websocket clients.
func NewWSHTTPHandler(o *Orchestrator, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if o == nil {
			http.Error(w, "orchestrator not initialized", http.StatusServiceUnavailable)
			return
		}
		sessionID := strings.TrimSpace(req.URL.Query().Get("session_id"))
		if sessionID == "" {
			sessionID = o.sessions.GetOrCreate("").ID
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		if err := o.AttachWebSocket(req.Context(), sessionID, conn, WebSocketAttachOptions{
			SendHello:      true,
			HandlePingPong: true,
		}); err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"failed to attach websocket"}`))
			_ = conn.Close()
			return
		}
	}
}

// NewHistoryHTTPHandler serves a session's history snapshot.
func NewHistoryHTTPHandler(o *Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if o == nil {
			http.Error(w, "orchestrator not initialized", http.StatusServiceUnavailable)
			return
		}
		sessionID := strings.TrimSpace(req.URL.Query().Get("session_id"))
		if sessionID == "" {
			http.Error(w, "missing session_id", http.StatusBadRequest)
			return
		}
		sess, ok := o.sessions.Get(sessionID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id": sess.ID,
			"history":    sess.History(),
		})
	}
}

// NewExamplesHTTPHandler serves configured examples plus cached results.
func NewExamplesHTTPHandler(o *Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if o == nil || o.Examples() == nil {
			http.Error(w, "examples not configured", http.StatusNotFound)
			return
		}
		rows, err := o.Examples().Rows(req.Context())
		if err != nil {
			log.Error().Err(err).Str("component", "chatform").Msg("examples read failed")
			http.Error(w, "examples read failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"examples": rows})
	}
}

// NewComponentsHTTPHandler serves the rendered component tree for initial
// client render.
func NewComponentsHTTPHandler(o *Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if o == nil {
			http.Error(w, "orchestrator not initialized", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"components": o.Components()})
	}
}
