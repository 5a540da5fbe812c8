package chatform

import (
	"io/fs"
	"net/http"

	"github.com/gorilla/websocket"
)

// Router mounts the orchestrator's HTTP surface on a mux. Applications that
// own their transport can skip it and use the handler constructors directly.
type Router struct {
	orchestrator *Orchestrator
	mux          *http.ServeMux
	upgrader     websocket.Upgrader
	staticFS     fs.FS
}

type RouterOption func(*Router)

// WithStaticFS serves the embedded UI from the given filesystem at /.
func WithStaticFS(staticFS fs.FS) RouterOption {
	return func(r *Router) { r.staticFS = staticFS }
}

// WithUpgrader overrides the websocket upgrader.
func WithUpgrader(upgrader websocket.Upgrader) RouterOption {
	return func(r *Router) { r.upgrader = upgrader }
}

func NewRouter(o *Orchestrator, opts ...RouterOption) *Router {
	r := &Router{
		orchestrator: o,
		mux:          http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.mux.HandleFunc("/api/event", NewEventHTTPHandler(o))
	r.mux.HandleFunc("/api/chat", NewChatHTTPHandler(o))
	r.mux.HandleFunc("/api/history", NewHistoryHTTPHandler(o))
	r.mux.HandleFunc("/api/examples", NewExamplesHTTPHandler(o))
	r.mux.HandleFunc("/api/components", NewComponentsHTTPHandler(o))
	r.mux.HandleFunc("/ws", NewWSHTTPHandler(o, r.upgrader))
	if r.staticFS != nil {
		r.mux.Handle("/", http.FileServer(http.FS(r.staticFS)))
	}
	return r
}

// Handler returns the mounted mux.
func (r *Router) Handler() http.Handler { return r.mux }

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
