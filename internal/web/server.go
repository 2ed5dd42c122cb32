// Package web provides the HTTP status page and JSON API for the
// presence-node daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sweeney/presence-node/internal/logic"
	"github.com/sweeney/presence-node/internal/status"
)

// Node runs engine operations on the control loop. fn is called on the loop
// goroutine with the loop's notion of now; Do returns once fn has run.
type Node interface {
	Do(ctx context.Context, fn func(e *logic.Engine, now time.Time)) error
	ResetRadio(ctx context.Context) error
}

// DefaultRequestTimeout bounds how long a handler waits for the control loop.
const DefaultRequestTimeout = 5 * time.Second

// Server serves the status page and the API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	router     *mux.Router
}

// New creates a Server that reads cheap state from tracker and reaches the
// engine through node.
func New(addr string, tracker *status.Tracker, node Node) *Server {
	s := &Server{tracker: tracker, router: mux.NewRouter()}

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/index.html", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/index.json", s.handleJSON).Methods("GET")

	api := &APIController{Node: node, Tracker: tracker, Timeout: DefaultRequestTimeout}
	api.RegisterRoutes(s.router)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
