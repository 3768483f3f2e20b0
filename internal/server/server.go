// Package server is the websocket transport: it authenticates connections,
// decodes protocol envelopes, drives the session registry and fans session
// events back out to the right connections.
package server

import (
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/Mateyclick/tactics-live/internal/activitylog"
	"github.com/Mateyclick/tactics-live/internal/authclient"
	"github.com/Mateyclick/tactics-live/internal/config"
	"github.com/Mateyclick/tactics-live/internal/msgcat"
	"github.com/Mateyclick/tactics-live/internal/obslog"
	"github.com/Mateyclick/tactics-live/internal/puzzlestore"
	"github.com/Mateyclick/tactics-live/internal/results"
	"github.com/Mateyclick/tactics-live/internal/session"
)

// Deps are the server's collaborators. Library, Archive and Activity are
// optional; the corresponding features degrade gracefully when nil.
type Deps struct {
	Registry *session.Registry
	Auth     *authclient.Client
	Library  *puzzlestore.Store
	Archive  *results.Repository
	Activity *activitylog.Logger
	Catalog  *msgcat.Catalog
}

type Server struct {
	cfg      *config.AppConfig
	registry *session.Registry
	auth     *authclient.Client
	library  *puzzlestore.Store
	archive  *results.Repository
	activity *activitylog.Logger
	catalog  *msgcat.Catalog

	mux *http.ServeMux

	mu    sync.RWMutex
	conns map[string]*conn
}

func New(cfg *config.AppConfig, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		registry: deps.Registry,
		auth:     deps.Auth,
		library:  deps.Library,
		archive:  deps.Archive,
		activity: deps.Activity,
		catalog:  deps.Catalog,
		mux:      http.NewServeMux(),
		conns:    make(map[string]*conn),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) registerConn(c *conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) unregisterConn(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

func (s *Server) connByID(id string) *conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns[id]
}

// deliver fans session events out to their recipients. Events are resolved
// against the session's current membership, so a connection that left
// between emit and delivery is silently skipped.
func (s *Server) deliver(sess *session.Session, caller *conn, events []session.Event) {
	for _, ev := range events {
		switch ev.Scope {
		case session.ScopeCaller:
			if caller != nil {
				caller.enqueueMessage(ev.Type, ev.Payload)
			}
		case session.ScopeAdmin:
			if c := s.connByID(sess.AdminConnID()); c != nil {
				c.enqueueMessage(ev.Type, ev.Payload)
			}
		case session.ScopePlayer:
			if c := s.connByID(ev.TargetConn); c != nil {
				c.enqueueMessage(ev.Type, ev.Payload)
			}
		case session.ScopeSession:
			for _, id := range sess.Members() {
				if c := s.connByID(id); c != nil {
					c.enqueueMessage(ev.Type, ev.Payload)
				}
			}
		default:
			obslog.L().Error("unknown event scope", zap.Int("scope", int(ev.Scope)), zap.String("type", ev.Type))
		}
	}
}

func (s *Server) record(sess string, c *conn, action string, detail map[string]any) {
	s.activity.Record(activitylog.Entry{
		SessionID: sess,
		ConnID:    c.id,
		UserID:    c.userID,
		Action:    action,
		Detail:    detail,
	})
}
