package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/Mateyclick/tactics-live/internal/authclient"
	"github.com/Mateyclick/tactics-live/internal/obslog"
	"github.com/Mateyclick/tactics-live/pkg/protocol"
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		if errors.Is(err, authclient.ErrUnauthorized) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		} else {
			obslog.L().Error("verify token", zap.Error(err))
			http.Error(w, "auth service unavailable", http.StatusBadGateway)
		}
		return
	}

	opts := &websocket.AcceptOptions{}
	if len(s.cfg.AllowedOrigins) > 0 {
		opts.OriginPatterns = s.cfg.AllowedOrigins
	} else {
		opts.InsecureSkipVerify = true
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		obslog.L().Warn("websocket accept", zap.Error(err))
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	c := newConn(uuid.NewString(), identity.UserID)
	c.nickname = identity.DisplayName
	s.registerConn(c)
	obslog.L().Info("connection opened", zap.String("conn", c.id), zap.String("user", c.userID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-c.send:
				if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			break
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(c, "error.bad_request", map[string]any{"Reason": "malformed envelope"})
			continue
		}
		s.dispatch(ctx, c, msg)
	}

	s.disconnect(c)
}

// authenticate resolves the connection's identity from its token. With no
// auth client configured, or with auth optional and no token presented, the
// connection proceeds as a guest.
func (s *Server) authenticate(r *http.Request) (*authclient.Identity, error) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}

	if s.auth == nil {
		if s.cfg.AuthRequired {
			return nil, authclient.ErrUnauthorized
		}
		return guestIdentity(), nil
	}
	if token == "" {
		if s.cfg.AuthRequired {
			return nil, authclient.ErrUnauthorized
		}
		return guestIdentity(), nil
	}

	id, err := s.auth.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, authclient.ErrUnauthorized) && !s.cfg.AuthRequired {
			return guestIdentity(), nil
		}
		return nil, err
	}
	return id, nil
}

func guestIdentity() *authclient.Identity {
	return &authclient.Identity{UserID: "guest-" + uuid.NewString()}
}

// disconnect removes the connection and sweeps every session it belonged
// to. The conn is unregistered first so the sweep never echoes to it.
func (s *Server) disconnect(c *conn) {
	s.unregisterConn(c.id)

	for _, sess := range s.registry.SessionsForConn(c.id) {
		events, handled := sess.DropConnection(c.id)
		if !handled {
			continue
		}
		s.deliver(sess, nil, events)
		s.record(sess.ID(), c, "disconnect", nil)
	}
	obslog.L().Info("connection closed", zap.String("conn", c.id))
}
