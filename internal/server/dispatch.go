package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Mateyclick/tactics-live/internal/obslog"
	"github.com/Mateyclick/tactics-live/internal/puzzlestore"
	"github.com/Mateyclick/tactics-live/internal/results"
	"github.com/Mateyclick/tactics-live/internal/session"
	"github.com/Mateyclick/tactics-live/pkg/protocol"
)

func (s *Server) dispatch(ctx context.Context, c *conn, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeCreateSession:
		s.handleCreateSession(c, msg.Payload)
	case protocol.TypeUpdatePuzzle:
		s.handleUpdatePuzzle(c, msg.Payload)
	case protocol.TypeJoinSession:
		s.handleJoinSession(c, msg.Payload)
	case protocol.TypeLaunchPuzzle:
		s.handleLaunchPuzzle(c, msg.Payload)
	case protocol.TypeSubmitMove:
		s.handleSubmitMove(c, msg.Payload)
	case protocol.TypeRevealResults:
		s.handleRevealResults(c, msg.Payload)
	case protocol.TypeNextPuzzle:
		s.handleNextPuzzle(c, msg.Payload)
	case protocol.TypeTerminateSession:
		s.handleTerminateSession(c, msg.Payload)
	case protocol.TypeSaveLibraryPuzzle:
		s.handleSaveLibraryPuzzle(ctx, c, msg.Payload)
	case protocol.TypeListLibraryPuzzles:
		s.handleListLibraryPuzzles(ctx, c)
	case protocol.TypeLoadLibraryPuzzle:
		s.handleLoadLibraryPuzzle(ctx, c, msg.Payload)
	default:
		s.sendError(c, "error.unknown_type", map[string]any{"Type": msg.Type})
	}
}

// decodeInto unmarshals and validates an inbound payload, reporting any
// problem to the client. It returns false when the payload was rejected.
func (s *Server) decodeInto(c *conn, raw json.RawMessage, req interface{ Validate() error }) bool {
	if err := json.Unmarshal(raw, req); err != nil {
		s.sendError(c, "error.bad_request", map[string]any{"Reason": "malformed payload"})
		return false
	}
	if err := req.Validate(); err != nil {
		s.sendError(c, "error.bad_request", map[string]any{"Reason": err.Error()})
		return false
	}
	return true
}

func (s *Server) handleCreateSession(c *conn, raw json.RawMessage) {
	var req protocol.CreateSessionRequest
	if !s.decodeInto(c, raw, &req) {
		return
	}
	if s.registry.Len() >= s.cfg.MaxSessions {
		s.sendError(c, "error.session_full", nil)
		return
	}
	sess, err := s.registry.Create(c.id, c.userID, req.PuzzleCount)
	if err != nil {
		s.sendDomainError(c, err, nil)
		return
	}
	c.enqueueMessage(protocol.TypeSessionCreated, protocol.SessionCreated{SessionID: sess.ID()})
	s.record(sess.ID(), c, protocol.TypeCreateSession, map[string]any{"puzzleCount": req.PuzzleCount})
	obslog.L().Info("session created",
		zap.String("session", sess.ID()),
		zap.String("admin", c.userID),
		zap.Int("puzzles", req.PuzzleCount))
}

func (s *Server) handleUpdatePuzzle(c *conn, raw json.RawMessage) {
	var req protocol.UpdatePuzzleRequest
	if !s.decodeInto(c, raw, &req) {
		return
	}
	sess, ok := s.sessionByID(c, req.SessionID)
	if !ok {
		return
	}
	cfg, err := session.BuildPuzzle(req.Puzzle)
	if err != nil {
		s.sendDomainError(c, err, nil)
		return
	}
	if err := sess.UpdatePuzzle(c.id, req.PuzzleIndex, cfg); err != nil {
		s.sendDomainError(c, err, nil)
		return
	}
	s.record(sess.ID(), c, protocol.TypeUpdatePuzzle, map[string]any{"index": req.PuzzleIndex})
}

func (s *Server) handleJoinSession(c *conn, raw json.RawMessage) {
	var req protocol.JoinSessionRequest
	if !s.decodeInto(c, raw, &req) {
		return
	}
	sess, ok := s.sessionByID(c, req.SessionID)
	if !ok {
		return
	}
	events, err := sess.Join(c.id, c.userID, req.Nickname)
	if err != nil {
		s.sendDomainError(c, err, map[string]any{"Nickname": req.Nickname})
		return
	}
	c.nickname = req.Nickname
	s.deliver(sess, c, events)
	s.record(sess.ID(), c, protocol.TypeJoinSession, map[string]any{"nickname": req.Nickname})
}

func (s *Server) handleLaunchPuzzle(c *conn, raw json.RawMessage) {
	var req protocol.LaunchPuzzleRequest
	if !s.decodeInto(c, raw, &req) {
		return
	}
	sess, ok := s.sessionByID(c, req.SessionID)
	if !ok {
		return
	}
	events, err := sess.Launch(c.id, req.PuzzleIndex)
	if err != nil {
		s.sendDomainError(c, err, nil)
		return
	}
	s.deliver(sess, c, events)
	s.record(sess.ID(), c, protocol.TypeLaunchPuzzle, map[string]any{"index": req.PuzzleIndex})
	obslog.L().Info("puzzle launched", zap.String("session", sess.ID()), zap.Int("index", req.PuzzleIndex))
}

func (s *Server) handleSubmitMove(c *conn, raw json.RawMessage) {
	var req protocol.SubmitMoveRequest
	if !s.decodeInto(c, raw, &req) {
		return
	}
	sess, ok := s.sessionByID(c, req.SessionID)
	if !ok {
		return
	}
	events, err := sess.SubmitMove(c.id, req.Move)
	if err != nil {
		s.sendDomainError(c, err, nil)
		return
	}
	s.deliver(sess, c, events)
	s.record(sess.ID(), c, protocol.TypeSubmitMove, map[string]any{"move": req.Move})
}

func (s *Server) handleRevealResults(c *conn, raw json.RawMessage) {
	var req protocol.RevealResultsRequest
	if !s.decodeInto(c, raw, &req) {
		return
	}
	sess, ok := s.sessionByID(c, req.SessionID)
	if !ok {
		return
	}
	events, err := sess.Reveal(c.id)
	if err != nil {
		s.sendDomainError(c, err, nil)
		return
	}
	s.deliver(sess, c, events)
	s.record(sess.ID(), c, protocol.TypeRevealResults, nil)
}

func (s *Server) handleNextPuzzle(c *conn, raw json.RawMessage) {
	var req protocol.NextPuzzleRequest
	if !s.decodeInto(c, raw, &req) {
		return
	}
	sess, ok := s.sessionByID(c, req.SessionID)
	if !ok {
		return
	}
	events, err := sess.Advance(c.id)
	if err != nil {
		s.sendDomainError(c, err, nil)
		return
	}
	s.deliver(sess, c, events)
	s.record(sess.ID(), c, protocol.TypeNextPuzzle, nil)

	if sess.Concluded() {
		s.archiveConcluded(sess)
	}
}

func (s *Server) handleTerminateSession(c *conn, raw json.RawMessage) {
	var req protocol.TerminateSessionRequest
	if !s.decodeInto(c, raw, &req) {
		return
	}
	sess, ok := s.sessionByID(c, req.SessionID)
	if !ok {
		return
	}
	events, err := sess.Terminate(c.id)
	if err != nil {
		s.sendDomainError(c, err, nil)
		return
	}
	s.deliver(sess, c, events)
	// A terminated session with revealed scores is still worth archiving.
	// Concluded sessions were already archived by the advance handler.
	if sess.HasRevealed() && !sess.Concluded() {
		s.archiveConcluded(sess)
	}
	s.registry.Remove(sess.ID())
	s.record(sess.ID(), c, protocol.TypeTerminateSession, nil)
	obslog.L().Info("session terminated", zap.String("session", sess.ID()))
}

func (s *Server) handleSaveLibraryPuzzle(ctx context.Context, c *conn, raw json.RawMessage) {
	if s.library == nil {
		s.sendError(c, "error.library_unavailable", nil)
		return
	}
	var req protocol.SaveLibraryPuzzleRequest
	if !s.decodeInto(c, raw, &req) {
		return
	}
	// Validate the puzzle the same way a session slot would.
	if _, err := session.BuildPuzzle(req.Puzzle); err != nil {
		s.sendDomainError(c, err, nil)
		return
	}
	if err := s.library.Save(ctx, c.userID, req.Name, req.Puzzle); err != nil {
		obslog.L().Error("save library puzzle", zap.Error(err))
		s.sendError(c, "error.internal", nil)
		return
	}
	c.enqueueMessage(protocol.TypeLibraryPuzzleSaved, protocol.LibraryPuzzleSaved{Name: req.Name})
	s.record("", c, protocol.TypeSaveLibraryPuzzle, map[string]any{"name": req.Name})
}

func (s *Server) handleListLibraryPuzzles(ctx context.Context, c *conn) {
	if s.library == nil {
		s.sendError(c, "error.library_unavailable", nil)
		return
	}
	names, err := s.library.List(ctx, c.userID)
	if err != nil {
		obslog.L().Error("list library puzzles", zap.Error(err))
		s.sendError(c, "error.internal", nil)
		return
	}
	c.enqueueMessage(protocol.TypeLibraryPuzzles, protocol.LibraryPuzzles{Names: names})
}

func (s *Server) handleLoadLibraryPuzzle(ctx context.Context, c *conn, raw json.RawMessage) {
	if s.library == nil {
		s.sendError(c, "error.library_unavailable", nil)
		return
	}
	var req protocol.LoadLibraryPuzzleRequest
	if !s.decodeInto(c, raw, &req) {
		return
	}
	p, err := s.library.Load(ctx, c.userID, req.Name)
	if err != nil {
		if errors.Is(err, puzzlestore.ErrNotFound) {
			s.sendError(c, "error.library_not_found", map[string]any{"Name": req.Name})
			return
		}
		obslog.L().Error("load library puzzle", zap.Error(err))
		s.sendError(c, "error.internal", nil)
		return
	}
	c.enqueueMessage(protocol.TypeLibraryPuzzleLoaded, protocol.LibraryPuzzleLoaded{Name: req.Name, Puzzle: p})
}

func (s *Server) sessionByID(c *conn, id string) (*session.Session, bool) {
	sess, err := s.registry.Get(id)
	if err != nil {
		s.sendDomainError(c, err, map[string]any{"SessionID": id})
		return nil, false
	}
	return sess, true
}

// archiveConcluded writes the final leaderboard to the results archive in
// the background. Archiving failures are logged, never surfaced to clients.
func (s *Server) archiveConcluded(sess *session.Session) {
	if s.archive == nil {
		return
	}
	summary := &results.SessionSummary{
		SessionID:   sess.ID(),
		AdminUserID: sess.AdminUserID(),
		PuzzleCount: sess.PuzzleCount(),
		Leaderboard: sess.Standings(),
		CreatedAt:   sess.CreatedAt(),
		ConcludedAt: time.Now(),
	}
	summary.PlayerCount = len(summary.Leaderboard)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.archive.SaveConcluded(ctx, summary); err != nil {
			obslog.L().Error("archive concluded session", zap.String("session", summary.SessionID), zap.Error(err))
		}
	}()
}

func (s *Server) sendError(c *conn, key string, data map[string]any) {
	msg := s.catalog.RenderOr(key, data, "Something went wrong on the server. Please try again.")
	c.enqueueMessage(protocol.TypeError, protocol.ErrorMessage{Message: msg})
}

// sendDomainError maps a session-layer error onto a catalog message.
func (s *Server) sendDomainError(c *conn, err error, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	var key string
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		key = "error.session_not_found"
	case errors.Is(err, session.ErrNotAdmin):
		key = "error.not_admin"
	case errors.Is(err, session.ErrNicknameTaken):
		key = "error.nickname_taken"
	case errors.Is(err, session.ErrEmptyNickname):
		key = "error.nickname_empty"
	case errors.Is(err, session.ErrInvalidPuzzle), errors.Is(err, session.ErrPuzzleIndex):
		key = "error.invalid_puzzle"
		data["Reason"] = err.Error()
	case errors.Is(err, session.ErrPuzzleActive):
		key = "error.puzzle_active"
	case errors.Is(err, session.ErrPuzzleNotActive):
		key = "error.puzzle_not_active"
	case errors.Is(err, session.ErrAttemptClosed):
		key = "error.attempt_closed"
	case errors.Is(err, session.ErrWrongState), errors.Is(err, session.ErrPlayerNotFound):
		key = "error.wrong_state"
	default:
		obslog.L().Error("unexpected command error", zap.Error(err))
		key = "error.internal"
	}
	s.sendError(c, key, data)
}
