package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Mateyclick/tactics-live/internal/board"
	"github.com/Mateyclick/tactics-live/internal/moveline"
	"github.com/Mateyclick/tactics-live/pkg/protocol"
)

const concludedMessage = "All puzzles have been completed."

// brokenPuzzleMessage is player-facing: the failure is the admin's
// configuration, not the player's move.
const brokenPuzzleMessage = "This puzzle's definition is broken (the configured reply is illegal). Contact the session admin."

// Session is the aggregate for one live tactics session. All commands are
// serialized through its mutex, so state transitions observe arrival order
// and invariants hold without finer locking.
type Session struct {
	mu sync.Mutex

	id        string
	adminConn string
	adminUser string
	createdAt time.Time

	state      State
	puzzles    []PuzzleConfig
	current    int
	launchedAt time.Time
	revealed   bool

	players map[string]*Player
	order   []string // join order, for deterministic rosters and stable ties

	bonus float64
	now   func() time.Time
}

func (s *Session) ID() string { return s.id }

func (s *Session) AdminConnID() string { return s.adminConn }

func (s *Session) AdminUserID() string { return s.adminUser }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Concluded() bool { return s.State() == StateConcluded }

// HasRevealed reports whether at least one puzzle's results were revealed,
// meaning the leaderboard carries scores worth archiving.
func (s *Session) HasRevealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed
}

func (s *Session) PuzzleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puzzles)
}

// Members returns every connection id in the session room, admin first.
func (s *Session) Members() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.order)+1)
	out = append(out, s.adminConn)
	out = append(out, s.order...)
	return out
}

// HasConnection reports whether connID is the admin or a joined player.
func (s *Session) HasConnection(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if connID == s.adminConn {
		return true
	}
	_, ok := s.players[connID]
	return ok
}

// Standings returns the leaderboard: cumulative scores sorted descending,
// ties kept in join order.
func (s *Session) Standings() []protocol.PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.standingsLocked()
}

func (s *Session) standingsLocked() []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		out = append(out, protocol.PlayerInfo{ID: p.ConnID, Nickname: p.Nickname, Score: round2(p.Score)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (s *Session) rosterLocked() []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		out = append(out, protocol.PlayerInfo{ID: p.ConnID, Nickname: p.Nickname, Score: round2(p.Score)})
	}
	return out
}

func (s *Session) requireAdmin(connID string) error {
	if connID != s.adminConn {
		return ErrNotAdmin
	}
	return nil
}

// BuildPuzzle converts a wire puzzle payload into a validated
// configuration. Solution line moves are normalized; lines may still be
// empty at this stage (launch performs the final completeness check).
func BuildPuzzle(in protocol.PuzzleInput) (PuzzleConfig, error) {
	if _, err := board.Parse(in.Position); err != nil {
		return PuzzleConfig{}, fmt.Errorf("%w: position: %v", ErrInvalidPuzzle, err)
	}

	timer := in.Timer
	if timer == 0 {
		timer = DefaultTimerSec
	}
	if timer < MinTimerSec {
		return PuzzleConfig{}, fmt.Errorf("%w: timer must be at least %ds", ErrInvalidPuzzle, MinTimerSec)
	}

	inputs := in.Lines()
	if len(inputs) > MaxSolutionLines {
		return PuzzleConfig{}, fmt.Errorf("%w: at most %d solution lines allowed, got %d", ErrInvalidPuzzle, MaxSolutionLines, len(inputs))
	}
	lines := make([]SolutionLine, 0, len(inputs))
	for i, li := range inputs {
		if li.Points < 0 {
			return PuzzleConfig{}, fmt.Errorf("%w: line %d has negative points", ErrInvalidPuzzle, i+1)
		}
		points := li.Points
		if points == 0 {
			points = DefaultPoints
		}
		lines = append(lines, SolutionLine{
			ID:     i + 1,
			Label:  strings.TrimSpace(li.Label),
			Moves:  moveline.Normalize(li.Moves),
			Points: points,
		})
	}
	return PuzzleConfig{Position: in.Position, Lines: lines, TimerSec: timer}, nil
}

// validateForLaunch is the completeness check a puzzle must pass before it
// can go live.
func validateForLaunch(cfg *PuzzleConfig) error {
	if _, err := board.Parse(cfg.Position); err != nil {
		return fmt.Errorf("%w: position: %v", ErrInvalidPuzzle, err)
	}
	if len(cfg.Lines) == 0 {
		return fmt.Errorf("%w: at least one solution line is required", ErrInvalidPuzzle)
	}
	for _, line := range cfg.Lines {
		if len(line.Moves) == 0 {
			return fmt.Errorf("%w: solution line %d has no moves", ErrInvalidPuzzle, line.ID)
		}
		if line.Points <= 0 {
			return fmt.Errorf("%w: solution line %d has non-positive points", ErrInvalidPuzzle, line.ID)
		}
	}
	if cfg.TimerSec < MinTimerSec {
		return fmt.Errorf("%w: timer must be at least %ds", ErrInvalidPuzzle, MinTimerSec)
	}
	return nil
}

// UpdatePuzzle replaces the puzzle slot at idx. The currently active
// puzzle's configuration is frozen and cannot be mutated.
func (s *Session) UpdatePuzzle(connID string, idx int, cfg PuzzleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdmin(connID); err != nil {
		return err
	}
	if idx < 0 || idx >= len(s.puzzles) {
		return ErrPuzzleIndex
	}
	if s.state == StatePuzzleActive && idx == s.current {
		return ErrPuzzleActive
	}
	s.puzzles[idx] = cfg
	return nil
}

// Puzzle returns a copy of the configuration at idx.
func (s *Session) Puzzle(idx int) (PuzzleConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.puzzles) {
		return PuzzleConfig{}, ErrPuzzleIndex
	}
	return s.puzzles[idx], nil
}

// Join adds a player. Nicknames are unique within a session; joining while
// a puzzle is live starts a fresh attempt at its starting position.
func (s *Session) Join(connID, userID, nickname string) ([]Event, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrEmptyNickname
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if strings.EqualFold(p.Nickname, nickname) {
			return nil, ErrNicknameTaken
		}
	}

	p := &Player{ConnID: connID, UserID: userID, Nickname: nickname, Status: AttemptPending}
	if s.state == StatePuzzleActive {
		pos, err := board.Parse(s.puzzles[s.current].Position)
		if err != nil {
			return nil, fmt.Errorf("active puzzle position: %w", err)
		}
		p.resetAttempt(pos, len(s.puzzles[s.current].Lines))
	}
	s.players[connID] = p
	s.order = append(s.order, connID)

	roster := s.rosterLocked()
	joined := protocol.SessionJoined{
		SessionID:    s.id,
		Nickname:     nickname,
		Players:      roster,
		PuzzleActive: s.state == StatePuzzleActive,
	}
	if s.state == StatePuzzleActive {
		view := s.activePuzzleViewLocked()
		joined.CurrentPuzzle = &view
		joined.EndTime = s.deadlineLocked().UnixMilli()
	}

	return []Event{
		{Scope: ScopeCaller, Type: protocol.TypeSessionJoined, Payload: joined},
		{Scope: ScopeSession, Type: protocol.TypePlayerJoined, Payload: protocol.PlayerJoined{
			PlayerID: connID,
			Nickname: nickname,
			Players:  roster,
		}},
	}, nil
}

func (s *Session) activePuzzleViewLocked() protocol.ActivePuzzle {
	cfg := s.puzzles[s.current]
	maxPoints := 0.0
	for _, line := range cfg.Lines {
		if line.Points > maxPoints {
			maxPoints = line.Points
		}
	}
	return protocol.ActivePuzzle{
		Position:     cfg.Position,
		Timer:        cfg.TimerSec,
		Points:       maxPoints,
		PuzzleNumber: s.current + 1,
		TotalPuzzles: len(s.puzzles),
	}
}

func (s *Session) deadlineLocked() time.Time {
	return s.launchedAt.Add(time.Duration(s.puzzles[s.current].TimerSec) * time.Second)
}

// Launch activates the puzzle at idx, resetting every player's attempt to
// the puzzle's starting position.
func (s *Session) Launch(connID string, idx int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdmin(connID); err != nil {
		return nil, err
	}
	if s.state != StateConfiguring && s.state != StateResultsRevealed {
		return nil, ErrWrongState
	}
	if idx < 0 || idx >= len(s.puzzles) {
		return nil, ErrPuzzleIndex
	}
	cfg := &s.puzzles[idx]
	if err := validateForLaunch(cfg); err != nil {
		return nil, err
	}
	pos, err := board.Parse(cfg.Position)
	if err != nil {
		return nil, fmt.Errorf("%w: position: %v", ErrInvalidPuzzle, err)
	}

	s.current = idx
	s.state = StatePuzzleActive
	s.launchedAt = s.now()
	for _, p := range s.players {
		p.resetAttempt(pos, len(cfg.Lines))
	}

	return []Event{{
		Scope: ScopeSession,
		Type:  protocol.TypePuzzleLaunched,
		Payload: protocol.PuzzleLaunched{
			Puzzle:  s.activePuzzleViewLocked(),
			EndTime: s.deadlineLocked().UnixMilli(),
		},
	}}, nil
}

// SubmitMove judges one player move against the active puzzle. Moves
// submitted after the puzzle is deactivated are rejected outright; a late
// move while the puzzle is still active is judged normally (the reveal
// command is the authoritative close of the window, not the timer).
func (s *Session) SubmitMove(connID, moveText string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePuzzleActive {
		return nil, ErrPuzzleNotActive
	}
	p, ok := s.players[connID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	if p.concluded() {
		return nil, ErrAttemptClosed
	}

	now := s.now()
	move := moveline.NormalizeMove(moveText)
	p.LastMove = move
	p.LastMoveAt = now

	res := judgeMove(p, s.puzzles[s.current].Lines, move)
	if p.concluded() {
		p.FinishedAt = now
	}

	ts := now.UnixMilli()
	switch res.verdict {
	case verdictAdvance:
		return []Event{
			{Scope: ScopeCaller, Type: protocol.TypeMoveStepOK, Payload: protocol.MoveStepOK{
				NewPosition:      p.Board.FEN(),
				OpponentMove:     res.opponentSAN,
				NextStepExpected: true,
			}},
			{Scope: ScopeAdmin, Type: protocol.TypeAdminProgress, Payload: protocol.AdminProgress{
				PlayerID:         connID,
				Nickname:         p.Nickname,
				AttemptedMove:    res.moveSAN,
				Status:           protocol.ProgressCorrectStep,
				OpponentMove:     res.opponentSAN,
				NextStepExpected: true,
				Timestamp:        ts,
			}},
		}, nil

	case verdictSolved:
		return []Event{
			{Scope: ScopeCaller, Type: protocol.TypeMoveStepOK, Payload: protocol.MoveStepOK{
				NewPosition:      p.Board.FEN(),
				OpponentMove:     res.opponentSAN,
				NextStepExpected: false,
			}},
			{Scope: ScopeSession, Type: protocol.TypeSequenceCompleted, Payload: protocol.SequenceCompleted{
				PlayerID:      connID,
				Nickname:      p.Nickname,
				FinalPosition: p.Board.FEN(),
				ElapsedMs:     p.FinishedAt.Sub(s.launchedAt).Milliseconds(),
			}},
			{Scope: ScopeAdmin, Type: protocol.TypeAdminProgress, Payload: protocol.AdminProgress{
				PlayerID:      connID,
				Nickname:      p.Nickname,
				AttemptedMove: res.moveSAN,
				Status:        protocol.ProgressCompleted,
				OpponentMove:  res.opponentSAN,
				Timestamp:     ts,
			}},
		}, nil

	case verdictBroken:
		return []Event{
			{Scope: ScopeCaller, Type: protocol.TypeError, Payload: protocol.ErrorMessage{
				Message: brokenPuzzleMessage,
			}},
			{Scope: ScopeSession, Type: protocol.TypeSequenceFailed, Payload: protocol.SequenceFailed{
				PlayerID:      connID,
				Nickname:      p.Nickname,
				AttemptedMove: move,
			}},
			{Scope: ScopeAdmin, Type: protocol.TypeAdminProgress, Payload: protocol.AdminProgress{
				PlayerID:      connID,
				Nickname:      p.Nickname,
				AttemptedMove: res.moveSAN,
				Status:        protocol.ProgressBrokenPuzzle,
				ExpectedMove:  res.expectedMove,
				Timestamp:     ts,
			}},
		}, nil

	default: // verdictFailed
		return []Event{
			{Scope: ScopeCaller, Type: protocol.TypeMoveStepFailed, Payload: protocol.MoveStepFailed{
				AttemptedMove: move,
			}},
			{Scope: ScopeSession, Type: protocol.TypeSequenceFailed, Payload: protocol.SequenceFailed{
				PlayerID:      connID,
				Nickname:      p.Nickname,
				AttemptedMove: move,
			}},
			{Scope: ScopeAdmin, Type: protocol.TypeAdminProgress, Payload: protocol.AdminProgress{
				PlayerID:      connID,
				Nickname:      p.Nickname,
				AttemptedMove: move,
				Status:        protocol.ProgressIncorrectStep,
				ExpectedMove:  res.expectedMove,
				Timestamp:     ts,
			}},
		}, nil
	}
}

// Reveal deactivates the current puzzle, awards time-weighted points to
// every player who solved a line, and publishes results and the updated
// leaderboard.
func (s *Session) Reveal(connID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdmin(connID); err != nil {
		return nil, err
	}
	if s.state != StatePuzzleActive {
		return nil, ErrPuzzleNotActive
	}

	s.state = StateResultsRevealed
	s.revealed = true
	cfg := s.puzzles[s.current]

	results := make(map[string]protocol.PlayerResult, len(s.players))
	for _, id := range s.order {
		p := s.players[id]
		r := protocol.PlayerResult{
			Nickname:  p.Nickname,
			Attempted: p.LastMove != "",
			Solved:    p.Status == AttemptSolved,
			Failed:    p.Status == AttemptFailed,
			Answer:    p.LastMove,
		}
		if p.Status == AttemptSolved {
			base := linePoints(cfg.Lines, p.SolvedLineID)
			elapsed := p.FinishedAt.Sub(s.launchedAt)
			awarded := Award(base, cfg.TimerSec, elapsed, s.bonus)
			p.Score = round2(p.Score + awarded)
			taken := clampElapsedSec(elapsed, cfg.TimerSec)
			r.SolvedLineID = p.SolvedLineID
			r.PointsAwarded = awarded
			r.TimeTakenSec = &taken
		}
		results[id] = r
	}

	lineViews := make([]protocol.SolutionLineView, 0, len(cfg.Lines))
	for _, line := range cfg.Lines {
		lineViews = append(lineViews, protocol.SolutionLineView{
			ID:     line.ID,
			Label:  line.Label,
			Moves:  line.Moves,
			Points: line.Points,
		})
	}

	return []Event{{
		Scope: ScopeSession,
		Type:  protocol.TypeResultsRevealed,
		Payload: protocol.ResultsRevealed{
			SolutionLines: lineViews,
			Leaderboard:   s.standingsLocked(),
			PlayerResults: results,
		},
	}}, nil
}

func linePoints(lines []SolutionLine, id int) float64 {
	for _, line := range lines {
		if line.ID == id {
			return line.Points
		}
	}
	return 0
}

// Advance moves the configuration pointer to the next puzzle slot, or
// concludes the session when the revealed puzzle was the last one.
func (s *Session) Advance(connID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdmin(connID); err != nil {
		return nil, err
	}
	if s.state != StateResultsRevealed {
		return nil, ErrWrongState
	}

	next := s.current + 1
	if next < len(s.puzzles) {
		s.current = next
		s.state = StateConfiguring
		return []Event{{
			Scope: ScopeSession,
			Type:  protocol.TypeAdvancedToNextPuzzle,
			Payload: protocol.AdvancedToNextPuzzle{
				NextPuzzleIndex: next,
				TotalPuzzles:    len(s.puzzles),
			},
		}}, nil
	}

	s.state = StateConcluded
	return []Event{{
		Scope: ScopeSession,
		Type:  protocol.TypeSessionConcluded,
		Payload: protocol.SessionConcluded{
			Message:     concludedMessage,
			Leaderboard: s.standingsLocked(),
		},
	}}, nil
}

// Terminate validates the caller's authority and emits the terminal
// notification; the registry removal is the caller's responsibility.
func (s *Session) Terminate(connID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdmin(connID); err != nil {
		return nil, err
	}
	return []Event{{
		Scope:   ScopeSession,
		Type:    protocol.TypeSessionTerminated,
		Payload: protocol.Notice{Message: "The session has been terminated by the admin."},
	}}, nil
}

// DropConnection handles a disconnect. A dropped player leaves the roster;
// a dropped admin only triggers a notice, the session stays registered so
// reconnection policy remains open.
func (s *Session) DropConnection(connID string) ([]Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if connID == s.adminConn {
		return []Event{{
			Scope:   ScopeSession,
			Type:    protocol.TypeAdminDisconnected,
			Payload: protocol.Notice{Message: "The admin has disconnected. The session may end soon."},
		}}, true
	}
	p, ok := s.players[connID]
	if !ok {
		return nil, false
	}
	delete(s.players, connID)
	for i, id := range s.order {
		if id == connID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return []Event{{
		Scope: ScopeSession,
		Type:  protocol.TypePlayerLeft,
		Payload: protocol.PlayerLeft{
			PlayerID: connID,
			Nickname: p.Nickname,
			Players:  s.rosterLocked(),
		},
	}}, true
}
