// Package session holds the authoritative state for live tactics sessions:
// the registry, the per-session state machine, move judging and scoring.
package session

import (
	"time"

	"github.com/Mateyclick/tactics-live/internal/board"
)

// State is the lifecycle phase of one session.
type State string

const (
	StateConfiguring     State = "CONFIGURING"
	StatePuzzleActive    State = "PUZZLE_ACTIVE"
	StateResultsRevealed State = "RESULTS_REVEALED"
	StateConcluded       State = "CONCLUDED"
)

// AttemptStatus is a player's judgment state for the current puzzle.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "PENDING"
	AttemptSolving AttemptStatus = "SOLVING"
	AttemptSolved  AttemptStatus = "SOLVED"
	AttemptFailed  AttemptStatus = "FAILED"
)

const (
	DefaultTimerSec  = 60
	MinTimerSec      = 10
	DefaultPoints    = 100
	MaxSolutionLines = 3

	// DefaultPosition is the placeholder position new puzzle slots start
	// with (two bare kings).
	DefaultPosition = "4k3/8/8/8/8/8/8/4K3 w - - 0 1"

	DefaultBonusMultiplier = 1.0
)

// SolutionLine is one accepted alternating move sequence, starting with a
// player move. ID is unique within its puzzle; the first line is the
// primary one.
type SolutionLine struct {
	ID     int
	Label  string
	Moves  []string
	Points float64
}

// PuzzleConfig is one administrator-authored puzzle slot.
type PuzzleConfig struct {
	Position string
	Lines    []SolutionLine
	TimerSec int
}

// Player is one participant's state within a session. Attempt fields are
// reset at every puzzle launch; Score accumulates across puzzles.
type Player struct {
	ConnID   string
	UserID   string
	Nickname string
	Score    float64

	LastMove     string
	LastMoveAt   time.Time
	Step         int
	Board        board.Position
	Status       AttemptStatus
	SolvedLineID int
	FinishedAt   time.Time

	// viable holds indexes into the active puzzle's Lines that are still
	// consistent with the moves played so far in this attempt.
	viable []int
}

func (p *Player) resetAttempt(pos board.Position, lineCount int) {
	p.LastMove = ""
	p.LastMoveAt = time.Time{}
	p.Step = 0
	p.Board = pos
	p.Status = AttemptPending
	p.SolvedLineID = 0
	p.FinishedAt = time.Time{}
	p.viable = make([]int, lineCount)
	for i := range p.viable {
		p.viable[i] = i
	}
}

func (p *Player) concluded() bool {
	return p.Status == AttemptSolved || p.Status == AttemptFailed
}

// Scope selects the recipients of an Event.
type Scope int

const (
	// ScopeCaller delivers to the connection that issued the command.
	ScopeCaller Scope = iota
	// ScopeSession delivers to every connection in the session room.
	ScopeSession
	// ScopeAdmin delivers to the session's admin connection only.
	ScopeAdmin
	// ScopePlayer delivers to the connection named in TargetConn.
	ScopePlayer
)

// Event is one outbound protocol message produced by a session operation.
// The transport layer fans events out; the aggregate never touches sockets.
type Event struct {
	Scope      Scope
	TargetConn string
	Type       string
	Payload    any
}
