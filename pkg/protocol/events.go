package protocol

// Outbound payloads. Field names mirror what clients already consume; all
// timestamps are unix milliseconds.

type PlayerInfo struct {
	ID       string  `json:"id"`
	Nickname string  `json:"nickname"`
	Score    float64 `json:"score"`
}

type SessionCreated struct {
	SessionID string `json:"sessionId"`
}

// ActivePuzzle is the player-visible slice of a launched puzzle. Points is
// the highest point value among the configured solution lines.
type ActivePuzzle struct {
	Position     string  `json:"position"`
	Timer        int     `json:"timer"`
	Points       float64 `json:"points"`
	PuzzleNumber int     `json:"puzzleNumber"`
	TotalPuzzles int     `json:"totalPuzzles"`
}

type SessionJoined struct {
	SessionID     string        `json:"sessionId"`
	Nickname      string        `json:"nickname"`
	Players       []PlayerInfo  `json:"players"`
	PuzzleActive  bool          `json:"puzzleActive"`
	CurrentPuzzle *ActivePuzzle `json:"currentPuzzle,omitempty"`
	EndTime       int64         `json:"endTime,omitempty"`
}

type PlayerJoined struct {
	PlayerID string       `json:"playerId"`
	Nickname string       `json:"nickname"`
	Players  []PlayerInfo `json:"players"`
}

type PlayerLeft struct {
	PlayerID string       `json:"playerId"`
	Nickname string       `json:"nickname"`
	Players  []PlayerInfo `json:"players"`
}

type PuzzleLaunched struct {
	Puzzle  ActivePuzzle `json:"puzzle"`
	EndTime int64        `json:"endTime"`
}

type MoveStepOK struct {
	NewPosition      string `json:"newPosition"`
	OpponentMove     string `json:"opponentMove,omitempty"`
	NextStepExpected bool   `json:"nextStepExpected"`
}

type MoveStepFailed struct {
	AttemptedMove string `json:"attemptedMove"`
}

type SequenceCompleted struct {
	PlayerID      string `json:"playerId"`
	Nickname      string `json:"nickname"`
	FinalPosition string `json:"finalPosition"`
	ElapsedMs     int64  `json:"elapsedMs"`
}

type SequenceFailed struct {
	PlayerID      string `json:"playerId"`
	Nickname      string `json:"nickname"`
	AttemptedMove string `json:"attemptedMove,omitempty"`
}

// AdminProgress is the per-attempt telemetry sent only to the session admin.
type AdminProgress struct {
	PlayerID         string `json:"playerId"`
	Nickname         string `json:"nickname"`
	AttemptedMove    string `json:"attemptedMove"`
	Status           string `json:"status"`
	OpponentMove     string `json:"opponentMove,omitempty"`
	ExpectedMove     string `json:"expectedMove,omitempty"`
	NextStepExpected bool   `json:"nextStepExpected"`
	Timestamp        int64  `json:"timestamp"`
}

// AdminProgress status tokens.
const (
	ProgressCorrectStep   = "correct_step"
	ProgressIncorrectStep = "incorrect_step"
	ProgressCompleted     = "completed"
	ProgressBrokenPuzzle  = "broken_puzzle"
)

type SolutionLineView struct {
	ID     int      `json:"id"`
	Label  string   `json:"label,omitempty"`
	Moves  []string `json:"moves"`
	Points float64  `json:"points"`
}

type PlayerResult struct {
	Nickname      string   `json:"nickname"`
	Attempted     bool     `json:"attempted"`
	Solved        bool     `json:"solved"`
	Failed        bool     `json:"failed"`
	Answer        string   `json:"answer,omitempty"`
	SolvedLineID  int      `json:"solvedLineId,omitempty"`
	PointsAwarded float64  `json:"pointsAwarded"`
	TimeTakenSec  *float64 `json:"timeTaken,omitempty"`
}

type ResultsRevealed struct {
	SolutionLines []SolutionLineView      `json:"solutionLines"`
	Leaderboard   []PlayerInfo            `json:"leaderboard"`
	PlayerResults map[string]PlayerResult `json:"playerResults"`
}

type AdvancedToNextPuzzle struct {
	NextPuzzleIndex int `json:"nextPuzzleIndex"`
	TotalPuzzles    int `json:"totalPuzzles"`
}

type SessionConcluded struct {
	Message     string       `json:"message"`
	Leaderboard []PlayerInfo `json:"leaderboard"`
}

type Notice struct {
	Message string `json:"message"`
}

type LibraryPuzzleSaved struct {
	Name string `json:"name"`
}

type LibraryPuzzles struct {
	Names []string `json:"names"`
}

type LibraryPuzzleLoaded struct {
	Name   string      `json:"name"`
	Puzzle PuzzleInput `json:"puzzle"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}
