// Package protocol defines the websocket wire format: a typed envelope and
// one fixed payload schema per message type. Inbound payloads are validated
// here, at the boundary, before they reach any session logic.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is the envelope carried in every websocket text frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types (client → server).
const (
	TypeCreateSession      = "create_session"
	TypeUpdatePuzzle       = "update_puzzle"
	TypeJoinSession        = "join_session"
	TypeLaunchPuzzle       = "launch_puzzle"
	TypeSubmitMove         = "submit_move"
	TypeRevealResults      = "reveal_results"
	TypeNextPuzzle         = "next_puzzle"
	TypeTerminateSession   = "terminate_session"
	TypeSaveLibraryPuzzle  = "save_library_puzzle"
	TypeListLibraryPuzzles = "list_library_puzzles"
	TypeLoadLibraryPuzzle  = "load_library_puzzle"
)

// Outbound message types (server → client).
const (
	TypeSessionCreated        = "session_created"
	TypeSessionJoined         = "session_joined"
	TypePlayerJoined          = "player_joined"
	TypePlayerLeft            = "player_left"
	TypePuzzleLaunched        = "puzzle_launched"
	TypeMoveStepOK            = "move_step_ok"
	TypeMoveStepFailed        = "move_step_failed"
	TypeSequenceCompleted     = "sequence_completed"
	TypeSequenceFailed        = "sequence_failed"
	TypeAdminProgress         = "admin_progress"
	TypeResultsRevealed       = "results_revealed"
	TypeAdvancedToNextPuzzle  = "advanced_to_next_puzzle"
	TypeSessionConcluded      = "session_concluded"
	TypeAdminDisconnected     = "admin_disconnected"
	TypeSessionTerminated     = "session_terminated"
	TypeLibraryPuzzleSaved    = "library_puzzle_saved"
	TypeLibraryPuzzles        = "library_puzzles"
	TypeLibraryPuzzleLoaded   = "library_puzzle_loaded"
	TypeError                 = "error"
)

// Encode wraps a payload into an envelope frame.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}

// SolutionLineInput is one admin-entered solution line. Moves is the raw
// line text; normalization happens server-side.
type SolutionLineInput struct {
	Label  string  `json:"label,omitempty"`
	Moves  string  `json:"moves"`
	Points float64 `json:"points"`
}

// PuzzleInput is the admin-facing puzzle configuration payload. Either
// SolutionLines or the legacy single MainLine (+ Points) form is accepted.
type PuzzleInput struct {
	Position      string              `json:"position"`
	SolutionLines []SolutionLineInput `json:"solutionLines,omitempty"`
	MainLine      string              `json:"mainLine,omitempty"`
	Timer         int                 `json:"timer"`
	Points        float64             `json:"points,omitempty"`
}

// Lines folds the legacy single-line form into the multi-line one.
func (p *PuzzleInput) Lines() []SolutionLineInput {
	if len(p.SolutionLines) > 0 {
		return p.SolutionLines
	}
	if strings.TrimSpace(p.MainLine) == "" {
		return nil
	}
	return []SolutionLineInput{{Moves: p.MainLine, Points: p.Points}}
}

type CreateSessionRequest struct {
	PuzzleCount int `json:"puzzleCount"`
}

func (r *CreateSessionRequest) Validate() error {
	if r.PuzzleCount < 1 || r.PuzzleCount > 50 {
		return fmt.Errorf("puzzleCount must be between 1 and 50, got %d", r.PuzzleCount)
	}
	return nil
}

type UpdatePuzzleRequest struct {
	SessionID   string      `json:"sessionId"`
	PuzzleIndex int         `json:"puzzleIndex"`
	Puzzle      PuzzleInput `json:"puzzle"`
}

func (r *UpdatePuzzleRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("sessionId must not be empty")
	}
	if r.PuzzleIndex < 0 {
		return fmt.Errorf("puzzleIndex must not be negative")
	}
	return nil
}

type JoinSessionRequest struct {
	SessionID string `json:"sessionId"`
	Nickname  string `json:"nickname"`
}

func (r *JoinSessionRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("sessionId must not be empty")
	}
	if strings.TrimSpace(r.Nickname) == "" {
		return fmt.Errorf("nickname must not be empty")
	}
	return nil
}

type LaunchPuzzleRequest struct {
	SessionID   string `json:"sessionId"`
	PuzzleIndex int    `json:"puzzleIndex"`
}

func (r *LaunchPuzzleRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("sessionId must not be empty")
	}
	if r.PuzzleIndex < 0 {
		return fmt.Errorf("puzzleIndex must not be negative")
	}
	return nil
}

type SubmitMoveRequest struct {
	SessionID string `json:"sessionId"`
	Move      string `json:"move"`
}

func (r *SubmitMoveRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("sessionId must not be empty")
	}
	if strings.TrimSpace(r.Move) == "" {
		return fmt.Errorf("move must not be empty")
	}
	return nil
}

type RevealResultsRequest struct {
	SessionID   string `json:"sessionId"`
	PuzzleIndex int    `json:"puzzleIndex"`
}

func (r *RevealResultsRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("sessionId must not be empty")
	}
	return nil
}

type NextPuzzleRequest struct {
	SessionID string `json:"sessionId"`
}

func (r *NextPuzzleRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("sessionId must not be empty")
	}
	return nil
}

type TerminateSessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (r *TerminateSessionRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("sessionId must not be empty")
	}
	return nil
}

type SaveLibraryPuzzleRequest struct {
	Name   string      `json:"name"`
	Puzzle PuzzleInput `json:"puzzle"`
}

func (r *SaveLibraryPuzzleRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if strings.TrimSpace(r.Puzzle.Position) == "" {
		return fmt.Errorf("puzzle.position must not be empty")
	}
	return nil
}

type LoadLibraryPuzzleRequest struct {
	Name string `json:"name"`
}

func (r *LoadLibraryPuzzleRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	return nil
}
