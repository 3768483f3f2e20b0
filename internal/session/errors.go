package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotAdmin        = errors.New("caller is not the session admin")
	ErrPuzzleIndex     = errors.New("puzzle index out of range")
	ErrPuzzleActive    = errors.New("puzzle is currently active")
	ErrPuzzleNotActive = errors.New("no puzzle is active")
	ErrWrongState      = errors.New("operation not allowed in current session state")
	ErrPlayerNotFound  = errors.New("player has not joined this session")
	ErrAttemptClosed   = errors.New("attempt already concluded for this puzzle")
	ErrNicknameTaken   = errors.New("nickname already in use in this session")
	ErrEmptyNickname   = errors.New("nickname must not be empty")
	ErrInvalidPuzzle   = errors.New("invalid puzzle configuration")
	ErrBrokenPuzzle    = errors.New("puzzle definition error: configured opponent reply is illegal")
)
