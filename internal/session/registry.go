package session

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

const sessionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Options configures a Registry. Zero values fall back to defaults.
type Options struct {
	BonusMultiplier float64
	IDLength        int
	Now             func() time.Time
}

// Registry owns session creation and destruction. Sessions share no
// mutable state with each other; the registry map is the only structure
// touched by more than one session's flows.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	bonus float64
	idLen int
	now   func() time.Time
}

func NewRegistry(opts Options) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		bonus:    opts.BonusMultiplier,
		idLen:    opts.IDLength,
		now:      opts.Now,
	}
	if r.bonus == 0 {
		r.bonus = DefaultBonusMultiplier
	}
	if r.idLen <= 0 {
		r.idLen = 6
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Create registers a new session with puzzleCount default slots and the
// caller as its immutable admin.
func (r *Registry) Create(adminConn, adminUser string, puzzleCount int) (*Session, error) {
	if puzzleCount < 1 {
		return nil, fmt.Errorf("%w: puzzle count must be positive", ErrInvalidPuzzle)
	}

	puzzles := make([]PuzzleConfig, puzzleCount)
	for i := range puzzles {
		puzzles[i] = PuzzleConfig{Position: DefaultPosition, TimerSec: DefaultTimerSec}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.newSessionIDLocked()
	if err != nil {
		return nil, err
	}
	s := &Session{
		id:        id,
		adminConn: adminConn,
		adminUser: adminUser,
		createdAt: r.now(),
		state:     StateConfiguring,
		puzzles:   puzzles,
		players:   make(map[string]*Player),
		bonus:     r.bonus,
		now:       r.now,
	}
	r.sessions[id] = s
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SessionsForConn returns every session the connection participates in,
// as admin or player. Used for the disconnect sweep.
func (r *Registry) SessionsForConn(connID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.HasConnection(connID) {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) newSessionIDLocked() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		b := make([]byte, r.idLen)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generate session id: %w", err)
		}
		for i := range b {
			b[i] = sessionIDAlphabet[int(b[i])%len(sessionIDAlphabet)]
		}
		id := string(b)
		if _, exists := r.sessions[id]; !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("generate session id: exhausted attempts")
}
