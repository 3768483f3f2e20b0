// Package results archives concluded sessions in Postgres.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Mateyclick/tactics-live/pkg/protocol"
)

// SessionSummary is the archived record of one concluded session.
type SessionSummary struct {
	SessionID   string
	AdminUserID string
	PuzzleCount int
	PlayerCount int
	Leaderboard []protocol.PlayerInfo
	CreatedAt   time.Time
	ConcludedAt time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the archive table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const q = `CREATE TABLE IF NOT EXISTS tactics_sessions (
		session_id   TEXT PRIMARY KEY,
		admin_user   TEXT NOT NULL,
		puzzle_count INTEGER NOT NULL,
		player_count INTEGER NOT NULL,
		leaderboard  JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		concluded_at TIMESTAMPTZ NOT NULL,
		duration_ms  BIGINT NOT NULL
	)`
	_, err := r.db.ExecContext(ctx, q)
	return err
}

// SaveConcluded upserts the summary of a concluded session. Re-archiving the
// same session id replaces the previous row.
func (r *Repository) SaveConcluded(ctx context.Context, s *SessionSummary) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}

	leaderboardRaw, err := json.Marshal(s.Leaderboard)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	duration := s.ConcludedAt.Sub(s.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	const q = `INSERT INTO tactics_sessions (
		session_id, admin_user, puzzle_count, player_count,
		leaderboard, created_at, concluded_at, duration_ms
	  ) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	  ) ON CONFLICT (session_id) DO UPDATE SET
		admin_user=EXCLUDED.admin_user,
		puzzle_count=EXCLUDED.puzzle_count,
		player_count=EXCLUDED.player_count,
		leaderboard=EXCLUDED.leaderboard,
		created_at=EXCLUDED.created_at,
		concluded_at=EXCLUDED.concluded_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		s.SessionID, s.AdminUserID, s.PuzzleCount, s.PlayerCount,
		string(leaderboardRaw), s.CreatedAt, s.ConcludedAt, duration,
	)
	return err
}

// RecentSessions returns up to limit archived summaries, newest first.
func (r *Repository) RecentSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT session_id, admin_user, puzzle_count, player_count,
		leaderboard, created_at, concluded_at
	  FROM tactics_sessions ORDER BY concluded_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var leaderboardRaw []byte
		if err := rows.Scan(&s.SessionID, &s.AdminUserID, &s.PuzzleCount, &s.PlayerCount,
			&leaderboardRaw, &s.CreatedAt, &s.ConcludedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(leaderboardRaw, &s.Leaderboard); err != nil {
			return nil, fmt.Errorf("unmarshal leaderboard for %s: %w", s.SessionID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
