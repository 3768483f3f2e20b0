// Package puzzlestore persists admin-authored puzzles in Redis so they can
// be reused across sessions.
package puzzlestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Mateyclick/tactics-live/pkg/protocol"
)

// ErrNotFound is returned when no puzzle is stored under the given name.
var ErrNotFound = errors.New("puzzle not found in library")

// Store keeps one hash per owner: field = puzzle name, value = JSON payload.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// NewStoreFromURL dials Redis from a redis:// URL and verifies the
// connection before returning.
func NewStoreFromURL(ctx context.Context, url string) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keyLibrary(owner string) string {
	return "puzzlelib:" + strings.TrimSpace(owner)
}

// Save stores the puzzle under (owner, name), overwriting any previous
// version of the same name.
func (s *Store) Save(ctx context.Context, owner, name string, p protocol.PuzzleInput) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("puzzle name must not be empty")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal puzzle %q: %w", name, err)
	}
	return s.rdb.HSet(ctx, s.keyLibrary(owner), name, raw).Err()
}

// List returns the owner's saved puzzle names, sorted.
func (s *Store) List(ctx context.Context, owner string) ([]string, error) {
	names, err := s.rdb.HKeys(ctx, s.keyLibrary(owner)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Load fetches one saved puzzle by name.
func (s *Store) Load(ctx context.Context, owner, name string) (protocol.PuzzleInput, error) {
	raw, err := s.rdb.HGet(ctx, s.keyLibrary(owner), strings.TrimSpace(name)).Bytes()
	if err == redis.Nil {
		return protocol.PuzzleInput{}, ErrNotFound
	}
	if err != nil {
		return protocol.PuzzleInput{}, err
	}
	var p protocol.PuzzleInput
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.PuzzleInput{}, fmt.Errorf("unmarshal puzzle %q: %w", name, err)
	}
	return p, nil
}

// Delete removes one saved puzzle. Deleting a missing name is not an error.
func (s *Store) Delete(ctx context.Context, owner, name string) error {
	return s.rdb.HDel(ctx, s.keyLibrary(owner), strings.TrimSpace(name)).Err()
}
