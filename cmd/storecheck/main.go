// storecheck is a connectivity probe for the external services: it verifies
// that Redis, Postgres and the identity provider (when configured) are
// reachable and usable.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/Mateyclick/tactics-live/internal/authclient"
	"github.com/Mateyclick/tactics-live/internal/puzzlestore"
	"github.com/Mateyclick/tactics-live/internal/results"
	"github.com/Mateyclick/tactics-live/pkg/protocol"
)

func main() {
	redisURL := os.Getenv("REDIS_URL")
	databaseURL := os.Getenv("DATABASE_URL")
	authURL := os.Getenv("AUTH_BASE_URL")
	if redisURL == "" && databaseURL == "" && authURL == "" {
		log.Fatal("set REDIS_URL, DATABASE_URL and/or AUTH_BASE_URL to check")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if redisURL != "" {
		checkRedis(ctx, redisURL)
	} else {
		log.Println("REDIS_URL not set; skipping puzzle library check")
	}

	if databaseURL != "" {
		checkPostgres(ctx, databaseURL)
	} else {
		log.Println("DATABASE_URL not set; skipping results archive check")
	}

	if authURL != "" {
		checkAuth(ctx, authURL)
	} else {
		log.Println("AUTH_BASE_URL not set; skipping identity provider check")
	}
}

func checkRedis(ctx context.Context, url string) {
	store, err := puzzlestore.NewStoreFromURL(ctx, url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer store.Close()

	const owner = "storecheck"
	const name = "probe"
	probe := protocol.PuzzleInput{
		Position: "4k3/8/8/8/8/8/8/4K3 w - - 0 1",
		MainLine: "Kd2",
		Timer:    30,
	}
	if err := store.Save(ctx, owner, name, probe); err != nil {
		log.Fatalf("redis save: %v", err)
	}
	loaded, err := store.Load(ctx, owner, name)
	if err != nil {
		log.Fatalf("redis load: %v", err)
	}
	if loaded.Position != probe.Position {
		log.Fatalf("redis round trip mismatch: %q", loaded.Position)
	}
	if err := store.Delete(ctx, owner, name); err != nil {
		log.Fatalf("redis delete: %v", err)
	}
	log.Println("redis ok: puzzle library round trip passed")
}

func checkPostgres(ctx context.Context, url string) {
	repo, err := results.NewRepository(url)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("postgres schema: %v", err)
	}
	recent, err := repo.RecentSessions(ctx, 5)
	if err != nil {
		log.Fatalf("postgres query: %v", err)
	}
	log.Printf("postgres ok: schema present, %d archived sessions", len(recent))
}

func checkAuth(ctx context.Context, baseURL string) {
	client := authclient.NewClient(baseURL, authclient.WithRetry(1))
	_, err := client.Verify(ctx, "storecheck-probe")
	switch {
	case err == nil:
		log.Println("auth ok: probe token accepted")
	case errors.Is(err, authclient.ErrUnauthorized):
		// A rejected probe token still proves the service answered.
		log.Println("auth ok: identity provider reachable")
	default:
		log.Fatalf("auth: %v", err)
	}
}
