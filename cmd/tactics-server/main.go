package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Mateyclick/tactics-live/internal/activitylog"
	"github.com/Mateyclick/tactics-live/internal/authclient"
	appcfg "github.com/Mateyclick/tactics-live/internal/config"
	"github.com/Mateyclick/tactics-live/internal/msgcat"
	"github.com/Mateyclick/tactics-live/internal/obslog"
	"github.com/Mateyclick/tactics-live/internal/puzzlestore"
	"github.com/Mateyclick/tactics-live/internal/results"
	"github.com/Mateyclick/tactics-live/internal/server"
	"github.com/Mateyclick/tactics-live/internal/session"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	catalog, err := msgcat.New(os.Getenv("MSG_TEMPLATE_DIR"))
	if err != nil {
		logger.Fatal("message catalog init", zap.Error(err))
	}

	registry := session.NewRegistry(session.Options{
		BonusMultiplier: cfg.BonusMultiplier,
		IDLength:        cfg.SessionIDLength,
	})

	deps := server.Deps{
		Registry: registry,
		Catalog:  catalog,
	}

	if cfg.AuthBaseURL != "" {
		deps.Auth = authclient.NewClient(cfg.AuthBaseURL)
		logger.Info("auth enabled", zap.String("url", cfg.AuthBaseURL), zap.Bool("required", cfg.AuthRequired))
	}

	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		library, err := puzzlestore.NewStoreFromURL(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			logger.Fatal("puzzle library init", zap.Error(err))
		}
		defer library.Close()
		deps.Library = library
		logger.Info("puzzle library enabled")
	}

	if cfg.DatabaseURL != "" {
		archive, err := results.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("results archive init", zap.Error(err))
		}
		defer archive.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = archive.EnsureSchema(ctx)
		cancel()
		if err != nil {
			logger.Fatal("results schema", zap.Error(err))
		}
		deps.Archive = archive
		logger.Info("results archive enabled")
	}

	activity, err := activitylog.New(cfg.ActivityLogFile)
	if err != nil {
		logger.Fatal("activity log init", zap.Error(err))
	}
	defer activity.Close()
	deps.Activity = activity

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server exited", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
