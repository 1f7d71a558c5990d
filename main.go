package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/bryan-buckman/podhost/internal/auth"
	"github.com/bryan-buckman/podhost/internal/blob"
	"github.com/bryan-buckman/podhost/internal/config"
	"github.com/bryan-buckman/podhost/internal/database"
	"github.com/bryan-buckman/podhost/internal/feed"
	"github.com/bryan-buckman/podhost/internal/server"
	"github.com/bryan-buckman/podhost/internal/upload"
)

func main() {
	configPath := flag.String("config", "configuration.toml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database ready", "backend", db.DatabaseType())

	blobs, err := blob.NewMinio(cfg.Storage)
	if err != nil {
		logger.Error("open object store", "error", err)
		os.Exit(1)
	}

	// Populate the feed cache before accepting traffic.
	cache := feed.NewCache()
	if _, err := feed.Populate(context.Background(), db, cache, logger); err != nil {
		logger.Error("bootstrap", "error", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenStore(cfg.Auth.AdminPassword, cfg.TokenTTL())
	uploader := upload.New(db, blobs, cache, tokens, logger)

	srv := server.New(db, cache, tokens, uploader, logger)
	if err := srv.Start(cfg.Server.Bind); err != nil {
		logger.Error("server", "error", err)
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (database.Store, error) {
	if cfg.Database.Backend == "postgres" {
		return database.NewPostgres(cfg.Database.URL)
	}
	return database.NewSQLite(cfg.Database.Path)
}
