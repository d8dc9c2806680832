// Package main is the entry point for the Planet Hub server.
//
// The main package stays minimal. Its job is to:
//  1. read configuration (.env file, then environment variables)
//  2. set up logging
//  3. build the server and start it
//
// All actual logic lives in internal/.
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sakif/planet-hub/internal/config"
	"github.com/sakif/planet-hub/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// godotenv.Load never overrides variables already set in the
	// environment; a missing .env file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required, e.g. JWT_SECRET=$(openssl rand -hex 32)")
		os.Exit(1)
	}
	if !cfg.GoogleEnabled() {
		logger.Warn("GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set, Google sign-in is disabled")
	}

	// === 3. DATA DIRECTORIES ===
	// A SQLite file lives next to the uploaded documents under data/ by
	// default; both parent directories must exist.
	if cfg.DBDriver == "sqlite" && !strings.HasPrefix(cfg.DBDSN, ":memory:") {
		dir := filepath.Dir(cfg.DBDSN)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
