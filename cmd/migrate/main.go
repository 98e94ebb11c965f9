package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/Mo-Nouir/database-tests/internal/adapter/storage"
)

var (
	direction   = flag.String("direction", "up", "Migration direction: up or down")
	databaseURL = flag.String("database-url", "", "PostgreSQL DSN (defaults to DATABASE_URL)")
)

func main() {
	flag.Parse()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found")
	}

	dsn := *databaseURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		slog.Error("Error: -database-url or DATABASE_URL is required")
		os.Exit(1)
	}

	if err := storage.RunMigrations(dsn, storage.Direction(*direction)); err != nil {
		slog.Error("migration failed", "direction", *direction, "error", err)
		os.Exit(1)
	}
}
