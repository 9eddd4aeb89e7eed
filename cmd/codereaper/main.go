package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"github.com/vncsmyrnk/evote/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/evote/internal/clock"
	"github.com/vncsmyrnk/evote/internal/config"
	"github.com/vncsmyrnk/evote/internal/core/services"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found")
	}

	var (
		dbURL     string
		retention time.Duration
		timeout   time.Duration
	)
	pflag.StringVar(&dbURL, "database-url", config.DatabaseURL(), "connection string")
	pflag.DurationVar(&retention, "retention", time.Hour, "keep expired unused codes for this long")
	pflag.DurationVar(&timeout, "timeout", 5*time.Minute, "abort the job after this long")
	pflag.Parse()

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to reach database", "error", err)
		os.Exit(1)
	}

	reaper := services.NewReaperService(postgres.NewCodeRepository(db), clock.Real(), retention, logger)

	logger.Info("starting verification code reaping", "retention", retention)
	n, err := reaper.ReapExpiredCodes(ctx)
	if err != nil {
		logger.Error("reaping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("reaping completed", "deleted", n)
}
