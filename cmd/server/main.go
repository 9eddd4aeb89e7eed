package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vncsmyrnk/evote/internal/adapters/broadcast"
	"github.com/vncsmyrnk/evote/internal/adapters/handler/http"
	"github.com/vncsmyrnk/evote/internal/adapters/notify"
	"github.com/vncsmyrnk/evote/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/evote/internal/clock"
	"github.com/vncsmyrnk/evote/internal/config"
	"github.com/vncsmyrnk/evote/internal/core/ports"
	"github.com/vncsmyrnk/evote/internal/core/services"
	"github.com/vncsmyrnk/evote/internal/metrics"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics.Register(prometheus.DefaultRegisterer)

	// Repositories
	electionRepo := postgres.NewElectionRepository(db)
	ballotRepo := postgres.NewBallotRepository(db)
	codeRepo := postgres.NewCodeRepository(db)
	incidentRepo := postgres.NewIncidentRepository(db)
	userRepo := postgres.NewUserRepository(db)

	// Side channels
	clk := clock.Real()
	hub := broadcast.NewHub(broadcast.DefaultBuffer, logger)
	notifier := notify.WithTimeout(notify.NewLogSender(logger), cfg.NotifyTimeout)
	tasks := services.NewTasks(logger, cfg.NotifyTimeout)
	defer tasks.Wait()

	// Services
	fraud := services.NewFraudRecorder(incidentRepo, hub, clk, services.FraudPolicy{
		RepeatThreshold:     cfg.Policy.RepeatThreshold,
		RepeatWindow:        cfg.Policy.RepeatWindow,
		SharedAddressWindow: cfg.Policy.SharedAddressWindow,
	}, logger)
	tally := services.NewTallyService(electionRepo, ballotRepo, hub, clk)
	codeService := services.NewCodeService(electionRepo, ballotRepo, codeRepo, notifier, clk, cfg.Policy.MarkerTTL, logger)
	voteService := services.NewVoteService(services.VoteDependencies{
		Elections: electionRepo,
		Ballots:   ballotRepo,
		Codes:     codeRepo,
		Fraud:     fraud,
		Tally:     tally,
		Notifier:  notifier,
		Tasks:     tasks,
		Clock:     clk,
		Logger:    logger,
	})
	electionService := services.NewElectionService(services.ElectionDependencies{
		Elections: electionRepo,
		Ballots:   ballotRepo,
		Tally:     tally,
		Publisher: hub,
		Tasks:     tasks,
		Clock:     clk,
		Logger:    logger,
	})
	incidentService := services.NewIncidentService(incidentRepo, hub, clk, logger)
	userService := services.NewUserService(userRepo)
	reaper := services.NewReaperService(codeRepo, clk, cfg.CodeRetention, logger)

	handler := http.NewHandler(http.RouterConfig{
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowedOrigins: cfg.AllowedOrigins,
		Users:          userService,
		DB:             db,
	}, http.Handlers{
		Votes:     http.NewVoteHandler(voteService),
		Codes:     http.NewCodeHandler(codeService),
		Elections: http.NewElectionHandler(electionService, tally),
		Incidents: http.NewIncidentHandler(incidentService),
		Users:     http.NewUserHandler(),
		Live:      http.NewLiveHandler(hub, cfg.AllowedOrigins, logger),
	})
	server := &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		reapLoop(gctx, reaper, cfg.ReapInterval, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func reapLoop(ctx context.Context, reaper ports.ReaperService, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := reaper.ReapExpiredCodes(ctx); err != nil {
				logger.Error("failed to reap verification codes", "error", err)
			}
		}
	}
}
