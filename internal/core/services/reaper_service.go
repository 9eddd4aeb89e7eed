package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vncsmyrnk/evote/internal/core/ports"
	"github.com/vncsmyrnk/evote/internal/metrics"
)

type reaperService struct {
	codes     ports.CodeRepository
	clock     ports.Clock
	retention time.Duration
	log       *slog.Logger
}

// NewReaperService returns a reaper that removes unused codes which expired
// more than retention ago. Used codes are never removed.
func NewReaperService(codes ports.CodeRepository, clock ports.Clock, retention time.Duration, logger *slog.Logger) ports.ReaperService {
	return &reaperService{
		codes:     codes,
		clock:     clock,
		retention: retention,
		log:       logger,
	}
}

func (s *reaperService) ReapExpiredCodes(ctx context.Context) (int64, error) {
	n, err := s.codes.DeleteExpired(ctx, s.clock.Now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}
	if n > 0 {
		metrics.CodesTotal.WithLabelValues("reap", "deleted").Add(float64(n))
		s.log.Info("expired verification codes removed", "count", n)
	}
	return n, nil
}
