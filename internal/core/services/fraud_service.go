package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
	"github.com/vncsmyrnk/evote/internal/metrics"
)

// FraudPolicy holds the correlation thresholds.
type FraudPolicy struct {
	RepeatThreshold     int
	RepeatWindow        time.Duration
	SharedAddressWindow time.Duration
}

func DefaultFraudPolicy() FraudPolicy {
	return FraudPolicy{
		RepeatThreshold:     3,
		RepeatWindow:        24 * time.Hour,
		SharedAddressWindow: time.Hour,
	}
}

type fraudRecorder struct {
	repo      ports.IncidentRepository
	publisher ports.Publisher
	clock     ports.Clock
	policy    FraudPolicy
	log       *slog.Logger
}

func NewFraudRecorder(repo ports.IncidentRepository, publisher ports.Publisher, clock ports.Clock, policy FraudPolicy, logger *slog.Logger) ports.FraudRecorder {
	return &fraudRecorder{
		repo:      repo,
		publisher: publisher,
		clock:     clock,
		policy:    policy,
		log:       logger,
	}
}

func (r *fraudRecorder) Record(ctx context.Context, input ports.RecordIncidentInput) *domain.FraudIncident {
	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	incident := &domain.FraudIncident{
		ID:         uuid.New(),
		UserID:     input.UserID,
		ElectionID: input.ElectionID,
		Category:   input.Category,
		Severity:   input.Severity,
		Details:    input.Details,
		Metadata:   metadata,
		Provenance: input.Provenance,
		CreatedAt:  r.clock.Now(),
	}

	if err := r.repo.Insert(ctx, incident); err != nil {
		metrics.IncidentPersistFailuresTotal.Inc()
		r.log.Error("failed to record fraud incident",
			"error", err,
			"category", input.Category,
			"user_id", input.UserID,
		)
		return nil
	}
	metrics.IncidentsTotal.WithLabelValues(string(incident.Category), string(incident.Severity)).Inc()

	userID := incident.UserID
	r.publisher.Publish(ports.AdminChannel(), ports.EventFraudDetected, ports.FraudEvent{
		IncidentID: incident.ID,
		Category:   incident.Category,
		Severity:   incident.Severity,
		UserID:     &userID,
		ElectionID: incident.ElectionID,
		Timestamp:  incident.CreatedAt,
	})

	return incident
}

func (r *fraudRecorder) Correlate(ctx context.Context, userID, electionID uuid.UUID, provenance domain.Provenance) {
	now := r.clock.Now()

	attempts, err := r.repo.CountForPairSince(ctx, userID, electionID, now.Add(-r.policy.RepeatWindow))
	if err != nil {
		r.log.Error("failed to correlate repeat attempts", "error", err, "user_id", userID, "election_id", electionID)
	} else if attempts >= int64(r.policy.RepeatThreshold) {
		r.Record(ctx, ports.RecordIncidentInput{
			Category:   domain.CategoryAnomalousActivity,
			Severity:   domain.SeverityCritical,
			UserID:     userID,
			ElectionID: &electionID,
			Details:    fmt.Sprintf("Multiple fraud attempts detected: %d attempts in %s", attempts, r.policy.RepeatWindow),
			Metadata: map[string]any{
				"attempt_count": attempts,
				"time_window":   r.policy.RepeatWindow.String(),
			},
			Provenance: provenance,
		})
	}

	if !usableAddress(provenance.IPAddress) {
		return
	}

	users, err := r.repo.DistinctUsersByAddressSince(ctx, electionID, provenance.IPAddress, now.Add(-r.policy.SharedAddressWindow))
	if err != nil {
		r.log.Error("failed to correlate shared address", "error", err, "election_id", electionID)
		return
	}
	if len(users) <= 1 {
		return
	}

	others := make([]string, 0, len(users))
	for _, id := range users {
		if id != userID {
			others = append(others, id.String())
		}
	}
	r.Record(ctx, ports.RecordIncidentInput{
		Category:   domain.CategorySuspiciousSharedAddress,
		Severity:   domain.SeverityHigh,
		UserID:     userID,
		ElectionID: &electionID,
		Details:    fmt.Sprintf("Multiple users from same address: %d different users", len(users)),
		Metadata: map[string]any{
			"ip_address":  provenance.IPAddress,
			"user_count":  len(users),
			"other_users": others,
		},
		Provenance: provenance,
	})
}

func usableAddress(ip string) bool {
	return ip != "" && ip != "unknown"
}
