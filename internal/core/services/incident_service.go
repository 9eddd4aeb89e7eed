package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

const (
	DefaultIncidentPageSize = 50
	MaxIncidentPageSize     = 100
)

type incidentService struct {
	repo      ports.IncidentRepository
	publisher ports.Publisher
	clock     ports.Clock
	log       *slog.Logger
}

func NewIncidentService(repo ports.IncidentRepository, publisher ports.Publisher, clock ports.Clock, logger *slog.Logger) ports.IncidentService {
	return &incidentService{
		repo:      repo,
		publisher: publisher,
		clock:     clock,
		log:       logger,
	}
}

func (s *incidentService) List(ctx context.Context, input ports.ListIncidentsInput) (*ports.IncidentPage, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	if limit < 1 {
		limit = DefaultIncidentPageSize
	}
	if limit > MaxIncidentPageSize {
		limit = MaxIncidentPageSize
	}

	f := input.Filter
	if f.Category != nil && !f.Category.Valid() {
		return nil, domain.Invalid("unknown incident category %q", *f.Category)
	}
	if f.Severity != nil && !f.Severity.Valid() {
		return nil, domain.Invalid("unknown severity %q", *f.Severity)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, domain.Invalid("invalid date range")
	}

	incidents, total, err := s.repo.List(ctx, f, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	if incidents == nil {
		incidents = []*domain.FraudIncident{}
	}

	return &ports.IncidentPage{
		Incidents: incidents,
		Page:      page,
		Limit:     limit,
		Total:     total,
		Pages:     int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (s *incidentService) Get(ctx context.Context, id uuid.UUID) (*domain.FraudIncident, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *incidentService) Resolve(ctx context.Context, id, adminID uuid.UUID, notes string) (*domain.FraudIncident, error) {
	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.Resolution.Resolved {
		return nil, domain.Reject(domain.ErrInvalidTransition, "incident is already resolved")
	}

	now := s.clock.Now()
	incident.Resolution = domain.Resolution{
		Resolved:   true,
		ResolvedBy: &adminID,
		ResolvedAt: &now,
		Notes:      strings.TrimSpace(notes),
	}
	changed, err := s.repo.UpdateResolution(ctx, id, false, incident.Resolution)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve incident: %w", err)
	}
	if !changed {
		return nil, domain.Reject(domain.ErrInvalidTransition, "incident is already resolved")
	}
	s.log.Info("incident resolved", "incident_id", id, "admin_id", adminID)

	s.publisher.Publish(ports.AdminChannel(), ports.EventFraudResolved, ports.FraudEvent{
		IncidentID: id,
		ResolvedBy: &adminID,
		Timestamp:  now,
	})
	return incident, nil
}

func (s *incidentService) Unresolve(ctx context.Context, id uuid.UUID) (*domain.FraudIncident, error) {
	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !incident.Resolution.Resolved {
		return nil, domain.Reject(domain.ErrInvalidTransition, "incident is not resolved")
	}

	incident.Resolution = domain.Resolution{}
	changed, err := s.repo.UpdateResolution(ctx, id, true, incident.Resolution)
	if err != nil {
		return nil, fmt.Errorf("failed to unresolve incident: %w", err)
	}
	if !changed {
		return nil, domain.Reject(domain.ErrInvalidTransition, "incident is not resolved")
	}
	return incident, nil
}

func (s *incidentService) Annotate(ctx context.Context, id uuid.UUID, notes string) (*domain.FraudIncident, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, domain.Invalid("notes are required")
	}
	if err := s.repo.UpdateNotes(ctx, id, notes); err != nil {
		if errors.Is(err, domain.ErrIncidentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to annotate incident: %w", err)
	}
	return s.repo.GetByID(ctx, id)
}

// BulkResolve resolves every listed incident that is still open and reports
// how many changed.
func (s *incidentService) BulkResolve(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID, notes string) (int64, error) {
	if len(ids) == 0 {
		return 0, domain.Invalid("incident ids are required")
	}

	now := s.clock.Now()
	n, err := s.repo.ResolveMany(ctx, ids, domain.Resolution{
		Resolved:   true,
		ResolvedBy: &adminID,
		ResolvedAt: &now,
		Notes:      strings.TrimSpace(notes),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve incidents: %w", err)
	}
	s.log.Info("incidents resolved", "count", n, "admin_id", adminID)
	return n, nil
}

func (s *incidentService) Statistics(ctx context.Context) (*domain.IncidentStatistics, error) {
	stats, err := s.repo.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute incident statistics: %w", err)
	}
	return stats, nil
}
