package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
)

type IncidentFilter struct {
	Category   *domain.IncidentCategory
	Severity   *domain.Severity
	Resolved   *bool
	ElectionID *uuid.UUID
	UserID     *uuid.UUID
	From       *time.Time
	To         *time.Time
}

type IncidentRepository interface {
	Insert(ctx context.Context, incident *domain.FraudIncident) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FraudIncident, error)
	List(ctx context.Context, filter IncidentFilter, limit, offset int) ([]*domain.FraudIncident, int64, error)
	CountForPairSince(ctx context.Context, userID, electionID uuid.UUID, since time.Time) (int64, error)
	DistinctUsersByAddressSince(ctx context.Context, electionID uuid.UUID, ipAddress string, since time.Time) ([]uuid.UUID, error)
	// UpdateResolution reports false when the incident's resolved flag no
	// longer equals from.
	UpdateResolution(ctx context.Context, id uuid.UUID, from bool, resolution domain.Resolution) (bool, error)
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error
	ResolveMany(ctx context.Context, ids []uuid.UUID, resolution domain.Resolution) (int64, error)
	Statistics(ctx context.Context) (*domain.IncidentStatistics, error)
}

type RecordIncidentInput struct {
	Category   domain.IncidentCategory
	Severity   domain.Severity
	UserID     uuid.UUID
	ElectionID *uuid.UUID
	Details    string
	Metadata   map[string]any
	Provenance domain.Provenance
}

// FraudRecorder never fails its caller. Record returns nil when the
// incident could not be persisted.
type FraudRecorder interface {
	Record(ctx context.Context, input RecordIncidentInput) *domain.FraudIncident
	Correlate(ctx context.Context, userID, electionID uuid.UUID, provenance domain.Provenance)
}

type ListIncidentsInput struct {
	Filter IncidentFilter
	Page   int
	Limit  int
}

type IncidentPage struct {
	Incidents []*domain.FraudIncident `json:"incidents"`
	Page      int                     `json:"page"`
	Limit     int                     `json:"limit"`
	Total     int64                   `json:"total"`
	Pages     int                     `json:"pages"`
}

type IncidentService interface {
	List(ctx context.Context, input ListIncidentsInput) (*IncidentPage, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.FraudIncident, error)
	Resolve(ctx context.Context, id, adminID uuid.UUID, notes string) (*domain.FraudIncident, error)
	Unresolve(ctx context.Context, id uuid.UUID) (*domain.FraudIncident, error)
	Annotate(ctx context.Context, id uuid.UUID, notes string) (*domain.FraudIncident, error)
	BulkResolve(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID, notes string) (int64, error)
	Statistics(ctx context.Context) (*domain.IncidentStatistics, error)
}
