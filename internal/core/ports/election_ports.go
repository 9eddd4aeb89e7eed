package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
)

type ElectionRepository interface {
	Save(ctx context.Context, election *domain.Election) error
	// Modify applies fn to the stored election while holding its row lock
	// and persists the result. An error from fn aborts the change and is
	// returned unchanged.
	Modify(ctx context.Context, id uuid.UUID, fn func(election *domain.Election) error) (*domain.Election, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Election, error)
	List(ctx context.Context) ([]*domain.Election, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type CreateElectionInput struct {
	Title             string
	Candidates        []string
	StartTime         time.Time
	EndTime           time.Time
	EligibleAgeRanges []domain.AgeRange
}

// UpdateElectionInput carries optional edits; nil fields are left unchanged.
type UpdateElectionInput struct {
	Title             *string
	Candidates        []string
	StartTime         *time.Time
	EndTime           *time.Time
	EligibleAgeRanges *[]domain.AgeRange
}

type ElectionView struct {
	domain.Election
	EffectiveStatus domain.EffectiveStatus `json:"effective_status"`
}

type VoterElectionView struct {
	ElectionView
	Eligible bool `json:"eligible"`
	Age      *int `json:"age,omitempty"`
	HasVoted bool `json:"has_voted"`
}

type ElectionService interface {
	Create(ctx context.Context, input CreateElectionInput) (*ElectionView, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateElectionInput) (*ElectionView, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*ElectionView, error)
	List(ctx context.Context) ([]ElectionView, error)
	Suspend(ctx context.Context, id uuid.UUID) (*ElectionView, error)
	Resume(ctx context.Context, id uuid.UUID, newEnd *time.Time) (*ElectionView, error)
	Extend(ctx context.Context, id uuid.UUID, newEnd time.Time) (*ElectionView, error)
	ReleaseResults(ctx context.Context, id uuid.UUID) (*ElectionView, error)
	ListForVoter(ctx context.Context, voter *domain.User) ([]VoterElectionView, error)
	GetForVoter(ctx context.Context, voter *domain.User, id uuid.UUID) (*VoterElectionView, error)
}
