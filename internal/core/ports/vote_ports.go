package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
)

type BallotRepository interface {
	// Insert must fail with domain.ErrDuplicateVote when a ballot for the
	// same (election, voter) pair already exists. It rechecks the election
	// against concurrent administrative changes and fails with
	// domain.ErrElectionNotOpen when it is not open at ballot.CreatedAt, or
	// domain.ErrInvalidOption when the option is no longer a candidate.
	Insert(ctx context.Context, ballot *domain.Ballot) error
	GetByVoter(ctx context.Context, electionID, userID uuid.UUID) (*domain.Ballot, error)
	Exists(ctx context.Context, electionID, userID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.BallotSummary, error)
	CountByOption(ctx context.Context, electionID uuid.UUID) (map[string]int64, error)
	CountByElection(ctx context.Context, electionID uuid.UUID) (int64, error)
}

type CastVoteInput struct {
	ElectionID        uuid.UUID
	Voter             *domain.User
	Option            string
	FaceVerified      bool
	VerificationToken string
	Provenance        domain.Provenance
}

type VoteService interface {
	Cast(ctx context.Context, input CastVoteInput) (*domain.Ballot, error)
	MyBallot(ctx context.Context, electionID, userID uuid.UUID) (*domain.Ballot, error)
	MyBallots(ctx context.Context, userID uuid.UUID) ([]domain.BallotSummary, error)
}

type ResultsView struct {
	Election ElectionView `json:"election"`
	domain.Tally
}

type TallyService interface {
	Snapshot(ctx context.Context, election *domain.Election) (domain.Tally, error)
	PublishAdmission(ctx context.Context, election *domain.Election, ballot *domain.Ballot) error
	PublishAdminAction(ctx context.Context, election *domain.Election, action string) error
	Results(ctx context.Context, electionID uuid.UUID, includeUnreleased bool) (*ResultsView, error)
}
