package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
)

type CodeRepository interface {
	// CreateIfNoneLive stores code unless a live code already exists for the
	// same (voter, election) pair, in which case the live one is returned
	// with created == false.
	CreateIfNoneLive(ctx context.Context, code *domain.VerificationCode, now time.Time) (live *domain.VerificationCode, created bool, err error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteOutstanding(ctx context.Context, userID, electionID uuid.UUID) (int64, error)
	// Redeem atomically marks a matching live code as used. It returns nil
	// when nothing matched.
	Redeem(ctx context.Context, userID, electionID uuid.UUID, code string, now time.Time) (*domain.VerificationCode, error)
	HasRedeemed(ctx context.Context, userID, electionID uuid.UUID) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type CodeIssue struct {
	Resent    bool      `json:"resent"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CodeService interface {
	Issue(ctx context.Context, voter *domain.User, electionID uuid.UUID) (*CodeIssue, error)
	Verify(ctx context.Context, voter *domain.User, electionID uuid.UUID, code string) (*domain.VerificationMarker, error)
	Resend(ctx context.Context, voter *domain.User, electionID uuid.UUID) (*CodeIssue, error)
}

type ReaperService interface {
	ReapExpiredCodes(ctx context.Context) (int64, error)
}
