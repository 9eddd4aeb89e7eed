package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
	"github.com/vncsmyrnk/evote/internal/metrics"
)

const DefaultMarkerTTL = 10 * time.Minute

type codeService struct {
	elections ports.ElectionRepository
	ballots   ports.BallotRepository
	codes     ports.CodeRepository
	notifier  ports.Notifier
	clock     ports.Clock
	markerTTL time.Duration
	log       *slog.Logger
}

func NewCodeService(
	elections ports.ElectionRepository,
	ballots ports.BallotRepository,
	codes ports.CodeRepository,
	notifier ports.Notifier,
	clock ports.Clock,
	markerTTL time.Duration,
	logger *slog.Logger,
) ports.CodeService {
	return &codeService{
		elections: elections,
		ballots:   ballots,
		codes:     codes,
		notifier:  notifier,
		clock:     clock,
		markerTTL: markerTTL,
		log:       logger,
	}
}

// Issue resends the live code for the pair if there is one, otherwise mints,
// stores and delivers a new code. A new code that cannot be delivered is
// removed again.
func (s *codeService) Issue(ctx context.Context, voter *domain.User, electionID uuid.UUID) (*ports.CodeIssue, error) {
	election, err := s.prepare(ctx, voter, electionID)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, voter, election, "issue")
}

// Resend drops any outstanding code for the pair and delivers a fresh one.
func (s *codeService) Resend(ctx context.Context, voter *domain.User, electionID uuid.UUID) (*ports.CodeIssue, error) {
	election, err := s.prepare(ctx, voter, electionID)
	if err != nil {
		return nil, err
	}

	if _, err := s.codes.DeleteOutstanding(ctx, voter.ID, election.ID); err != nil {
		return nil, fmt.Errorf("failed to invalidate outstanding codes: %w", err)
	}
	return s.issue(ctx, voter, election, "resend")
}

func (s *codeService) Verify(ctx context.Context, voter *domain.User, electionID uuid.UUID, code string) (*domain.VerificationMarker, error) {
	election, err := s.openElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotVoted(ctx, election.ID, voter.ID); err != nil {
		return nil, err
	}

	code = strings.TrimSpace(code)
	if !wellFormedCode(code) {
		metrics.CodesTotal.WithLabelValues("verify", "rejected").Inc()
		return nil, domain.Reject(domain.ErrInvalidOrExpiredCode, "invalid or expired code")
	}

	redeemed, err := s.codes.Redeem(ctx, voter.ID, election.ID, code, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to redeem verification code: %w", err)
	}
	if redeemed == nil {
		metrics.CodesTotal.WithLabelValues("verify", "rejected").Inc()
		return nil, domain.Reject(domain.ErrInvalidOrExpiredCode, "invalid or expired code")
	}

	token, err := newMarkerToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}
	metrics.CodesTotal.WithLabelValues("verify", "ok").Inc()

	return &domain.VerificationMarker{Token: token, ValidFor: s.markerTTL}, nil
}

func (s *codeService) prepare(ctx context.Context, voter *domain.User, electionID uuid.UUID) (*domain.Election, error) {
	if strings.TrimSpace(voter.Email) == "" {
		return nil, domain.Reject(domain.ErrProfileIncomplete, "an email address is required for code verification")
	}
	election, err := s.openElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotVoted(ctx, election.ID, voter.ID); err != nil {
		return nil, err
	}
	return election, nil
}

func (s *codeService) issue(ctx context.Context, voter *domain.User, election *domain.Election, action string) (*ports.CodeIssue, error) {
	now := s.clock.Now()

	value, err := newCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}
	fresh := &domain.VerificationCode{
		ID:         uuid.New(),
		UserID:     voter.ID,
		ElectionID: election.ID,
		Email:      voter.Email,
		Code:       value,
		ExpiresAt:  now.Add(domain.CodeTTL),
		CreatedAt:  now,
	}

	live, created, err := s.codes.CreateIfNoneLive(ctx, fresh, now)
	if err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	if err := s.deliver(ctx, voter, election, live, now); err != nil {
		metrics.CodesTotal.WithLabelValues(action, "delivery_failed").Inc()
		if created {
			if delErr := s.codes.Delete(ctx, live.ID); delErr != nil {
				s.log.Error("failed to roll back undelivered code", "error", delErr, "code_id", live.ID)
			}
		}
		return nil, err
	}

	result := "sent"
	if !created {
		result = "resent"
	}
	metrics.CodesTotal.WithLabelValues(action, result).Inc()

	return &ports.CodeIssue{Resent: !created, Email: voter.Email, ExpiresAt: live.ExpiresAt}, nil
}

func (s *codeService) deliver(ctx context.Context, voter *domain.User, election *domain.Election, code *domain.VerificationCode, now time.Time) error {
	params := map[string]string{
		"name":       voter.Name,
		"code":       code.Code,
		"election":   election.Title,
		"expires_in": code.ExpiresAt.Sub(now).Round(time.Second).String(),
	}
	if err := s.notifier.Send(ctx, voter.Email, ports.TemplateVerificationCode, params); err != nil {
		s.log.Error("failed to deliver verification code", "error", err, "user_id", voter.ID, "election_id", election.ID)
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}
	return nil
}

func (s *codeService) openElection(ctx context.Context, id uuid.UUID) (*domain.Election, error) {
	election, err := s.elections.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if status := election.EffectiveStatus(s.clock.Now()); status != domain.EffectiveOngoing {
		return nil, domain.Reject(domain.ErrElectionNotOpen, "election is %s", status)
	}
	return election, nil
}

func (s *codeService) ensureNotVoted(ctx context.Context, electionID, userID uuid.UUID) error {
	voted, err := s.ballots.Exists(ctx, electionID, userID)
	if err != nil {
		return fmt.Errorf("failed to check existing ballot: %w", err)
	}
	if voted {
		return domain.Reject(domain.ErrDuplicateVote, "you have already voted in this election")
	}
	return nil
}

var codeSpan = big.NewInt(900000)

// newCode returns a uniformly random code in [100000, 999999].
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func newMarkerToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func wellFormedCode(code string) bool {
	if len(code) != domain.CodeDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
