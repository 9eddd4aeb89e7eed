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
	"github.com/vncsmyrnk/evote/internal/metrics"
)

type VoteDependencies struct {
	Elections ports.ElectionRepository
	Ballots   ports.BallotRepository
	Codes     ports.CodeRepository
	Fraud     ports.FraudRecorder
	Tally     ports.TallyService
	Notifier  ports.Notifier
	Tasks     *Tasks
	Clock     ports.Clock
	Logger    *slog.Logger
}

type voteService struct {
	elections ports.ElectionRepository
	ballots   ports.BallotRepository
	codes     ports.CodeRepository
	fraud     ports.FraudRecorder
	tally     ports.TallyService
	notifier  ports.Notifier
	tasks     *Tasks
	clock     ports.Clock
	log       *slog.Logger
}

func NewVoteService(deps VoteDependencies) ports.VoteService {
	return &voteService{
		elections: deps.Elections,
		ballots:   deps.Ballots,
		codes:     deps.Codes,
		fraud:     deps.Fraud,
		tally:     deps.Tally,
		notifier:  deps.Notifier,
		tasks:     deps.Tasks,
		clock:     deps.Clock,
		log:       deps.Logger,
	}
}

// Cast runs the admission gates in order. Every gate failure records an
// incident before the rejection is returned. The ballot insert is the only
// uniqueness guard: a constraint violation there is a duplicate vote.
func (s *voteService) Cast(ctx context.Context, input ports.CastVoteInput) (*domain.Ballot, error) {
	voter := input.Voter
	election, err := s.elections.GetByID(ctx, input.ElectionID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if status := election.EffectiveStatus(now); status != domain.EffectiveOngoing {
		return nil, s.reject(ctx, input, domain.CategoryUnauthorizedAccess, domain.SeverityLow,
			fmt.Sprintf("Voting attempt while election is %s", status),
			map[string]any{"effective_status": status},
			domain.Reject(domain.ErrElectionNotOpen, "election is %s", status))
	}

	option := strings.TrimSpace(input.Option)
	if !election.HasCandidate(option) {
		return nil, s.reject(ctx, input, domain.CategoryInvalidOption, domain.SeverityLow,
			fmt.Sprintf("Voting attempt with unknown option %q", option),
			map[string]any{"option": option},
			domain.Reject(domain.ErrInvalidOption, "invalid option. Valid options are: %s", strings.Join(election.Candidates, ", ")))
	}

	if !input.FaceVerified {
		return nil, s.reject(ctx, input, domain.CategoryFaceVerificationFailed, domain.SeverityHigh,
			"Client reported face verification failed during voting",
			map[string]any{"face_verified": false, "voting_attempt": true},
			domain.Reject(domain.ErrFaceVerificationFailed, "face verification failed"))
	}

	if strings.TrimSpace(input.VerificationToken) == "" {
		return nil, s.reject(ctx, input, domain.CategoryCodeVerificationFailed, domain.SeverityMedium,
			"Voting attempt without code verification token",
			map[string]any{"has_verification_token": false},
			domain.Reject(domain.ErrOTPVerificationFailed, "code verification required, please verify your code first"))
	}
	redeemed, err := s.codes.HasRedeemed(ctx, voter.ID, election.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check verification code: %w", err)
	}
	if !redeemed {
		return nil, s.reject(ctx, input, domain.CategoryCodeVerificationFailed, domain.SeverityMedium,
			"Voting attempt without a redeemed verification code",
			map[string]any{"has_redeemed_code": false, "verification_token": "present"},
			domain.Reject(domain.ErrOTPVerificationFailed, "code verification required, please verify your code first"))
	}

	if voter.DateOfBirth == nil {
		return nil, domain.Reject(domain.ErrProfileIncomplete, "date of birth not set, please update your profile first")
	}
	age := domain.AgeAt(*voter.DateOfBirth, now)
	if !election.Eligible(age) {
		return nil, s.reject(ctx, input, domain.CategoryAgeIneligible, domain.SeverityMedium,
			fmt.Sprintf("Voter age (%d) does not meet eligibility requirements", age),
			map[string]any{"user_age": age, "eligible_age_ranges": election.EligibleAgeRanges},
			domain.Reject(domain.ErrAgeIneligible, "you are not eligible to vote in this election: your age (%d) does not meet the requirements", age))
	}

	s.fraud.Correlate(ctx, voter.ID, election.ID, input.Provenance)

	ballot := &domain.Ballot{
		ID:             uuid.New(),
		ElectionID:     election.ID,
		UserID:         voter.ID,
		Option:         option,
		VerifiedByFace: true,
		Provenance:     input.Provenance,
		CreatedAt:      now,
	}
	if err := s.ballots.Insert(ctx, ballot); err != nil {
		if errors.Is(err, domain.ErrDuplicateVote) {
			return nil, s.reject(ctx, input, domain.CategoryRepeatVoteAttempt, domain.SeverityHigh,
				"Voter attempted to vote multiple times in the same election",
				map[string]any{"duplicate_vote_attempt": true},
				domain.Reject(domain.ErrDuplicateVote, "you have already voted in this election"))
		}
		// An administrative change landed after the gates above ran.
		if errors.Is(err, domain.ErrElectionNotOpen) {
			return nil, s.reject(ctx, input, domain.CategoryUnauthorizedAccess, domain.SeverityLow,
				"Voting attempt raced an administrative change that closed the election",
				map[string]any{"concurrent_change": true},
				domain.Reject(domain.ErrElectionNotOpen, "election is no longer open"))
		}
		if errors.Is(err, domain.ErrInvalidOption) {
			return nil, s.reject(ctx, input, domain.CategoryInvalidOption, domain.SeverityLow,
				fmt.Sprintf("Option %q was removed while the vote was being cast", option),
				map[string]any{"option": option, "concurrent_change": true},
				domain.Reject(domain.ErrInvalidOption, "option %q is no longer a candidate", option))
		}
		metrics.AdmissionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to save ballot: %w", err)
	}
	metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
	s.log.Info("ballot admitted", "election_id", election.ID, "user_id", voter.ID, "ballot_id", ballot.ID)

	s.tasks.Go(ctx, "publish-tally", func(ctx context.Context) error {
		return s.tally.PublishAdmission(ctx, election, ballot)
	})
	if voter.Email != "" {
		s.tasks.Go(ctx, "vote-confirmation", func(ctx context.Context) error {
			err := s.notifier.Send(ctx, voter.Email, ports.TemplateVoteConfirmation, map[string]string{
				"name":     voter.Name,
				"election": election.Title,
				"option":   ballot.Option,
			})
			if err != nil {
				metrics.NotificationFailuresTotal.WithLabelValues(string(ports.TemplateVoteConfirmation)).Inc()
			}
			return err
		})
	}

	return ballot, nil
}

func (s *voteService) MyBallot(ctx context.Context, electionID, userID uuid.UUID) (*domain.Ballot, error) {
	return s.ballots.GetByVoter(ctx, electionID, userID)
}

func (s *voteService) MyBallots(ctx context.Context, userID uuid.UUID) ([]domain.BallotSummary, error) {
	return s.ballots.ListByUser(ctx, userID)
}

func (s *voteService) reject(ctx context.Context, input ports.CastVoteInput, category domain.IncidentCategory, severity domain.Severity, details string, metadata map[string]any, err error) error {
	electionID := input.ElectionID
	s.fraud.Record(ctx, ports.RecordIncidentInput{
		Category:   category,
		Severity:   severity,
		UserID:     input.Voter.ID,
		ElectionID: &electionID,
		Details:    details,
		Metadata:   metadata,
		Provenance: input.Provenance,
	})
	metrics.AdmissionsTotal.WithLabelValues(string(category)).Inc()
	return err
}
