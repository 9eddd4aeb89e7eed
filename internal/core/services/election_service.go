package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type ElectionDependencies struct {
	Elections ports.ElectionRepository
	Ballots   ports.BallotRepository
	Tally     ports.TallyService
	Publisher ports.Publisher
	Tasks     *Tasks
	Clock     ports.Clock
	Logger    *slog.Logger
}

type electionService struct {
	elections ports.ElectionRepository
	ballots   ports.BallotRepository
	tally     ports.TallyService
	publisher ports.Publisher
	tasks     *Tasks
	clock     ports.Clock
	log       *slog.Logger
}

func NewElectionService(deps ElectionDependencies) ports.ElectionService {
	return &electionService{
		elections: deps.Elections,
		ballots:   deps.Ballots,
		tally:     deps.Tally,
		publisher: deps.Publisher,
		tasks:     deps.Tasks,
		clock:     deps.Clock,
		log:       deps.Logger,
	}
}

func (s *electionService) Create(ctx context.Context, input ports.CreateElectionInput) (*ports.ElectionView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domain.Invalid("title is required")
	}
	candidates, err := domain.NormalizeCandidates(input.Candidates)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateSchedule(input.StartTime, input.EndTime); err != nil {
		return nil, err
	}
	if err := domain.ValidateAgeRanges(input.EligibleAgeRanges); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	election := &domain.Election{
		ID:                uuid.New(),
		Title:             title,
		Candidates:        candidates,
		StartTime:         input.StartTime.UTC(),
		EndTime:           input.EndTime.UTC(),
		Status:            domain.StatusScheduled,
		EligibleAgeRanges: input.EligibleAgeRanges,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if election.EligibleAgeRanges == nil {
		election.EligibleAgeRanges = []domain.AgeRange{}
	}

	if err := s.elections.Save(ctx, election); err != nil {
		return nil, fmt.Errorf("failed to save election: %w", err)
	}
	s.log.Info("election created", "election_id", election.ID, "title", election.Title)

	view := viewOf(election, now)
	return &view, nil
}

func (s *electionService) Update(ctx context.Context, id uuid.UUID, input ports.UpdateElectionInput) (*ports.ElectionView, error) {
	var title string
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, domain.Invalid("title cannot be empty")
		}
	}
	var candidates []string
	if input.Candidates != nil {
		var err error
		if candidates, err = domain.NormalizeCandidates(input.Candidates); err != nil {
			return nil, err
		}
	}
	if input.EligibleAgeRanges != nil {
		if err := domain.ValidateAgeRanges(*input.EligibleAgeRanges); err != nil {
			return nil, err
		}
	}

	return s.apply(ctx, id, ports.EventElectionUpdated, nil, func(election *domain.Election) error {
		if input.Title != nil {
			election.Title = title
		}
		if candidates != nil {
			// Ballot inserts wait on the row lock held here, so this count
			// cannot miss a ballot that is about to land.
			votes, err := s.ballots.CountByElection(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to count ballots: %w", err)
			}
			if votes > 0 {
				return domain.Reject(domain.ErrInvalidTransition, "candidates cannot change once votes have been cast")
			}
			election.Candidates = candidates
		}
		if input.StartTime != nil {
			election.StartTime = input.StartTime.UTC()
		}
		if input.EndTime != nil {
			election.EndTime = input.EndTime.UTC()
		}
		if err := domain.ValidateSchedule(election.StartTime, election.EndTime); err != nil {
			return err
		}
		if input.EligibleAgeRanges != nil {
			election.EligibleAgeRanges = *input.EligibleAgeRanges
		}
		return nil
	})
}

func (s *electionService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.elections.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.elections.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete election: %w", err)
	}
	s.log.Info("election deleted", "election_id", id)
	return nil
}

func (s *electionService) Get(ctx context.Context, id uuid.UUID) (*ports.ElectionView, error) {
	election, err := s.elections.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := viewOf(election, s.clock.Now())
	return &view, nil
}

func (s *electionService) List(ctx context.Context) ([]ports.ElectionView, error) {
	elections, err := s.elections.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list elections: %w", err)
	}
	sortByStartDesc(elections)

	now := s.clock.Now()
	views := make([]ports.ElectionView, 0, len(elections))
	for _, e := range elections {
		views = append(views, viewOf(e, now))
	}
	return views, nil
}

func (s *electionService) Suspend(ctx context.Context, id uuid.UUID) (*ports.ElectionView, error) {
	return s.apply(ctx, id, ports.EventElectionSuspended, nil, func(election *domain.Election) error {
		if election.Status == domain.StatusSuspended {
			return domain.Reject(domain.ErrInvalidTransition, "election is already suspended")
		}
		election.Status = domain.StatusSuspended
		return nil
	})
}

func (s *electionService) Resume(ctx context.Context, id uuid.UUID, newEnd *time.Time) (*ports.ElectionView, error) {
	return s.apply(ctx, id, ports.EventElectionResumed, newEnd, func(election *domain.Election) error {
		if election.Status != domain.StatusSuspended {
			return domain.Reject(domain.ErrInvalidTransition, "election is not suspended")
		}
		if newEnd != nil {
			end := newEnd.UTC()
			if err := domain.ValidateSchedule(election.StartTime, end); err != nil {
				return err
			}
			election.EndTime = end
		}
		election.Status = domain.StatusActive
		return nil
	})
}

func (s *electionService) Extend(ctx context.Context, id uuid.UUID, newEnd time.Time) (*ports.ElectionView, error) {
	if newEnd.IsZero() {
		return nil, domain.Invalid("new end time is required")
	}
	end := newEnd.UTC()
	return s.apply(ctx, id, ports.EventElectionExtended, &end, func(election *domain.Election) error {
		if err := domain.ValidateSchedule(election.StartTime, end); err != nil {
			return err
		}
		election.EndTime = end
		if election.Status != domain.StatusSuspended {
			election.Status = domain.StatusActive
		}
		return nil
	})
}

func (s *electionService) ReleaseResults(ctx context.Context, id uuid.UUID) (*ports.ElectionView, error) {
	return s.apply(ctx, id, ports.EventResultsReleased, nil, func(election *domain.Election) error {
		if election.ResultsReleased {
			return domain.Reject(domain.ErrInvalidTransition, "results are already released")
		}
		election.ResultsReleased = true
		return nil
	})
}

func (s *electionService) ListForVoter(ctx context.Context, voter *domain.User) ([]ports.VoterElectionView, error) {
	elections, err := s.elections.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list elections: %w", err)
	}
	sortByStartDesc(elections)

	views := make([]ports.VoterElectionView, 0, len(elections))
	for _, e := range elections {
		view, err := s.voterView(ctx, voter, e)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

func (s *electionService) GetForVoter(ctx context.Context, voter *domain.User, id uuid.UUID) (*ports.VoterElectionView, error) {
	election, err := s.elections.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.voterView(ctx, voter, election)
}

func (s *electionService) voterView(ctx context.Context, voter *domain.User, election *domain.Election) (*ports.VoterElectionView, error) {
	now := s.clock.Now()
	view := &ports.VoterElectionView{ElectionView: viewOf(election, now)}

	if voter.DateOfBirth != nil {
		age := domain.AgeAt(*voter.DateOfBirth, now)
		view.Age = &age
		view.Eligible = election.Eligible(age)
	}

	voted, err := s.ballots.Exists(ctx, election.ID, voter.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check ballot: %w", err)
	}
	view.HasVoted = voted
	return view, nil
}

// apply runs mutate against the locked stored election, persists it and
// announces the change on the election channel. Checks inside mutate see
// the latest state, so concurrent admin actions cannot undo each other. The
// admin tally event is sent off the request path.
func (s *electionService) apply(ctx context.Context, id uuid.UUID, event string, newEnd *time.Time, mutate func(*domain.Election) error) (*ports.ElectionView, error) {
	now := s.clock.Now()
	election, err := s.elections.Modify(ctx, id, func(e *domain.Election) error {
		if err := mutate(e); err != nil {
			return err
		}
		e.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("election changed", "election_id", election.ID, "action", event, "status", election.Status)

	s.publisher.Publish(ports.ElectionChannel(election.ID), event, ports.ElectionEvent{
		ElectionID: election.ID,
		NewEndTime: newEnd,
		Timestamp:  now,
	})
	snapshot := *election
	s.tasks.Go(ctx, "publish-admin-action", func(ctx context.Context) error {
		return s.tally.PublishAdminAction(ctx, &snapshot, event)
	})

	view := viewOf(election, now)
	return &view, nil
}

func viewOf(e *domain.Election, now time.Time) ports.ElectionView {
	return ports.ElectionView{Election: *e, EffectiveStatus: e.EffectiveStatus(now)}
}

func sortByStartDesc(elections []*domain.Election) {
	sort.SliceStable(elections, func(i, j int) bool {
		return elections[i].StartTime.After(elections[j].StartTime)
	})
}
