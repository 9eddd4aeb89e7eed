package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type tallyService struct {
	elections ports.ElectionRepository
	ballots   ports.BallotRepository
	publisher ports.Publisher
	clock     ports.Clock

	// Per-election locks keep count-then-publish in order, so totals on a
	// channel never go backwards.
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewTallyService(elections ports.ElectionRepository, ballots ports.BallotRepository, publisher ports.Publisher, clock ports.Clock) ports.TallyService {
	return &tallyService{
		elections: elections,
		ballots:   ballots,
		publisher: publisher,
		clock:     clock,
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *tallyService) lock(electionID uuid.UUID) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[electionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[electionID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *tallyService) Snapshot(ctx context.Context, election *domain.Election) (domain.Tally, error) {
	counts, err := s.ballots.CountByOption(ctx, election.ID)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("failed to count ballots: %w", err)
	}
	return domain.BuildTally(election, counts, s.clock.Now()), nil
}

// PublishAdmission recomputes the tally after an admitted ballot and fans it
// out to the election channel, the admin channel and the voter's channel.
func (s *tallyService) PublishAdmission(ctx context.Context, election *domain.Election, ballot *domain.Ballot) error {
	defer s.lock(election.ID)()

	tally, err := s.Snapshot(ctx, election)
	if err != nil {
		return err
	}

	s.publisher.Publish(ports.ElectionChannel(election.ID), ports.EventVoteCast, ports.TallyEvent{
		ElectionID: election.ID,
		Results:    tally.Results,
		TotalVotes: tally.TotalVotes,
		Timestamp:  tally.ComputedAt,
	})
	s.publisher.Publish(ports.AdminChannel(), ports.EventElectionUpdated, ports.TallyEvent{
		ElectionID: election.ID,
		Action:     ports.EventVoteCast,
		Results:    tally.Results,
		TotalVotes: tally.TotalVotes,
		Timestamp:  tally.ComputedAt,
	})
	s.publisher.Publish(ports.VoterChannel(ballot.UserID), ports.EventVoteConfirmed, ports.VoteConfirmedEvent{
		ElectionID: election.ID,
		Option:     ballot.Option,
		Timestamp:  ballot.CreatedAt,
	})
	return nil
}

func (s *tallyService) PublishAdminAction(ctx context.Context, election *domain.Election, action string) error {
	defer s.lock(election.ID)()

	tally, err := s.Snapshot(ctx, election)
	if err != nil {
		return err
	}

	s.publisher.Publish(ports.AdminChannel(), ports.EventElectionUpdated, ports.TallyEvent{
		ElectionID: election.ID,
		Action:     action,
		Status:     election.EffectiveStatus(tally.ComputedAt),
		Results:    tally.Results,
		TotalVotes: tally.TotalVotes,
		Timestamp:  tally.ComputedAt,
	})
	return nil
}

func (s *tallyService) Results(ctx context.Context, electionID uuid.UUID, includeUnreleased bool) (*ports.ResultsView, error) {
	election, err := s.elections.GetByID(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !includeUnreleased && !election.ResultsReleased {
		return nil, domain.Reject(domain.ErrResultsNotReleased, "results not yet released by administrator")
	}

	tally, err := s.Snapshot(ctx, election)
	if err != nil {
		return nil, err
	}
	return &ports.ResultsView{Election: viewOf(election, tally.ComputedAt), Tally: tally}, nil
}
