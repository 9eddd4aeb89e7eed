package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/evote/internal/clock"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type pairKey struct {
	electionID uuid.UUID
	userID     uuid.UUID
}

// fakeElectionRepo models the row lock with rows: Modify holds it
// exclusively and ballot inserts hold it shared, as FOR UPDATE and FOR SHARE
// do in PostgreSQL.
type fakeElectionRepo struct {
	rows      sync.RWMutex
	mu        sync.Mutex
	elections map[uuid.UUID]domain.Election
}

func newFakeElectionRepo() *fakeElectionRepo {
	return &fakeElectionRepo{elections: map[uuid.UUID]domain.Election{}}
}

func (r *fakeElectionRepo) Save(_ context.Context, e *domain.Election) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elections[e.ID] = *e
	return nil
}

func (r *fakeElectionRepo) Modify(ctx context.Context, id uuid.UUID, fn func(*domain.Election) error) (*domain.Election, error) {
	r.rows.Lock()
	defer r.rows.Unlock()

	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(e); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elections[id] = *e
	return e, nil
}

func (r *fakeElectionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Election, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.elections[id]
	if !ok {
		return nil, domain.ErrElectionNotFound
	}
	e.Candidates = append([]string(nil), e.Candidates...)
	return &e, nil
}

func (r *fakeElectionRepo) List(_ context.Context) ([]*domain.Election, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Election, 0, len(r.elections))
	for _, e := range r.elections {
		e := e
		out = append(out, &e)
	}
	return out, nil
}

func (r *fakeElectionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.elections, id)
	return nil
}

// fakeBallotRepo enforces the (election, voter) constraint under its lock, the
// way the unique index does in PostgreSQL.
type fakeBallotRepo struct {
	mu        sync.Mutex
	ballots   map[pairKey]domain.Ballot
	elections *fakeElectionRepo

	// beforeInsert runs ahead of the row lock, standing in for whatever
	// lands between the service's gate checks and the store.
	beforeInsert func()
}

func newFakeBallotRepo(elections *fakeElectionRepo) *fakeBallotRepo {
	return &fakeBallotRepo{ballots: map[pairKey]domain.Ballot{}, elections: elections}
}

func (r *fakeBallotRepo) Insert(ctx context.Context, b *domain.Ballot) error {
	if r.beforeInsert != nil {
		r.beforeInsert()
	}
	r.elections.rows.RLock()
	defer r.elections.rows.RUnlock()

	e, err := r.elections.GetByID(ctx, b.ElectionID)
	if err != nil {
		return err
	}
	if !e.IsOpen(b.CreatedAt) {
		return domain.ErrElectionNotOpen
	}
	if !e.HasCandidate(b.Option) {
		return domain.ErrInvalidOption
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{b.ElectionID, b.UserID}
	if _, exists := r.ballots[key]; exists {
		return domain.ErrDuplicateVote
	}
	r.ballots[key] = *b
	return nil
}

func (r *fakeBallotRepo) GetByVoter(_ context.Context, electionID, userID uuid.UUID) (*domain.Ballot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.ballots[pairKey{electionID, userID}]
	if !ok {
		return nil, domain.ErrBallotNotFound
	}
	return &b, nil
}

func (r *fakeBallotRepo) Exists(_ context.Context, electionID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ballots[pairKey{electionID, userID}]
	return ok, nil
}

func (r *fakeBallotRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.BallotSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.BallotSummary{}
	for key, b := range r.ballots {
		if key.userID != userID {
			continue
		}
		summary := domain.BallotSummary{ElectionID: b.ElectionID, Option: b.Option, CreatedAt: b.CreatedAt}
		if e, err := r.elections.GetByID(ctx, b.ElectionID); err == nil {
			summary.ElectionTitle = e.Title
		}
		out = append(out, summary)
	}
	return out, nil
}

func (r *fakeBallotRepo) CountByOption(_ context.Context, electionID uuid.UUID) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int64{}
	for key, b := range r.ballots {
		if key.electionID == electionID {
			counts[b.Option]++
		}
	}
	return counts, nil
}

func (r *fakeBallotRepo) CountByElection(ctx context.Context, electionID uuid.UUID) (int64, error) {
	counts, _ := r.CountByOption(ctx, electionID)
	var n int64
	for _, c := range counts {
		n += c
	}
	return n, nil
}

func (r *fakeBallotRepo) count(electionID, userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ballots[pairKey{electionID, userID}]; ok {
		return 1
	}
	return 0
}

// fakeCodeRepo mirrors the partial unique index on unused codes: at most one
// unused row per pair.
type fakeCodeRepo struct {
	mu    sync.Mutex
	codes []*domain.VerificationCode
}

func (r *fakeCodeRepo) CreateIfNoneLive(_ context.Context, code *domain.VerificationCode, now time.Time) (*domain.VerificationCode, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.codes[:0]
	for _, c := range r.codes {
		if c.UserID == code.UserID && c.ElectionID == code.ElectionID && !c.Used && !now.Before(c.ExpiresAt) {
			continue
		}
		kept = append(kept, c)
	}
	r.codes = kept

	for _, c := range r.codes {
		if c.UserID == code.UserID && c.ElectionID == code.ElectionID && !c.Used {
			cp := *c
			return &cp, false, nil
		}
	}
	cp := *code
	r.codes = append(r.codes, &cp)
	return code, true, nil
}

func (r *fakeCodeRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.codes {
		if c.ID == id {
			r.codes = append(r.codes[:i], r.codes[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeCodeRepo) DeleteOutstanding(_ context.Context, userID, electionID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	kept := r.codes[:0]
	for _, c := range r.codes {
		if c.UserID == userID && c.ElectionID == electionID && !c.Used {
			n++
			continue
		}
		kept = append(kept, c)
	}
	r.codes = kept
	return n, nil
}

func (r *fakeCodeRepo) Redeem(_ context.Context, userID, electionID uuid.UUID, code string, now time.Time) (*domain.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.UserID == userID && c.ElectionID == electionID && c.Code == code && c.Live(now) {
			c.Used = true
			usedAt := now
			c.UsedAt = &usedAt
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCodeRepo) HasRedeemed(_ context.Context, userID, electionID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.UserID == userID && c.ElectionID == electionID && c.Used {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCodeRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	kept := r.codes[:0]
	for _, c := range r.codes {
		if !c.Used && c.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	r.codes = kept
	return n, nil
}

func (r *fakeCodeRepo) live(userID, electionID uuid.UUID, now time.Time) []domain.VerificationCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.VerificationCode
	for _, c := range r.codes {
		if c.UserID == userID && c.ElectionID == electionID && c.Live(now) {
			out = append(out, *c)
		}
	}
	return out
}

type fakeIncidentRepo struct {
	mu        sync.Mutex
	incidents []*domain.FraudIncident
	failWrite bool
}

func (r *fakeIncidentRepo) Insert(_ context.Context, i *domain.FraudIncident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite {
		return errors.New("connection refused")
	}
	cp := *i
	r.incidents = append(r.incidents, &cp)
	return nil
}

func (r *fakeIncidentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.FraudIncident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.incidents {
		if i.ID == id {
			cp := *i
			return &cp, nil
		}
	}
	return nil, domain.ErrIncidentNotFound
}

func (r *fakeIncidentRepo) List(_ context.Context, f ports.IncidentFilter, limit, offset int) ([]*domain.FraudIncident, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*domain.FraudIncident
	for _, i := range r.incidents {
		if f.Category != nil && i.Category != *f.Category {
			continue
		}
		if f.Severity != nil && i.Severity != *f.Severity {
			continue
		}
		if f.Resolved != nil && i.Resolution.Resolved != *f.Resolved {
			continue
		}
		if f.UserID != nil && i.UserID != *f.UserID {
			continue
		}
		if f.ElectionID != nil && (i.ElectionID == nil || *i.ElectionID != *f.ElectionID) {
			continue
		}
		cp := *i
		matched = append(matched, &cp)
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *fakeIncidentRepo) CountForPairSince(_ context.Context, userID, electionID uuid.UUID, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, i := range r.incidents {
		if i.UserID == userID && i.ElectionID != nil && *i.ElectionID == electionID && !i.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeIncidentRepo) DistinctUsersByAddressSince(_ context.Context, electionID uuid.UUID, ip string, since time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[uuid.UUID]struct{}{}
	var out []uuid.UUID
	for _, i := range r.incidents {
		if i.ElectionID == nil || *i.ElectionID != electionID || i.Provenance.IPAddress != ip || i.CreatedAt.Before(since) {
			continue
		}
		if _, ok := seen[i.UserID]; !ok {
			seen[i.UserID] = struct{}{}
			out = append(out, i.UserID)
		}
	}
	return out, nil
}

func (r *fakeIncidentRepo) UpdateResolution(_ context.Context, id uuid.UUID, from bool, res domain.Resolution) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.incidents {
		if i.ID == id {
			if i.Resolution.Resolved != from {
				return false, nil
			}
			i.Resolution = res
			return true, nil
		}
	}
	return false, domain.ErrIncidentNotFound
}

func (r *fakeIncidentRepo) UpdateNotes(_ context.Context, id uuid.UUID, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.incidents {
		if i.ID == id {
			i.Resolution.Notes = notes
			return nil
		}
	}
	return domain.ErrIncidentNotFound
}

func (r *fakeIncidentRepo) ResolveMany(_ context.Context, ids []uuid.UUID, res domain.Resolution) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[uuid.UUID]struct{}{}
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var n int64
	for _, i := range r.incidents {
		if _, ok := want[i.ID]; ok && !i.Resolution.Resolved {
			i.Resolution = res
			n++
		}
	}
	return n, nil
}

func (r *fakeIncidentRepo) Statistics(_ context.Context) (*domain.IncidentStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.IncidentStatistics{
		ByCategory: map[domain.IncidentCategory]domain.CountBreakdown{},
		BySeverity: map[domain.Severity]domain.CountBreakdown{},
	}
	add := func(b domain.CountBreakdown, resolved bool) domain.CountBreakdown {
		b.Total++
		if resolved {
			b.Resolved++
		} else {
			b.Unresolved++
		}
		return b
	}
	for _, i := range r.incidents {
		stats.CountBreakdown = add(stats.CountBreakdown, i.Resolution.Resolved)
		stats.ByCategory[i.Category] = add(stats.ByCategory[i.Category], i.Resolution.Resolved)
		stats.BySeverity[i.Severity] = add(stats.BySeverity[i.Severity], i.Resolution.Resolved)
	}
	return stats, nil
}

func (r *fakeIncidentRepo) byCategory(c domain.IncidentCategory) []domain.FraudIncident {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.FraudIncident
	for _, i := range r.incidents {
		if i.Category == c {
			out = append(out, *i)
		}
	}
	return out
}

func (r *fakeIncidentRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.incidents)
}

type sentMessage struct {
	destination string
	kind        ports.TemplateKind
	params      map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[ports.TemplateKind]error
}

func (n *fakeNotifier) Send(_ context.Context, destination string, kind ports.TemplateKind, params map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[kind]; err != nil {
		return err
	}
	n.sent = append(n.sent, sentMessage{destination: destination, kind: kind, params: params})
	return nil
}

func (n *fakeNotifier) messages(kind ports.TemplateKind) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.sent {
		if m.kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type publishedEvent struct {
	channel ports.Channel
	event   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(channel ports.Channel, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{channel: channel, event: event, payload: payload})
}

func (p *fakePublisher) on(channel ports.Channel) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.channel == channel {
			out = append(out, e)
		}
	}
	return out
}

var baseTime = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	clock     *clock.FakeClock
	elections *fakeElectionRepo
	ballots   *fakeBallotRepo
	codes     *fakeCodeRepo
	incidents *fakeIncidentRepo
	notifier  *fakeNotifier
	publisher *fakePublisher
	tasks     *Tasks

	fraud     ports.FraudRecorder
	codeSvc   ports.CodeService
	tally     ports.TallyService
	votes     ports.VoteService
	admin     ports.ElectionService
	incidentS ports.IncidentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := discardLogger()
	h := &harness{
		clock:     clock.Fake(baseTime),
		elections: newFakeElectionRepo(),
		codes:     &fakeCodeRepo{},
		incidents: &fakeIncidentRepo{},
		notifier:  &fakeNotifier{fail: map[ports.TemplateKind]error{}},
		publisher: &fakePublisher{},
		tasks:     NewTasks(logger, time.Second),
	}
	h.ballots = newFakeBallotRepo(h.elections)

	h.fraud = NewFraudRecorder(h.incidents, h.publisher, h.clock, DefaultFraudPolicy(), logger)
	h.codeSvc = NewCodeService(h.elections, h.ballots, h.codes, h.notifier, h.clock, DefaultMarkerTTL, logger)
	h.tally = NewTallyService(h.elections, h.ballots, h.publisher, h.clock)
	h.votes = NewVoteService(VoteDependencies{
		Elections: h.elections,
		Ballots:   h.ballots,
		Codes:     h.codes,
		Fraud:     h.fraud,
		Tally:     h.tally,
		Notifier:  h.notifier,
		Tasks:     h.tasks,
		Clock:     h.clock,
		Logger:    logger,
	})
	h.admin = NewElectionService(ElectionDependencies{
		Elections: h.elections,
		Ballots:   h.ballots,
		Tally:     h.tally,
		Publisher: h.publisher,
		Tasks:     h.tasks,
		Clock:     h.clock,
		Logger:    logger,
	})
	h.incidentS = NewIncidentService(h.incidents, h.publisher, h.clock, logger)

	t.Cleanup(h.tasks.Wait)
	return h
}

// ongoingElection stores an election open from an hour ago until an hour
// from now.
func (h *harness) ongoingElection(t *testing.T, ranges ...domain.AgeRange) *domain.Election {
	t.Helper()
	e := &domain.Election{
		ID:                uuid.New(),
		Title:             "Board Election",
		Candidates:        []string{"Alice", "Bob", "Carol"},
		StartTime:         baseTime.Add(-time.Hour),
		EndTime:           baseTime.Add(time.Hour),
		Status:            domain.StatusActive,
		EligibleAgeRanges: ranges,
		CreatedAt:         baseTime.Add(-2 * time.Hour),
	}
	require.NoError(t, h.elections.Save(context.Background(), e))
	return e
}

func newVoter(age int) *domain.User {
	dob := baseTime.AddDate(-age, 0, -1)
	return &domain.User{
		ID:          uuid.New(),
		Email:       "voter@example.com",
		Name:        "Voter",
		Role:        domain.RoleVoter,
		DateOfBirth: &dob,
	}
}

// verify runs issue and verify for the pair and returns the marker token.
func (h *harness) verify(t *testing.T, voter *domain.User, electionID uuid.UUID) string {
	t.Helper()
	ctx := context.Background()

	_, err := h.codeSvc.Issue(ctx, voter, electionID)
	require.NoError(t, err)
	sent := h.notifier.messages(ports.TemplateVerificationCode)
	require.NotEmpty(t, sent)

	marker, err := h.codeSvc.Verify(ctx, voter, electionID, sent[len(sent)-1].params["code"])
	require.NoError(t, err)
	return marker.Token
}

func (h *harness) castInput(voter *domain.User, electionID uuid.UUID, option, token string) ports.CastVoteInput {
	return ports.CastVoteInput{
		ElectionID:        electionID,
		Voter:             voter,
		Option:            option,
		FaceVerified:      true,
		VerificationToken: token,
		Provenance:        domain.Provenance{IPAddress: "10.0.0.1", UserAgent: "test"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
