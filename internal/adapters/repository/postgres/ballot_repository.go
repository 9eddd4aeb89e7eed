package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

const uniqueViolation = pq.ErrorCode("23505")

type ballotRepository struct {
	db *sql.DB
}

func NewBallotRepository(db *sql.DB) ports.BallotRepository {
	return &ballotRepository{
		db: db,
	}
}

// Insert relies on the ballots_election_user_key constraint; a violation is
// reported as domain.ErrDuplicateVote. The election row is share-locked for
// the duration so a suspension or candidate edit cannot slip in between the
// admission checks and the write.
func (r *ballotRepository) Insert(ctx context.Context, b *domain.Ballot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	e, err := scanElection(tx.QueryRowContext(ctx,
		`SELECT `+electionColumns+` FROM elections WHERE id = $1 FOR SHARE`, b.ElectionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrElectionNotFound
		}
		return fmt.Errorf("failed to lock election: %w", err)
	}
	if !e.IsOpen(b.CreatedAt) {
		return domain.ErrElectionNotOpen
	}
	if !e.HasCandidate(b.Option) {
		return domain.ErrInvalidOption
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ballots (id, election_id, user_id, option, verified_by_face, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.ElectionID, b.UserID, b.Option, b.VerifiedByFace, b.Provenance.IPAddress, b.Provenance.UserAgent, b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateVote
		}
		return fmt.Errorf("failed to save ballot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *ballotRepository) GetByVoter(ctx context.Context, electionID, userID uuid.UUID) (*domain.Ballot, error) {
	query := `
		SELECT id, election_id, user_id, option, verified_by_face, ip_address, user_agent, created_at
		FROM ballots
		WHERE election_id = $1 AND user_id = $2
	`
	var b domain.Ballot
	err := r.db.QueryRowContext(ctx, query, electionID, userID).Scan(
		&b.ID, &b.ElectionID, &b.UserID, &b.Option, &b.VerifiedByFace, &b.Provenance.IPAddress, &b.Provenance.UserAgent, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBallotNotFound
		}
		return nil, fmt.Errorf("failed to get ballot: %w", err)
	}
	return &b, nil
}

func (r *ballotRepository) Exists(ctx context.Context, electionID, userID uuid.UUID) (bool, error) {
	query := `SELECT 1 FROM ballots WHERE election_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	err := r.db.QueryRowContext(ctx, query, electionID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existing ballot: %w", err)
	}
	return true, nil
}

func (r *ballotRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.BallotSummary, error) {
	query := `
		SELECT b.election_id, e.title, b.option, b.created_at
		FROM ballots b
		JOIN elections e ON e.id = b.election_id
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ballots: %w", err)
	}
	defer rows.Close()

	summaries := []domain.BallotSummary{}
	for rows.Next() {
		var s domain.BallotSummary
		if err := rows.Scan(&s.ElectionID, &s.ElectionTitle, &s.Option, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ballot: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ballots: %w", err)
	}
	return summaries, nil
}

func (r *ballotRepository) CountByOption(ctx context.Context, electionID uuid.UUID) (map[string]int64, error) {
	query := `
		SELECT option, COUNT(*)
		FROM ballots
		WHERE election_id = $1
		GROUP BY option
	`
	rows, err := r.db.QueryContext(ctx, query, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count ballots: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			option string
			n      int64
		)
		if err := rows.Scan(&option, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[option] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}

func (r *ballotRepository) CountByElection(ctx context.Context, electionID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ballots WHERE election_id = $1`, electionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count ballots: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
