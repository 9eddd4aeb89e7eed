package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type electionRepository struct {
	db *sql.DB
}

func NewElectionRepository(db *sql.DB) ports.ElectionRepository {
	return &electionRepository{
		db: db,
	}
}

const electionColumns = `id, title, candidates, start_time, end_time, status, eligible_age_ranges, results_released, created_at, updated_at`

func (r *electionRepository) Save(ctx context.Context, e *domain.Election) error {
	ranges, err := marshalRanges(e.EligibleAgeRanges)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO elections (id, title, candidates, start_time, end_time, status, eligible_age_ranges, results_released, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.Title, pq.Array(e.Candidates), e.StartTime, e.EndTime, e.Status, ranges, e.ResultsReleased, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert election: %w", err)
	}
	return nil
}

// Modify serializes administrative changes with SELECT ... FOR UPDATE.
// Ballot inserts take FOR SHARE on the same row, so a change and an
// admission never interleave.
func (r *electionRepository) Modify(ctx context.Context, id uuid.UUID, fn func(*domain.Election) error) (*domain.Election, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + electionColumns + ` FROM elections WHERE id = $1 FOR UPDATE`
	e, err := scanElection(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrElectionNotFound
		}
		return nil, fmt.Errorf("failed to lock election: %w", err)
	}

	if err := fn(e); err != nil {
		return nil, err
	}

	ranges, err := marshalRanges(e.EligibleAgeRanges)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE elections
		SET title = $2, candidates = $3, start_time = $4, end_time = $5, status = $6,
		    eligible_age_ranges = $7, results_released = $8, updated_at = $9
		WHERE id = $1
	`, e.ID, e.Title, pq.Array(e.Candidates), e.StartTime, e.EndTime, e.Status, ranges, e.ResultsReleased, e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update election: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return e, nil
}

func (r *electionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Election, error) {
	query := `SELECT ` + electionColumns + ` FROM elections WHERE id = $1`
	e, err := scanElection(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrElectionNotFound
		}
		return nil, fmt.Errorf("failed to get election: %w", err)
	}
	return e, nil
}

func (r *electionRepository) List(ctx context.Context) ([]*domain.Election, error) {
	query := `SELECT ` + electionColumns + ` FROM elections ORDER BY start_time DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list elections: %w", err)
	}
	defer rows.Close()

	var elections []*domain.Election
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan election: %w", err)
		}
		elections = append(elections, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating elections: %w", err)
	}
	return elections, nil
}

// Delete removes the election; ballots and codes go with it through the
// foreign keys.
func (r *electionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM elections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete election: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElection(row rowScanner) (*domain.Election, error) {
	var (
		e      domain.Election
		ranges []byte
	)
	err := row.Scan(
		&e.ID, &e.Title, pq.Array(&e.Candidates), &e.StartTime, &e.EndTime, &e.Status,
		&ranges, &e.ResultsReleased, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ranges, &e.EligibleAgeRanges); err != nil {
		return nil, fmt.Errorf("failed to decode age ranges: %w", err)
	}
	e.StartTime = e.StartTime.UTC()
	e.EndTime = e.EndTime.UTC()
	return &e, nil
}

func marshalRanges(ranges []domain.AgeRange) ([]byte, error) {
	if ranges == nil {
		ranges = []domain.AgeRange{}
	}
	b, err := json.Marshal(ranges)
	if err != nil {
		return nil, fmt.Errorf("failed to encode age ranges: %w", err)
	}
	return b, nil
}
