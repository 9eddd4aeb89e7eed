package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type codeRepository struct {
	db *sql.DB
}

func NewCodeRepository(db *sql.DB) ports.CodeRepository {
	return &codeRepository{
		db: db,
	}
}

const codeColumns = `id, user_id, election_id, email, code, used, used_at, expires_at, created_at`

// CreateIfNoneLive leans on verification_codes_unused_idx: expired unused
// codes for the pair are cleared first, then the insert either wins or yields
// to the unused code another request stored.
func (r *codeRepository) CreateIfNoneLive(ctx context.Context, code *domain.VerificationCode, now time.Time) (*domain.VerificationCode, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM verification_codes
		WHERE user_id = $1 AND election_id = $2 AND used = FALSE AND expires_at <= $3
	`, code.UserID, code.ElectionID, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to clear expired codes: %w", err)
	}

	// The conflicting row can vanish between the insert and the read when
	// its owner rolls back an undelivered code, so try once more.
	var (
		live    *domain.VerificationCode
		created bool
	)
	for attempt := 0; attempt < codeCreateAttempts; attempt++ {
		live, created, err = insertOrFetchCode(ctx, tx, code)
		if !errors.Is(err, sql.ErrNoRows) {
			break
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to store verification code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return live, created, nil
}

const codeCreateAttempts = 2

// insertOrFetchCode returns sql.ErrNoRows when the insert conflicted but the
// conflicting unused row is already gone.
func insertOrFetchCode(ctx context.Context, tx *sql.Tx, code *domain.VerificationCode) (*domain.VerificationCode, bool, error) {
	live, err := scanCode(tx.QueryRowContext(ctx, `
		INSERT INTO verification_codes (id, user_id, election_id, email, code, used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
		ON CONFLICT (user_id, election_id) WHERE used = FALSE DO NOTHING
		RETURNING `+codeColumns,
		code.ID, code.UserID, code.ElectionID, code.Email, code.Code, code.ExpiresAt, code.CreatedAt,
	))
	if err == nil {
		return live, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	live, err = scanCode(tx.QueryRowContext(ctx, `
		SELECT `+codeColumns+`
		FROM verification_codes
		WHERE user_id = $1 AND election_id = $2 AND used = FALSE
	`, code.UserID, code.ElectionID))
	if err != nil {
		return nil, false, err
	}
	return live, false, nil
}

func (r *codeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete verification code: %w", err)
	}
	return nil
}

func (r *codeRepository) DeleteOutstanding(ctx context.Context, userID, electionID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM verification_codes
		WHERE user_id = $1 AND election_id = $2 AND used = FALSE
	`, userID, electionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete outstanding codes: %w", err)
	}
	return res.RowsAffected()
}

// Redeem flips a single matching live code to used. Concurrent callers race
// on the row lock and only one sees it unused.
func (r *codeRepository) Redeem(ctx context.Context, userID, electionID uuid.UUID, code string, now time.Time) (*domain.VerificationCode, error) {
	redeemed, err := scanCode(r.db.QueryRowContext(ctx, `
		UPDATE verification_codes
		SET used = TRUE, used_at = $4
		WHERE user_id = $1 AND election_id = $2 AND code = $3 AND used = FALSE AND expires_at > $4
		RETURNING `+codeColumns,
		userID, electionID, code, now,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to redeem verification code: %w", err)
	}
	return redeemed, nil
}

func (r *codeRepository) HasRedeemed(ctx context.Context, userID, electionID uuid.UUID) (bool, error) {
	query := `SELECT 1 FROM verification_codes WHERE user_id = $1 AND election_id = $2 AND used = TRUE LIMIT 1`
	var exists int
	err := r.db.QueryRowContext(ctx, query, userID, electionID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check redeemed code: %w", err)
	}
	return true, nil
}

func (r *codeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE used = FALSE AND expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}
	return res.RowsAffected()
}

func scanCode(row rowScanner) (*domain.VerificationCode, error) {
	var (
		c      domain.VerificationCode
		usedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.UserID, &c.ElectionID, &c.Email, &c.Code, &c.Used, &usedAt, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return &c, nil
}
