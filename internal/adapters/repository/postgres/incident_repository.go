package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type incidentRepository struct {
	db *sql.DB
}

func NewIncidentRepository(db *sql.DB) ports.IncidentRepository {
	return &incidentRepository{
		db: db,
	}
}

const incidentColumns = `id, user_id, election_id, category, severity, details, metadata, ip_address, user_agent,
	resolved, resolved_by, resolved_at, notes, created_at`

func (r *incidentRepository) Insert(ctx context.Context, i *domain.FraudIncident) error {
	metadata, err := json.Marshal(i.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode incident metadata: %w", err)
	}

	query := `
		INSERT INTO fraud_incidents (id, user_id, election_id, category, severity, details, metadata, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		i.ID, i.UserID, nullUUID(i.ElectionID), i.Category, i.Severity, i.Details, metadata,
		i.Provenance.IPAddress, i.Provenance.UserAgent, i.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	return nil
}

func (r *incidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FraudIncident, error) {
	query := `SELECT ` + incidentColumns + ` FROM fraud_incidents WHERE id = $1`
	i, err := scanIncident(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return i, nil
}

func (r *incidentRepository) List(ctx context.Context, filter ports.IncidentFilter, limit, offset int) ([]*domain.FraudIncident, int64, error) {
	where, args := incidentWhere(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fraud_incidents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM fraud_incidents%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		incidentColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*domain.FraudIncident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, i)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating incidents: %w", err)
	}
	return incidents, total, nil
}

func (r *incidentRepository) CountForPairSince(ctx context.Context, userID, electionID uuid.UUID, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM fraud_incidents
		WHERE user_id = $1 AND election_id = $2 AND created_at >= $3
	`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID, electionID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}
	return n, nil
}

func (r *incidentRepository) DistinctUsersByAddressSince(ctx context.Context, electionID uuid.UUID, ipAddress string, since time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM fraud_incidents
		WHERE election_id = $1 AND ip_address = $2 AND created_at >= $3
		GROUP BY user_id
		ORDER BY MIN(created_at)
	`
	rows, err := r.db.QueryContext(ctx, query, electionID, ipAddress, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents by address: %w", err)
	}
	defer rows.Close()

	var users []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// UpdateResolution applies res only while the stored resolved flag still
// equals from, so a concurrent resolve or unresolve cannot be overwritten.
func (r *incidentRepository) UpdateResolution(ctx context.Context, id uuid.UUID, from bool, res domain.Resolution) (bool, error) {
	query := `
		UPDATE fraud_incidents
		SET resolved = $2, resolved_by = $3, resolved_at = $4, notes = $5
		WHERE id = $1 AND resolved = $6
	`
	result, err := r.db.ExecContext(ctx, query, id, res.Resolved, nullUUID(res.ResolvedBy), nullTime(res.ResolvedAt), res.Notes, from)
	if err != nil {
		return false, fmt.Errorf("failed to update incident: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update incident: %w", err)
	}
	if n == 0 {
		return false, r.mustExist(ctx, id)
	}
	return true, nil
}

// UpdateNotes touches only the notes column.
func (r *incidentRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE fraud_incidents SET notes = $2 WHERE id = $1`, id, notes)
	if err != nil {
		return fmt.Errorf("failed to update incident notes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update incident notes: %w", err)
	}
	if n == 0 {
		return domain.ErrIncidentNotFound
	}
	return nil
}

func (r *incidentRepository) mustExist(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM fraud_incidents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check incident: %w", err)
	}
	if !exists {
		return domain.ErrIncidentNotFound
	}
	return nil
}

func (r *incidentRepository) ResolveMany(ctx context.Context, ids []uuid.UUID, res domain.Resolution) (int64, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	query := `
		UPDATE fraud_incidents
		SET resolved = TRUE, resolved_by = $2, resolved_at = $3, notes = $4
		WHERE id = ANY($1::uuid[]) AND resolved = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, pq.Array(raw), nullUUID(res.ResolvedBy), nullTime(res.ResolvedAt), res.Notes)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve incidents: %w", err)
	}
	return result.RowsAffected()
}

func (r *incidentRepository) Statistics(ctx context.Context) (*domain.IncidentStatistics, error) {
	query := `
		SELECT category, severity, resolved, COUNT(*)
		FROM fraud_incidents
		GROUP BY category, severity, resolved
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate incidents: %w", err)
	}
	defer rows.Close()

	stats := &domain.IncidentStatistics{
		ByCategory: map[domain.IncidentCategory]domain.CountBreakdown{},
		BySeverity: map[domain.Severity]domain.CountBreakdown{},
	}
	for rows.Next() {
		var (
			category domain.IncidentCategory
			severity domain.Severity
			resolved bool
			n        int64
		)
		if err := rows.Scan(&category, &severity, &resolved, &n); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		stats.CountBreakdown = tallyBreakdown(stats.CountBreakdown, resolved, n)
		stats.ByCategory[category] = tallyBreakdown(stats.ByCategory[category], resolved, n)
		stats.BySeverity[severity] = tallyBreakdown(stats.BySeverity[severity], resolved, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregates: %w", err)
	}
	return stats, nil
}

func tallyBreakdown(b domain.CountBreakdown, resolved bool, n int64) domain.CountBreakdown {
	b.Total += n
	if resolved {
		b.Resolved += n
	} else {
		b.Unresolved += n
	}
	return b
}

func incidentWhere(f ports.IncidentFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Category != nil {
		add("category = $%d", *f.Category)
	}
	if f.Severity != nil {
		add("severity = $%d", *f.Severity)
	}
	if f.Resolved != nil {
		add("resolved = $%d", *f.Resolved)
	}
	if f.ElectionID != nil {
		add("election_id = $%d", *f.ElectionID)
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanIncident(row rowScanner) (*domain.FraudIncident, error) {
	var (
		i          domain.FraudIncident
		electionID uuid.NullUUID
		resolvedBy uuid.NullUUID
		resolvedAt sql.NullTime
		metadata   []byte
	)
	err := row.Scan(
		&i.ID, &i.UserID, &electionID, &i.Category, &i.Severity, &i.Details, &metadata,
		&i.Provenance.IPAddress, &i.Provenance.UserAgent,
		&i.Resolution.Resolved, &resolvedBy, &resolvedAt, &i.Resolution.Notes, &i.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if electionID.Valid {
		id := electionID.UUID
		i.ElectionID = &id
	}
	if resolvedBy.Valid {
		id := resolvedBy.UUID
		i.Resolution.ResolvedBy = &id
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		i.Resolution.ResolvedAt = &t
	}
	if err := json.Unmarshal(metadata, &i.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode incident metadata: %w", err)
	}
	return &i, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
