package deadline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kycflow/internal/kyc/models"
)

// PostgresStore keeps deadlines in kyc_decision_deadlines.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed deadline store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, id models.SessionID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kyc_decision_deadlines (session_id, due_at)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET due_at = EXCLUDED.due_at`,
		string(id), normalize(at))
	if err != nil {
		return fmt.Errorf("put deadline: %w", err)
	}
	return nil
}

func (s *PostgresStore) Due(ctx context.Context, now time.Time, limit int) ([]models.Deadline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, due_at FROM kyc_decision_deadlines
		WHERE due_at <= $1
		ORDER BY due_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due deadlines: %w", err)
	}
	defer rows.Close()

	var due []models.Deadline
	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan deadline: %w", err)
		}
		due = append(due, models.Deadline{SessionID: models.SessionID(id), DueAt: at.UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due deadlines: %w", err)
	}
	return due, nil
}

func (s *PostgresStore) Remove(ctx context.Context, id models.SessionID, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM kyc_decision_deadlines WHERE session_id = $1 AND due_at = $2`,
		string(id), normalize(at)); err != nil {
		return fmt.Errorf("remove deadline: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id models.SessionID) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM kyc_decision_deadlines WHERE session_id = $1`, string(id)); err != nil {
		return fmt.Errorf("delete deadline: %w", err)
	}
	return nil
}
