package result

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kycflow/internal/kyc/models"
)

// PostgresStore persists results in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed result store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, result *models.Result) (*models.Result, bool, error) {
	if result == nil {
		return nil, false, fmt.Errorf("result is required")
	}
	var similarity sql.NullFloat64
	if result.Similarity != nil {
		similarity = sql.NullFloat64{Float64: *result.Similarity, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kyc_results (session_id, final_status, reason, similarity, decided_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING`,
		string(result.SessionID), string(result.FinalStatus), result.Reason, similarity, result.DecidedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("create result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create result: %w", err)
	}
	stored, err := s.FindBySessionID(ctx, result.SessionID)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

func (s *PostgresStore) FindBySessionID(ctx context.Context, id models.SessionID) (*models.Result, error) {
	var (
		result      models.Result
		finalStatus string
		similarity  sql.NullFloat64
		notifiedAt  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT final_status, reason, similarity, decided_at, notified_at
		FROM kyc_results
		WHERE session_id = $1`, string(id)).Scan(
		&finalStatus, &result.Reason, &similarity, &result.DecidedAt, &notifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find result: %w", err)
	}
	result.SessionID = id
	result.FinalStatus = models.FinalStatus(finalStatus)
	result.DecidedAt = result.DecidedAt.UTC()
	if similarity.Valid {
		result.Similarity = &similarity.Float64
	}
	if notifiedAt.Valid {
		at := notifiedAt.Time.UTC()
		result.NotifiedAt = &at
	}
	return &result, nil
}

// ClaimNotification takes the publish lease while notified_at is NULL and
// any earlier lease has lapsed.
func (s *PostgresStore) ClaimNotification(ctx context.Context, id models.SessionID, now, until time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE kyc_results SET notify_claimed_until = $3
		WHERE session_id = $1
		  AND notified_at IS NULL
		  AND (notify_claimed_until IS NULL OR notify_claimed_until <= $2)`,
		string(id), now, until)
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.FindBySessionID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ConfirmNotification sets notified_at once and clears the lease.
func (s *PostgresStore) ConfirmNotification(ctx context.Context, id models.SessionID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE kyc_results
		SET notified_at = COALESCE(notified_at, $2), notify_claimed_until = NULL
		WHERE session_id = $1`, string(id), at)
	if err != nil {
		return fmt.Errorf("confirm notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm notification: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ReleaseNotification(ctx context.Context, id models.SessionID) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE kyc_results SET notify_claimed_until = NULL
		WHERE session_id = $1 AND notified_at IS NULL`, string(id)); err != nil {
		return fmt.Errorf("release notification: %w", err)
	}
	return nil
}
