package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"kycflow/internal/kyc/models"
)

const uniqueViolation = "23505"

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kyc_sessions (
			session_id, file_name, document_type, country_code,
			status, status_rank, liveness_session_id, liveness_selfie_ref, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(session.ID),
		session.FileName,
		session.DocumentType,
		session.CountryCode,
		string(session.Status),
		session.Status.Rank(),
		nullString(session.LivenessSessionID),
		nullString(session.LivenessSelfieRef),
		session.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id models.SessionID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, file_name, document_type, country_code, status,
			liveness_session_id, liveness_selfie_ref, created_at
		FROM kyc_sessions
		WHERE session_id = $1`, string(id))
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return session, nil
}

// RecordLiveness sets the liveness fields only while they are unset, and
// advances the status only when its rank is higher.
func (s *PostgresStore) RecordLiveness(ctx context.Context, id models.SessionID, livenessSessionID, selfieRef string) (*models.Session, error) {
	next := models.SessionLivenessStarted
	_, err := s.db.ExecContext(ctx, `
		UPDATE kyc_sessions SET
			liveness_session_id = $2,
			liveness_selfie_ref = $3,
			status = CASE WHEN status_rank < $5 THEN $4 ELSE status END,
			status_rank = GREATEST(status_rank, $5)
		WHERE session_id = $1 AND liveness_selfie_ref IS NULL`,
		string(id), livenessSessionID, selfieRef, string(next), next.Rank(),
	)
	if err != nil {
		return nil, fmt.Errorf("record liveness: %w", err)
	}
	return s.FindByID(ctx, id)
}

// AdvanceStatus raises the status rank and never lowers it.
func (s *PostgresStore) AdvanceStatus(ctx context.Context, id models.SessionID, status models.SessionStatus) (*models.Session, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE kyc_sessions SET status = $2, status_rank = $3
		WHERE session_id = $1 AND status_rank < $3`,
		string(id), string(status), status.Rank(),
	)
	if err != nil {
		return nil, fmt.Errorf("advance session status: %w", err)
	}
	return s.FindByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session           models.Session
		id, status        string
		livenessSessionID sql.NullString
		selfieRef         sql.NullString
	)
	if err := row.Scan(
		&id,
		&session.FileName,
		&session.DocumentType,
		&session.CountryCode,
		&status,
		&livenessSessionID,
		&selfieRef,
		&session.CreatedAt,
	); err != nil {
		return nil, err
	}
	session.ID = models.SessionID(id)
	session.Status = models.SessionStatus(status)
	session.LivenessSessionID = livenessSessionID.String
	session.LivenessSelfieRef = selfieRef.String
	session.CreatedAt = session.CreatedAt.UTC()
	return &session, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
