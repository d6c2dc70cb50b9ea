package extraction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"kycflow/internal/kyc/models"
)

// PostgresStore persists extraction records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed extraction store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertColumns = `
	INSERT INTO kyc_extractions (
		session_id, fields, face_width, face_height, face_left, face_top,
		status, bucket, object_key, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (s *PostgresStore) Upsert(ctx context.Context, record *models.ExtractionRecord) error {
	args, err := recordArgs(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertColumns+`
		ON CONFLICT (session_id) DO UPDATE SET
			fields = EXCLUDED.fields,
			face_width = EXCLUDED.face_width,
			face_height = EXCLUDED.face_height,
			face_left = EXCLUDED.face_left,
			face_top = EXCLUDED.face_top,
			status = EXCLUDED.status,
			bucket = EXCLUDED.bucket,
			object_key = EXCLUDED.object_key,
			updated_at = EXCLUDED.updated_at`, args...)
	if err != nil {
		return fmt.Errorf("upsert extraction: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, record *models.ExtractionRecord) (bool, error) {
	args, err := recordArgs(record)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, insertColumns+` ON CONFLICT (session_id) DO NOTHING`, args...)
	if err != nil {
		return false, fmt.Errorf("insert extraction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert extraction: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) FindBySessionID(ctx context.Context, id models.SessionID) (*models.ExtractionRecord, error) {
	var (
		record                   models.ExtractionRecord
		rawFields                []byte
		width, height, left, top sql.NullFloat64
		status                   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT fields, face_width, face_height, face_left, face_top,
			status, bucket, object_key, updated_at
		FROM kyc_extractions
		WHERE session_id = $1`, string(id)).Scan(
		&rawFields, &width, &height, &left, &top,
		&status, &record.Document.Bucket, &record.Document.Key, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find extraction: %w", err)
	}
	if err := json.Unmarshal(rawFields, &record.Fields); err != nil {
		return nil, fmt.Errorf("decode extraction fields: %w", err)
	}
	record.SessionID = id
	record.Status = models.ExtractionStatus(status)
	record.UpdatedAt = record.UpdatedAt.UTC()
	if width.Valid && height.Valid && left.Valid && top.Valid {
		record.FaceBoundingBox = &models.BoundingBox{
			Width:  width.Float64,
			Height: height.Float64,
			Left:   left.Float64,
			Top:    top.Float64,
		}
	}
	return &record, nil
}

func recordArgs(record *models.ExtractionRecord) ([]any, error) {
	if record == nil {
		return nil, fmt.Errorf("extraction record is required")
	}
	fields := record.Fields
	if fields == nil {
		fields = models.ExtractedFields{}
	}
	rawFields, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode extraction fields: %w", err)
	}
	var width, height, left, top sql.NullFloat64
	if box := record.FaceBoundingBox; box != nil {
		width = sql.NullFloat64{Float64: box.Width, Valid: true}
		height = sql.NullFloat64{Float64: box.Height, Valid: true}
		left = sql.NullFloat64{Float64: box.Left, Valid: true}
		top = sql.NullFloat64{Float64: box.Top, Valid: true}
	}
	return []any{
		string(record.SessionID), rawFields, width, height, left, top,
		string(record.Status), record.Document.Bucket, record.Document.Key, record.UpdatedAt,
	}, nil
}
