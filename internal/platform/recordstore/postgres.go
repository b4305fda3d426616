package recordstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Postgres-backed Store for deployments that keep the
// record index in a relational database instead of DynamoDB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore over the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the index tables if they do not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
    user_id        TEXT PRIMARY KEY,
    patient_id     TEXT NOT NULL,
    username       TEXT NOT NULL UNIQUE,
    email          TEXT NOT NULL DEFAULT '',
    password_hash  TEXT NOT NULL DEFAULT '',
    patient_key    TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL DEFAULT '',
    document_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS documents (
    user_id           TEXT NOT NULL,
    document_id       TEXT NOT NULL,
    patient_id        TEXT NOT NULL,
    doc_hash          TEXT NOT NULL,
    document_type     TEXT NOT NULL DEFAULT '',
    file_name         TEXT NOT NULL DEFAULT '',
    fhir_key          TEXT NOT NULL DEFAULT '',
    original_key      TEXT NOT NULL DEFAULT '',
    upload_timestamp  TEXT NOT NULL DEFAULT '',
    observation_count INTEGER NOT NULL DEFAULT 0,
    test_date         TEXT NOT NULL DEFAULT '',
    extracted_text    TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (user_id, document_id)
);
CREATE INDEX IF NOT EXISTS documents_user_hash_idx ON documents (user_id, doc_hash);`)
	if err != nil {
		return fmt.Errorf("ensure record index schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutUser(ctx context.Context, u *UserRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, patient_id, username, email, password_hash, patient_key, created_at, document_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			patient_key = EXCLUDED.patient_key,
			created_at = EXCLUDED.created_at,
			document_count = EXCLUDED.document_count`,
		u.UserID, u.PatientID, u.Username, u.Email, u.PasswordHash, u.PatientKey, u.CreatedAt, u.DocumentCount)
	if err != nil {
		return fmt.Errorf("put user %s: %w", u.UserID, err)
	}
	return nil
}

const userCols = `user_id, patient_id, username, email, password_hash, patient_key, created_at, document_count`

func scanUser(row pgx.Row) (*UserRecord, error) {
	var u UserRecord
	err := row.Scan(&u.UserID, &u.PatientID, &u.Username, &u.Email, &u.PasswordHash,
		&u.PatientKey, &u.CreatedAt, &u.DocumentCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE user_id = $1`, userID))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username))
}

func (s *PostgresStore) IncrementDocumentCount(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET document_count = document_count + 1 WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("increment document count for %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) PutDocument(ctx context.Context, d *DocumentRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (user_id, document_id, patient_id, doc_hash, document_type, file_name,
			fhir_key, original_key, upload_timestamp, observation_count, test_date, extracted_text)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (user_id, document_id) DO UPDATE SET
			doc_hash = EXCLUDED.doc_hash,
			document_type = EXCLUDED.document_type,
			file_name = EXCLUDED.file_name,
			fhir_key = EXCLUDED.fhir_key,
			original_key = EXCLUDED.original_key,
			upload_timestamp = EXCLUDED.upload_timestamp,
			observation_count = EXCLUDED.observation_count,
			test_date = EXCLUDED.test_date,
			extracted_text = EXCLUDED.extracted_text`,
		d.UserID, d.DocumentID, d.PatientID, d.Fingerprint, d.DocumentType, d.FileName,
		d.FHIRKey, d.OriginalKey, d.UploadTimestamp, d.ObservationCount, d.TestDate, d.ExtractedText)
	if err != nil {
		return fmt.Errorf("put document %s: %w", d.DocumentID, err)
	}
	return nil
}

const docCols = `user_id, document_id, patient_id, doc_hash, document_type, file_name,
	fhir_key, original_key, upload_timestamp, observation_count, test_date, extracted_text`

func scanDocuments(rows pgx.Rows) ([]*DocumentRecord, error) {
	defer rows.Close()
	var out []*DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.UserID, &d.DocumentID, &d.PatientID, &d.Fingerprint, &d.DocumentType,
			&d.FileName, &d.FHIRKey, &d.OriginalKey, &d.UploadTimestamp, &d.ObservationCount,
			&d.TestDate, &d.ExtractedText); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID string, limit int) ([]*DocumentRecord, error) {
	q := `SELECT ` + docCols + ` FROM documents WHERE user_id = $1 ORDER BY upload_timestamp DESC`
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, q+` LIMIT $2`, userID, limit)
	} else {
		rows, err = s.pool.Query(ctx, q, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", userID, err)
	}
	return scanDocuments(rows)
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, userID, fingerprint string) ([]*DocumentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+docCols+` FROM documents WHERE user_id = $1 AND doc_hash = $2`, userID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%w: fingerprint query for %s: %v", ErrIndexUnavailable, userID, err)
	}
	return scanDocuments(rows)
}
