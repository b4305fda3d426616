// Package recordstore provides the indexed record store backing the patient
// and document indexes. Two logical tables exist: the user/patient index
// (keyed by user id) and the document index (keyed by user id + document id,
// secondary-indexed by user id + content fingerprint). Backends: DynamoDB,
// Postgres, and an in-memory implementation for testing and development.
package recordstore

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrUserNotFound = errors.New("user record not found")
	// ErrIndexUnavailable marks lookup failures where the index itself could
	// not be reached, as opposed to a clean not-found result.
	ErrIndexUnavailable = errors.New("record index unavailable")
)

// UserRecord is one item in the user/patient index.
type UserRecord struct {
	UserID        string `json:"user_id" dynamodbav:"user_id"`
	PatientID     string `json:"patient_id" dynamodbav:"patient_id"`
	Username      string `json:"username" dynamodbav:"username"`
	Email         string `json:"email" dynamodbav:"email"`
	PasswordHash  string `json:"password_hash,omitempty" dynamodbav:"password_hash,omitempty"`
	PatientKey    string `json:"s3_patient_key" dynamodbav:"s3_patient_key"`
	CreatedAt     string `json:"created_at" dynamodbav:"created_at"`
	DocumentCount int    `json:"document_count" dynamodbav:"document_count"`
}

// DocumentRecord is one item in the document index.
type DocumentRecord struct {
	UserID           string `json:"user_id" dynamodbav:"user_id"`
	DocumentID       string `json:"document_id" dynamodbav:"document_id"`
	PatientID        string `json:"patient_id" dynamodbav:"patient_id"`
	Fingerprint      string `json:"doc_hash" dynamodbav:"doc_hash"`
	DocumentType     string `json:"document_type" dynamodbav:"document_type"`
	FileName         string `json:"file_name" dynamodbav:"file_name"`
	FHIRKey          string `json:"s3_fhir_key,omitempty" dynamodbav:"s3_fhir_key,omitempty"`
	OriginalKey      string `json:"s3_original_key" dynamodbav:"s3_original_key"`
	UploadTimestamp  string `json:"upload_timestamp" dynamodbav:"upload_timestamp"`
	ObservationCount int    `json:"observation_count" dynamodbav:"observation_count"`
	TestDate         string `json:"test_date,omitempty" dynamodbav:"test_date,omitempty"`
	// ExtractedText holds a bounded excerpt used for chat context assembly.
	ExtractedText string `json:"extracted_text,omitempty" dynamodbav:"extracted_text,omitempty"`
}

// Store defines the contract for record index backends.
type Store interface {
	// PutUser creates or replaces a user index item.
	PutUser(ctx context.Context, u *UserRecord) error
	// GetUser returns the user item or ErrUserNotFound.
	GetUser(ctx context.Context, userID string) (*UserRecord, error)
	// GetUserByUsername returns the user item matching username or ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (*UserRecord, error)
	// IncrementDocumentCount atomically bumps the user's document counter.
	IncrementDocumentCount(ctx context.Context, userID string) error

	// PutDocument creates or replaces a document index item.
	PutDocument(ctx context.Context, d *DocumentRecord) error
	// ListDocuments returns up to limit document items for the user, most
	// recent upload first.
	ListDocuments(ctx context.Context, userID string, limit int) ([]*DocumentRecord, error)
	// FindByFingerprint queries the fingerprint secondary index for items
	// matching (userID, fingerprint).
	FindByFingerprint(ctx context.Context, userID, fingerprint string) ([]*DocumentRecord, error)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemStore is a thread-safe, in-memory Store for testing/dev.
type MemStore struct {
	mu    sync.RWMutex
	users map[string]UserRecord
	docs  map[string][]DocumentRecord // keyed by user id

	// FailFingerprintLookup simulates an unavailable secondary index.
	FailFingerprintLookup bool
}

// NewMemStore returns a ready-to-use MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		users: make(map[string]UserRecord),
		docs:  make(map[string][]DocumentRecord),
	}
}

func (s *MemStore) PutUser(_ context.Context, u *UserRecord) error {
	s.mu.Lock()
	s.users[u.UserID] = *u
	s.mu.Unlock()
	return nil
}

func (s *MemStore) GetUser(_ context.Context, userID string) (*UserRecord, error) {
	s.mu.RLock()
	u, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemStore) GetUserByUsername(_ context.Context, username string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			out := u
			return &out, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemStore) IncrementDocumentCount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.DocumentCount++
	s.users[userID] = u
	return nil
}

func (s *MemStore) PutDocument(_ context.Context, d *DocumentRecord) error {
	s.mu.Lock()
	s.docs[d.UserID] = append(s.docs[d.UserID], *d)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) ListDocuments(_ context.Context, userID string, limit int) ([]*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.docs[userID]
	out := make([]*DocumentRecord, 0, len(items))
	for i := range items {
		d := items[i]
		out = append(out, &d)
	}
	// Most recent upload first; timestamps are RFC 3339 so string order works.
	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadTimestamp > out[j].UploadTimestamp
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) FindByFingerprint(_ context.Context, userID, fingerprint string) ([]*DocumentRecord, error) {
	if s.FailFingerprintLookup {
		return nil, ErrIndexUnavailable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*DocumentRecord
	for i := range s.docs[userID] {
		if s.docs[userID][i].Fingerprint == fingerprint {
			d := s.docs[userID][i]
			out = append(out, &d)
		}
	}
	return out, nil
}

// DocumentCount reports the number of stored documents for a user. Test helper.
func (s *MemStore) DocumentCountFor(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[userID])
}
