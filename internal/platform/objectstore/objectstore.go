// Package objectstore provides addressable blob storage for patient artifacts
// (original uploads and FHIR JSON records). Keys are hierarchical strings of
// the form patients/{patientId}/{category}/{id}[.json]. It defines the Store
// interface, an S3-backed implementation, and an in-memory implementation
// suitable for testing and development.
package objectstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrEmptyKey       = errors.New("object key is required")
)

// ContentTypeFHIRJSON is the content type used for persisted FHIR resources.
const ContentTypeFHIRJSON = "application/fhir+json"

// Store defines the contract for object storage backends.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string, max int) ([]string, error)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedObject struct {
	body        []byte
	contentType string
}

// MemStore is a thread-safe, in-memory Store for testing/dev.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string]storedObject
}

// NewMemStore returns a ready-to-use MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]storedObject)}
}

func (s *MemStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return ErrEmptyKey
	}
	cp := make([]byte, len(body))
	copy(cp, body)

	s.mu.Lock()
	s.objects[key] = storedObject{body: cp, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrObjectNotFound
	}
	cp := make([]byte, len(obj.body))
	copy(cp, obj.body)
	return cp, nil
}

// List returns keys under prefix in lexicographic order, mirroring S3 listing
// semantics. max <= 0 means no limit.
func (s *MemStore) List(_ context.Context, prefix string, max int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if max > 0 && len(keys) > max {
		keys = keys[:max]
	}
	return keys, nil
}

// Len reports the number of stored objects. Test helper.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
