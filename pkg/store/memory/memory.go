package memory

import (
	"context"
	"sync"

	"github.com/finsight/pulse/pkg/store"
)

// DocumentStore is an in-memory store.DocumentStore used by tests and local
// runs without Postgres.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

// NewDocumentStore creates an empty in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]map[string][]byte)}
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.docs[collection]
	if !ok {
		return nil, store.ErrNotFound
	}
	payload, ok := coll[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return &store.Document{ID: id, Payload: out}, nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.docs[collection] = coll
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	coll[id] = stored
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if coll, ok := s.docs[collection]; ok {
		delete(coll, id)
	}
	return nil
}

func (s *DocumentStore) Scan(ctx context.Context, collection string, limit int) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.docs[collection]
	out := make([]store.Document, 0, len(coll))
	for id, payload := range coll {
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		out = append(out, store.Document{ID: id, Payload: cp})
	}
	return out, nil
}

// BlobStore is an in-memory store.BlobStore for tests.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

func (s *BlobStore) Upload(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[key] = stored
	return nil
}

func (s *BlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blobs[key]
	return ok, nil
}
