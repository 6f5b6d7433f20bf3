package state

import (
	"context"
	"encoding/json"
	"sync"
)

// Store persists the state document. Load returns a fresh default document
// when nothing has been persisted yet; Save overwrites the whole document.
type Store interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
}

// MemoryStore keeps the document in memory. Used in tests and as a stand-in
// when no data directory is configured.
type MemoryStore struct {
	mu  sync.Mutex
	raw []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored document, or a fresh default one.
func (s *MemoryStore) Load(_ context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw == nil {
		return NewDocument(), nil
	}
	var doc Document
	if err := json.Unmarshal(s.raw, &doc); err != nil {
		return nil, err
	}
	doc.normalize()
	return &doc, nil
}

// Save stores a serialized snapshot of the document.
func (s *MemoryStore) Save(_ context.Context, doc *Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.raw = raw
	s.mu.Unlock()
	return nil
}
