package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

var documentKey = []byte("aakeyring/state")

// BadgerStore persists the state document in a Badger database under a single
// key, keeping the whole-document write atomic.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger's built-in logging.

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state database at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// Load reads the persisted document. A missing key yields a fresh default
// document.
func (s *BadgerStore) Load(_ context.Context) (*Document, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	doc.normalize()
	return &doc, nil
}

// Save overwrites the persisted document.
func (s *BadgerStore) Save(_ context.Context, doc *Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentKey, raw)
	})
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
