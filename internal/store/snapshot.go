// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// SnapshotStore wraps Store with a Badger-backed on-disk mirror. Writes
// go to both the in-memory map (for the store handler's hot path) and
// Badger (so state survives a restart) — still no durability contract in
// the minimal handler contract, this is an opt-in extension gated by
// GHOST_STORE_SNAPSHOT_DIR.
type SnapshotStore struct {
	*Store
	db *badger.DB
}

// OpenSnapshotStore opens (or creates) a Badger database at dir and
// replays it into a fresh in-memory Store.
func OpenSnapshotStore(dir string) (*SnapshotStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}

	s := &SnapshotStore{Store: New(), db: db}
	if err := s.replay(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SnapshotStore) replay() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(raw []byte) error {
				var e Entry
				if err := json.Unmarshal(raw, &e); err != nil {
					return err
				}
				s.Store.data[key] = e
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Set writes through to both the in-memory map and Badger. The write and
// readback happen under SetAndGet's single lock so a concurrent Set on
// the same key cannot make the Badger mirror disagree with the map.
func (s *SnapshotStore) Set(key string, value any) {
	entry := s.Store.SetAndGet(key, value)
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// Delete removes key from both the in-memory map and Badger.
func (s *SnapshotStore) Delete(key string) bool {
	existed := s.Store.Delete(key)
	_ = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return existed
}

// Close releases the underlying Badger database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
