// Package state holds the records of the most recently ingested archive.
package state

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/varunsharma6956/ost-mail-searcher/model"
)

// Snapshot is one complete, immutable record set. A snapshot is never
// modified after it has been stored.
type Snapshot struct {
	ID       uuid.UUID
	Source   string
	LoadedAt time.Time
	Records  []model.EmailRecord
}

func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Store keeps the current snapshot. Replacing it is a single atomic swap, so
// readers observe either the previous or the next record set in full.
type Store struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Replace stores a new snapshot built from records and returns it. The
// records slice is copied.
func (s *Store) Replace(source string, records []model.EmailRecord) *Snapshot {
	snap := &Snapshot{
		ID:       uuid.New(),
		Source:   source,
		LoadedAt: s.now(),
		Records:  append(make([]model.EmailRecord, 0, len(records)), records...),
	}
	s.current.Store(snap)
	return snap
}

// Current returns the stored snapshot, or nil if nothing has been loaded.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Loaded reports whether a non-empty snapshot is stored.
func (s *Store) Loaded() bool {
	return s.Current().Count() > 0
}

// Clear drops the current snapshot.
func (s *Store) Clear() {
	s.current.Store(nil)
}
