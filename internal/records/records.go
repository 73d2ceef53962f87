// Package records tracks the best completion time and best attempt count
// per game set. The two minima update independently: one finished session
// can improve either, both, or neither.
package records

import (
	"log/slog"
	"sync"
)

// Set identifiers. 0 is the built-in tone set, 1 and 2 the custom slots.
const (
	SetTones   = 0
	SetCustom1 = 1
	SetCustom2 = 2
)

// Best holds the record minima for one set. Nil means no record yet, which
// also keeps the JSON wire shape (null) of the sync documents.
type Best struct {
	Time     *int `json:"time"`
	Attempts *int `json:"attempts"`
}

func (b Best) clone() Best {
	out := Best{}
	if b.Time != nil {
		t := *b.Time
		out.Time = &t
	}
	if b.Attempts != nil {
		a := *b.Attempts
		out.Attempts = &a
	}
	return out
}

// Store is the in-memory best-record table. It owns the records exclusively;
// the game engine only reads them and requests updates via CheckAndUpdate.
type Store struct {
	mu   sync.Mutex
	best map[int]Best

	// OnChange, if set, is called after every CheckAndUpdate that changed a
	// record, so the caller can persist the new value. Called without the
	// store lock held.
	OnChange func(set int, b Best)
}

// NewStore returns an empty record store.
func NewStore() *Store {
	return &Store{best: make(map[int]Best)}
}

// Get returns the record for one set. An unknown set has unset minima.
func (s *Store) Get(set int) Best {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.best[set].clone()
}

// CheckAndUpdate applies a finished session against the set's record.
// Each minimum updates only when strictly improved (or previously unset).
// Reports whether anything changed and the resulting record.
func (s *Store) CheckAndUpdate(set, timeSeconds, attempts int) (bool, Best) {
	s.mu.Lock()
	b := s.best[set]
	updated := false
	if b.Time == nil || timeSeconds < *b.Time {
		t := timeSeconds
		b.Time = &t
		updated = true
	}
	if b.Attempts == nil || attempts < *b.Attempts {
		a := attempts
		b.Attempts = &a
		updated = true
	}
	if updated {
		s.best[set] = b
	}
	result := b.clone()
	onChange := s.OnChange
	s.mu.Unlock()

	if updated {
		slog.Info("record updated", "set", set, "time", timeSeconds, "attempts", attempts)
		if onChange != nil {
			onChange(set, result.clone())
		}
	}
	return updated, result
}

// Snapshot returns a copy of all records, for persistence.
func (s *Store) Snapshot() map[int]Best {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]Best, len(s.best))
	for set, b := range s.best {
		out[set] = b.clone()
	}
	return out
}

// Restore replaces the in-memory records, typically once at boot from the
// persistence collaborator. OnChange is not invoked.
func (s *Store) Restore(best map[int]Best) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.best = make(map[int]Best, len(best))
	for set, b := range best {
		s.best[set] = b.clone()
	}
}
