// Package memory provides an in-memory tokens.RefreshStore for testing
// and single-node deployments. Records are lost when the process
// restarts, which signs every user out.
package memory

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/rhuss/ausweis/pkg/tokens"
)

// Store is an in-memory RefreshStore. Consumed records are kept as
// tombstones until their natural expiry so that replaying an already
// redeemed token is detected as reuse rather than reported as unknown.
type Store struct {
	mu       sync.Mutex
	records  map[string]*tokens.Record
	families map[string][]string // family id -> record ids

	// now is replaced in tests.
	now func() time.Time
}

var _ tokens.RefreshStore = (*Store)(nil)

// New creates an empty in-memory refresh store.
func New() *Store {
	return &Store{
		records:  make(map[string]*tokens.Record),
		families: make(map[string][]string),
		now:      time.Now,
	}
}

// Save persists rec. Expired records under the same family are swept
// opportunistically.
func (s *Store) Save(ctx context.Context, rec tokens.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = &rec
	s.families[rec.Family] = append(s.families[rec.Family], rec.ID)
	s.sweepFamilyLocked(rec.Family)
	return nil
}

// Rotate redeems the record under id and installs next in its place.
// See tokens.RefreshStore for the failure contract.
func (s *Store) Rotate(ctx context.Context, id string, presented [32]byte, next tokens.Record) (tokens.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return tokens.Record{}, tokens.ErrTokenNotFound
	}
	if rec.Consumed {
		s.revokeFamilyLocked(rec.Family)
		return tokens.Record{}, tokens.ErrTokenReused
	}
	if !s.now().Before(rec.ExpiresAt) {
		s.dropLocked(rec)
		return tokens.Record{}, tokens.ErrTokenExpired
	}
	if subtle.ConstantTimeCompare(rec.SecretHash[:], presented[:]) != 1 {
		return tokens.Record{}, tokens.ErrSecretMismatch
	}

	rec.Consumed = true

	next.UserID = rec.UserID
	next.Username = rec.Username
	next.Family = rec.Family
	s.records[next.ID] = &next
	s.families[next.Family] = append(s.families[next.Family], next.ID)
	return next, nil
}

// RevokeFamily marks every record of the family consumed.
func (s *Store) RevokeFamily(ctx context.Context, family string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeFamilyLocked(family)
	return nil
}

func (s *Store) revokeFamilyLocked(family string) {
	for _, id := range s.families[family] {
		if rec, ok := s.records[id]; ok {
			rec.Consumed = true
		}
	}
}

// dropLocked removes a record entirely, including its family index
// entry. Used for expired records, which need no tombstone: expiry of
// the original grants replay nothing.
func (s *Store) dropLocked(rec *tokens.Record) {
	delete(s.records, rec.ID)
	ids := s.families[rec.Family]
	for i, id := range ids {
		if id == rec.ID {
			s.families[rec.Family] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.families[rec.Family]) == 0 {
		delete(s.families, rec.Family)
	}
}

func (s *Store) sweepFamilyLocked(family string) {
	now := s.now()
	ids := s.families[family]
	kept := ids[:0]
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, id)
			continue
		}
		kept = append(kept, id)
	}
	if len(kept) == 0 {
		delete(s.families, family)
		return
	}
	s.families[family] = kept
}
