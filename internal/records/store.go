package records

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

const (
	KindSleep  = "sleep"
	KindEvents = "events"
)

var ErrNotFound = errors.New("records: not found")

// Row is one encrypted per-day blob, keyed by (installId, date, kind).
// Ciphertext, IV and tag are stored as separate fields; only the envelope
// engine ever recombines them.
type Row struct {
	InstallID  string
	Date       string // YYYY-MM-DD
	Kind       string
	Ciphertext []byte
	IV         []byte
	Tag        []byte
	SyncedAt   time.Time
}

type Store interface {
	// UpsertBatch replaces the batch as one atomic unit: a crash cannot
	// leave some days of a sync written and others not.
	UpsertBatch(ctx context.Context, rows []Row) error
	Get(ctx context.Context, installID, date, kind string) (*Row, error)
	// Range returns rows with from <= date <= to, ascending by date.
	Range(ctx context.Context, installID, kind, from, to string) ([]Row, error)
	// PurgeBefore deletes all of an install's rows strictly older than
	// the cutoff date.
	PurgeBefore(ctx context.Context, installID, cutoff string) (int64, error)
	// DeleteInstall removes every row for the install, all kinds.
	DeleteInstall(ctx context.Context, installID string) error
}

type memKey struct {
	date string
	kind string
}

type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]map[memKey]Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]map[memKey]Row{}}
}

func (s *MemoryStore) UpsertBatch(ctx context.Context, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		byKey, ok := s.rows[r.InstallID]
		if !ok {
			byKey = map[memKey]Row{}
			s.rows[r.InstallID] = byKey
		}
		byKey[memKey{date: r.Date, kind: r.Kind}] = r
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, installID, date, kind string) (*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[installID][memKey{date: date, kind: kind}]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) Range(ctx context.Context, installID, kind, from, to string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Row
	for k, r := range s.rows[installID] {
		if k.kind == kind && k.date >= from && k.date <= to {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *MemoryStore) PurgeBefore(ctx context.Context, installID, cutoff string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.rows[installID] {
		if k.date < cutoff {
			delete(s.rows[installID], k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteInstall(ctx context.Context, installID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, installID)
	return nil
}
