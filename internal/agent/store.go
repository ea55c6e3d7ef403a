package agent

import (
	"context"
	"errors"
	"sync"
)

var errStoreMiss = errors.New("agent: no such record")

// MemoryKeyStore keeps the key map and the installId reverse index under
// one mutex so both views mutate together.
type MemoryKeyStore struct {
	mu        sync.Mutex
	byKey     map[string]*KeyRecord
	byInstall map[string]*KeyRecord
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		byKey:     map[string]*KeyRecord{},
		byInstall: map[string]*KeyRecord{},
	}
}

func (s *MemoryKeyStore) Replace(ctx context.Context, rec KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.byInstall[rec.InstallID]; ok {
		delete(s.byKey, prior.APIKey)
	}
	clone := rec
	clone.WrappedDEK = append([]byte(nil), rec.WrappedDEK...)
	s.byKey[rec.APIKey] = &clone
	s.byInstall[rec.InstallID] = &clone
	return nil
}

func (s *MemoryKeyStore) GetByKey(ctx context.Context, apiKey string) (*KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byKey[apiKey]
	if !ok {
		return nil, errStoreMiss
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryKeyStore) GetByInstall(ctx context.Context, installID string) (*KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byInstall[installID]
	if !ok {
		return nil, errStoreMiss
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryKeyStore) DeleteByInstall(ctx context.Context, installID string) (*KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byInstall[installID]
	if !ok {
		return nil, errStoreMiss
	}
	delete(s.byInstall, installID)
	delete(s.byKey, rec.APIKey)
	clone := *rec
	return &clone, nil
}
