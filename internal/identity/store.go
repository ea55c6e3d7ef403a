package identity

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrInstallNotFound = errors.New("identity: install not found")

// Install binds one client installation to its registered device public
// key. The key is last-write-wins on re-registration; rotation is
// intentional.
type Install struct {
	ID        string
	PublicKey []byte
	CreatedAt time.Time
}

type InstallStore interface {
	Put(ctx context.Context, id string, publicKey []byte) error
	Get(ctx context.Context, id string) (*Install, error)
}

type MemoryInstallStore struct {
	mu       sync.Mutex
	installs map[string]*Install
}

func NewMemoryInstallStore() *MemoryInstallStore {
	return &MemoryInstallStore{installs: map[string]*Install{}}
}

func (s *MemoryInstallStore) Put(ctx context.Context, id string, publicKey []byte) error {
	if id == "" {
		return errors.New("identity: empty install id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.installs[id]; ok {
		existing.PublicKey = append([]byte(nil), publicKey...)
		return nil
	}
	s.installs[id] = &Install{
		ID:        id,
		PublicKey: append([]byte(nil), publicKey...),
		CreatedAt: time.Now(),
	}
	return nil
}

func (s *MemoryInstallStore) Get(ctx context.Context, id string) (*Install, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.installs[id]
	if !ok {
		return nil, ErrInstallNotFound
	}
	clone := *in
	clone.PublicKey = append([]byte(nil), in.PublicKey...)
	return &clone, nil
}
