// Package memory implements a store backend that lives in process memory.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TecharoHQ/botcha/decaymap"
	"github.com/TecharoHQ/botcha/lib/store"
)

type factory struct{}

func (factory) Build(_ context.Context, _ json.RawMessage) (store.Interface, error) {
	return New(), nil
}

func (factory) Valid(json.RawMessage) error { return nil }

func init() {
	store.Register("memory", factory{})
}

// Store keeps values in a decaymap. Expired values are invisible to Get and
// Take immediately and are reclaimed by Sweep.
type Store struct {
	store *decaymap.Impl[string, []byte]
}

func (s *Store) Delete(_ context.Context, key string) error {
	if !s.store.Delete(key) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	result, ok := s.store.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return result, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, expiry time.Duration) error {
	s.store.Set(key, value, expiry)
	return nil
}

func (s *Store) Take(_ context.Context, key string) ([]byte, error) {
	result, ok := s.store.Take(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return result, nil
}

func (s *Store) Sweep(_ context.Context) (int, error) {
	return s.store.Cleanup(), nil
}

// New creates a simple in-memory store. This will not scale to multiple
// BOTCHA instances; use the valkey backend for that.
func New() *Store {
	return &Store{
		store: decaymap.New[string, []byte](),
	}
}
