// Package memory 进程内的 Store 实现，用于测试与单机场景。
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/favbox/chainkit/store"
)

type entry struct {
	text     string
	revision string
}

// Store 并发安全的内存存储。
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New 创建空存储。
func New() *Store {
	return &Store{entries: map[string]entry{}}
}

func (s *Store) Put(_ context.Context, name, text string) (string, error) {
	if err := store.ValidateName(name); err != nil {
		return "", err
	}
	rev := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = entry{text: text, revision: rev}
	return rev, nil
}

func (s *Store) Get(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return "", store.ErrNotFound
	}
	return e.text, nil
}

func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return store.ErrNotFound
	}
	delete(s.entries, name)
	return nil
}

func (s *Store) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)
