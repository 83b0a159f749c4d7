package storage

import (
	"sync"

	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
)

// InMemoryStorage is a TreeStorage safe for concurrent use.
type InMemoryStorage struct {
	mu    sync.RWMutex
	trees map[string]*protocol.Tree
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{trees: make(map[string]*protocol.Tree)}
}

func (s *InMemoryStorage) Get(key hash.Hash) (*protocol.Tree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tree, ok := s.trees[key.String()]
	return tree, ok
}

func (s *InMemoryStorage) Add(trees ...*protocol.Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tree := range trees {
		if tree == nil || tree.Hash.IsZero() {
			continue
		}
		s.trees[tree.Hash.String()] = tree
	}
}

func (s *InMemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trees)
}
