package people

import (
	"context"
	"sync"

	"github.com/chararch/minibatch"
)

// MemoryStore keeps the people in process memory, for dry runs. It has no
// transactions: pair it with txn.NopTxManager.
type MemoryStore struct {
	mu     sync.Mutex
	people []Person
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Write(ctx context.Context, items []Person, chunkCtx *minibatch.ChunkContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people = append(s.people, items...)
	return nil
}

func (s *MemoryStore) Writer() minibatch.Writer[Person] {
	return s
}

func (s *MemoryStore) FindAll(ctx context.Context) ([]Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Person{}, s.people...), nil
}
