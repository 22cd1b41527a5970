package db

import (
	"context"
	"sync"

	"github.com/eventdesk/booking-bot/internal/models"
)

// MemoryStore is a non-persistent Store used in tests and dry runs
type MemoryStore struct {
	mu       sync.Mutex
	requests map[int64]*models.Request
	counter  int64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{requests: make(map[int64]*models.Request)}
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*models.Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, false, nil
	}
	return req.Clone(), true, nil
}

func (s *MemoryStore) Put(_ context.Context, id int64, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[id] = req.Clone()
	return nil
}

func (s *MemoryStore) NextID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	return s.counter, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.Status]int)
	for _, req := range s.requests {
		counts[req.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
