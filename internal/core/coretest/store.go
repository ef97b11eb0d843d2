package coretest

import (
	"context"
	"sync"

	"github.com/dkeye/Pairline/internal/domain"
)

// FailingStore rejects every write with Err and counts the attempts.
type FailingStore struct {
	Err error

	mu    sync.Mutex
	calls int
}

func (s *FailingStore) Create(context.Context, domain.NewMessage) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return domain.Message{}, s.Err
}

func (s *FailingStore) History(context.Context, domain.UserID, domain.UserID, int) ([]domain.Message, error) {
	return nil, s.Err
}

func (s *FailingStore) MarkRead(context.Context, domain.UserID, domain.UserID) (int64, error) {
	return 0, s.Err
}

func (s *FailingStore) Close() error { return nil }

func (s *FailingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
