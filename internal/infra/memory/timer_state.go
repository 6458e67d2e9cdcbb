package memory

import (
	"context"
	"fmt"
	"sync"
)

// TimerStateStore keeps countdown remainders in process memory. It
// satisfies the same contract as the Redis-backed store, so tests and
// single-instance deployments share the timer code path.
type TimerStateStore struct {
	mu        sync.Mutex
	remaining map[string]int
}

func NewTimerStateStore() *TimerStateStore {
	return &TimerStateStore{remaining: make(map[string]int)}
}

func (s *TimerStateStore) SaveRemaining(_ context.Context, sessionID string, questionIndex, remaining int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining[timerKey(sessionID, questionIndex)] = remaining
	return nil
}

func (s *TimerStateStore) LoadRemaining(_ context.Context, sessionID string, questionIndex int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining, ok := s.remaining[timerKey(sessionID, questionIndex)]
	return remaining, ok, nil
}

func (s *TimerStateStore) ClearRemaining(_ context.Context, sessionID string, questionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.remaining, timerKey(sessionID, questionIndex))
	return nil
}

func timerKey(sessionID string, questionIndex int) string {
	return fmt.Sprintf("%s:%d", sessionID, questionIndex)
}
