package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TimerStateStore persists countdown remainders in Redis, keyed by session
// and question index, so a client can rebuild its timer from cold start.
// Entries carry a TTL as a safety net for sessions that are abandoned
// mid-question.
type TimerStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTimerStateStore(client *redis.Client, ttl time.Duration) *TimerStateStore {
	return &TimerStateStore{client: client, ttl: ttl}
}

func (s *TimerStateStore) SaveRemaining(ctx context.Context, sessionID string, questionIndex, remaining int) error {
	if err := s.client.Set(ctx, s.key(sessionID, questionIndex), remaining, s.ttl).Err(); err != nil {
		return unavailable("save timer", err)
	}
	return nil
}

func (s *TimerStateStore) LoadRemaining(ctx context.Context, sessionID string, questionIndex int) (int, bool, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID, questionIndex)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("load timer", err)
	}
	remaining, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("decode timer state: %w", err)
	}
	return remaining, true, nil
}

func (s *TimerStateStore) ClearRemaining(ctx context.Context, sessionID string, questionIndex int) error {
	if err := s.client.Del(ctx, s.key(sessionID, questionIndex)).Err(); err != nil {
		return unavailable("clear timer", err)
	}
	return nil
}

func (s *TimerStateStore) key(sessionID string, questionIndex int) string {
	return fmt.Sprintf("quiz:%s:timer:%d", sessionID, questionIndex)
}
