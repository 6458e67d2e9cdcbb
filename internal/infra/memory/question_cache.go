package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizlive-service/internal/domain"
)

// QuestionLoader fetches a session's question set from a backing store
// (e.g. Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, sessionID string) ([]domain.Question, error)
}

// QuestionCache caches immutable question sets with TTL to avoid repeated
// backing-store hits. Concurrent misses for the same session collapse into
// one load.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[sessionID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(sessionID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[sessionID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.LoadQuestions(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[sessionID] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader serves question sets from a fixed map (tests/demos).
type StaticQuestionLoader struct {
	sets map[string][]domain.Question
}

func NewStaticQuestionLoader(sets map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{sets: sets}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, sessionID string) ([]domain.Question, error) {
	if questions, ok := l.sets[sessionID]; ok {
		return questions, nil
	}
	return nil, domain.ErrSessionNotFound
}

// StaticContentProvider hands out a canned question sequence regardless of
// topic. It stands in for the external generation service at authoring
// time.
type StaticContentProvider struct {
	questions []domain.Question
}

func NewStaticContentProvider(questions []domain.Question) *StaticContentProvider {
	return &StaticContentProvider{questions: questions}
}

func (p *StaticContentProvider) Generate(_ context.Context, _, _ string, count int) ([]domain.Question, error) {
	if count <= 0 || count > len(p.questions) {
		count = len(p.questions)
	}
	out := make([]domain.Question, count)
	copy(out, p.questions[:count])
	return out, nil
}
