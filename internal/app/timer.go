package app

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// TimerKey identifies one countdown: a session and a question index.
type TimerKey struct {
	SessionID     string
	QuestionIndex int
}

// TimerService runs the per-question countdown. It is advisory for the
// player view only: whether an answer counts is decided by the host's
// state transitions, never by this clock.
//
// Remaining seconds are persisted through a TimerStateStore on every tick
// and cleared on expiry, so a client that reloads mid-question resumes the
// same countdown instead of restarting it.
type TimerService struct {
	clock  clockwork.Clock
	states TimerStateStore
	log    zerolog.Logger

	mu     sync.Mutex
	active *Countdown
}

func NewTimerService(clock clockwork.Clock, states TimerStateStore, log zerolog.Logger) *TimerService {
	return &TimerService{clock: clock, states: states, log: log}
}

// Start begins (or, after a reload, resumes) the countdown for key. Any
// still-running countdown for a previous key is cancelled first. onExpire
// fires exactly once when the countdown reaches zero.
func (s *TimerService) Start(ctx context.Context, key TimerKey, seconds int, onExpire func()) (*Countdown, error) {
	remaining := seconds
	if saved, ok, err := s.states.LoadRemaining(ctx, key.SessionID, key.QuestionIndex); err != nil {
		return nil, err
	} else if ok && saved > 0 && saved < seconds {
		remaining = saved
	}

	c := &Countdown{
		key:       key,
		clock:     s.clock,
		states:    s.states,
		log:       s.log,
		remaining: remaining,
		onExpire:  onExpire,
		stopCh:    make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)

	s.mu.Lock()
	if s.active != nil {
		s.active.Stop()
	}
	s.active = c
	s.mu.Unlock()

	go c.run(ctx)
	return c, nil
}

// Countdown is the handle for one running question timer.
type Countdown struct {
	key      TimerKey
	clock    clockwork.Clock
	states   TimerStateStore
	log      zerolog.Logger
	onExpire func()

	mu        sync.Mutex
	cond      *sync.Cond
	remaining int
	paused    bool
	stopped   bool

	stopCh   chan struct{}
	stopOnce sync.Once
	fireOnce sync.Once
}

// Key returns the countdown's session/question identity.
func (c *Countdown) Key() TimerKey {
	return c.key
}

// Remaining reports the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stopped reports whether the countdown has been cancelled or has expired.
func (c *Countdown) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Pause suspends ticking, e.g. when the observing tab loses foreground
// visibility. Elapsed time is kept; pausing twice is a no-op.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume continues the same countdown. Resuming while running is a no-op,
// so repeated visibility flaps never double-count seconds.
func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.paused = false
		c.cond.Broadcast()
	}
}

// Stop cancels the countdown without firing the expiry callback.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.cond.Broadcast()
		c.mu.Unlock()
		close(c.stopCh)
	})
}

func (c *Countdown) run(ctx context.Context) {
	for {
		c.mu.Lock()
		for c.paused && !c.stopped {
			c.cond.Wait()
		}
		if c.stopped {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		select {
		case <-c.clock.After(time.Second):
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}

		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		if c.paused {
			// The tick raced a pause; don't count it.
			c.mu.Unlock()
			continue
		}
		c.remaining--
		remaining := c.remaining
		c.mu.Unlock()

		if remaining <= 0 {
			c.expire(ctx)
			return
		}
		if err := c.states.SaveRemaining(ctx, c.key.SessionID, c.key.QuestionIndex, remaining); err != nil {
			c.log.Warn().Err(err).Str("session", c.key.SessionID).Int("question", c.key.QuestionIndex).
				Msg("failed to persist countdown state")
		}
	}
}

func (c *Countdown) expire(ctx context.Context) {
	c.fireOnce.Do(func() {
		if err := c.states.ClearRemaining(ctx, c.key.SessionID, c.key.QuestionIndex); err != nil {
			c.log.Warn().Err(err).Str("session", c.key.SessionID).Int("question", c.key.QuestionIndex).
				Msg("failed to clear countdown state")
		}
		if c.onExpire != nil {
			c.onExpire()
		}
	})
	c.Stop()
}
