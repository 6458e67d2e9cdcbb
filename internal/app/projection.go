package app

import (
	"context"
	"sync"

	"quizlive-service/internal/domain"
)

// ChangeObserver receives feed notifications fanned out by a projection's
// watch loop.
type ChangeObserver interface {
	Observe(change domain.Change)
}

// ObserverFunc adapts a function to the ChangeObserver interface.
type ObserverFunc func(change domain.Change)

func (f ObserverFunc) Observe(change domain.Change) { f(change) }

// Projection is one client's local view of a session, maintained purely by
// replaying the store's change feed. Each notification is applied as a
// full-record replace for its key, never a field merge, so duplicated or
// reordered deliveries can go stale for a moment but never corrupt the
// view.
//
// A projection is mutated from a single watch goroutine; readers get
// copies.
type Projection struct {
	mu      sync.RWMutex
	session domain.Session
	players map[string]domain.Player
	answers map[string]map[string]domain.Answer
}

func NewProjection(initial domain.Session) *Projection {
	return &Projection{
		session: initial,
		players: make(map[string]domain.Player),
		answers: make(map[string]map[string]domain.Answer),
	}
}

// Apply folds one notification into the view.
func (p *Projection) Apply(change domain.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch change.Kind {
	case domain.ChangeSession:
		if change.Session != nil && change.Session.ID == p.session.ID {
			p.session = *change.Session
		}
	case domain.ChangePlayer:
		if change.Player != nil && change.Player.SessionID == p.session.ID {
			p.players[change.Player.ID] = *change.Player
		}
	case domain.ChangeAnswer:
		if change.Answer == nil || change.Answer.SessionID != p.session.ID {
			return
		}
		byPlayer, ok := p.answers[change.Answer.QuestionID]
		if !ok {
			byPlayer = make(map[string]domain.Answer)
			p.answers[change.Answer.QuestionID] = byPlayer
		}
		if _, exists := byPlayer[change.Answer.PlayerID]; !exists {
			byPlayer[change.Answer.PlayerID] = *change.Answer
		}
	}
}

// Session returns the current session view.
func (p *Projection) Session() domain.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// Players returns an unordered copy of the known roster.
func (p *Projection) Players() []domain.Player {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Player, 0, len(p.players))
	for _, pl := range p.players {
		out = append(out, pl)
	}
	return out
}

// Answers returns the known accepted answers for one question.
func (p *Projection) Answers(questionID string) []domain.Answer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Answer, 0, len(p.answers[questionID]))
	for _, a := range p.answers[questionID] {
		out = append(out, a)
	}
	return out
}

// Watch subscribes to the session's change feed and runs a single-threaded
// event loop: every notification is applied to the projection, then handed
// to each observer in order. The returned cancel releases the subscription
// and stops the loop; no background work survives it.
func (p *Projection) Watch(ctx context.Context, store SessionStore, observers ...ChangeObserver) (func(), error) {
	feed, cancelFeed, err := store.Subscribe(ctx, p.Session().ID)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case change, ok := <-feed:
				if !ok {
					return
				}
				p.Apply(change)
				for _, o := range observers {
					o.Observe(change)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelFeed()
			<-done
		})
	}
	return cancel, nil
}
