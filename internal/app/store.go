package app

import (
	"context"

	"quizlive-service/internal/domain"
)

// SessionStore abstracts the durable record store plus its change feed
// (in-memory, Redis, etc). The core never touches a concrete database.
//
// Mutations on distinct records are independent atomic operations; no call
// spans multiple entities. IncrementScore and InsertAnswer are the two
// primitives that must be atomic per record: the first is an additive
// increment (never read-modify-write overwrite), the second a
// unique-constraint insert where the first write wins.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	PutSession(ctx context.Context, session domain.Session) error

	GetQuestions(ctx context.Context, sessionID string) ([]domain.Question, error)
	PutQuestions(ctx context.Context, sessionID string, questions []domain.Question) error

	GetPlayer(ctx context.Context, sessionID, playerID string) (domain.Player, bool, error)
	UpsertPlayer(ctx context.Context, player domain.Player) (domain.Player, error)
	ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error)

	// IncrementScore atomically adds delta to the player's score and
	// returns the new total.
	IncrementScore(ctx context.Context, sessionID, playerID string, delta int) (int, error)

	// InsertAnswer stores the answer unless one already exists for its
	// (session, question, player) key. It reports whether this write won.
	InsertAnswer(ctx context.Context, answer domain.Answer) (bool, error)
	ListAnswers(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error)

	// Subscribe opens a change feed scoped to one session. Delivery is
	// at-least-once and possibly reordered. The cancel func releases the
	// subscription; no background work continues after the last observer
	// cancels.
	Subscribe(ctx context.Context, sessionID string) (<-chan domain.Change, func(), error)
}

// QuestionSource loads a session's immutable question sequence, typically
// through a cache in front of the backing store.
type QuestionSource interface {
	Questions(ctx context.Context, sessionID string) ([]domain.Question, error)
}

// StoreQuestionSource serves question sets straight from the session
// store, for deployments where authored content lives in the same store as
// the session records.
type StoreQuestionSource struct {
	Store SessionStore
}

func (s StoreQuestionSource) Questions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	return s.Store.GetQuestions(ctx, sessionID)
}

// TimerStateStore persists countdown remainders keyed by session and
// question index, so a reloaded client resumes the same countdown instead
// of restarting it.
type TimerStateStore interface {
	SaveRemaining(ctx context.Context, sessionID string, questionIndex, remaining int) error
	LoadRemaining(ctx context.Context, sessionID string, questionIndex int) (int, bool, error)
	ClearRemaining(ctx context.Context, sessionID string, questionIndex int) error
}
