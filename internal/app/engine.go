package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"quizlive-service/internal/domain"
)

// TallyControl is the slice of the answer collector the engine drives on
// transitions: freezing the live tally when results are shown and clearing
// it when the question index moves.
type TallyControl interface {
	Freeze(sessionID, questionID string)
	Clear(sessionID string)
}

// Engine is the host-side game state machine. All lifecycle transitions go
// through it; players only ever observe the resulting session records on
// the change feed.
//
// An illegal transition request (no valid edge from the current state) is a
// no-op: it is logged and the unchanged session is returned, never an
// error, so duplicate host button presses are harmless.
type Engine struct {
	store     SessionStore
	questions QuestionSource
	tally     TallyControl
	log       zerolog.Logger
}

func NewEngine(store SessionStore, questions QuestionSource, tally TallyControl, log zerolog.Logger) *Engine {
	return &Engine{store: store, questions: questions, tally: tally, log: log}
}

// StartQuiz moves LOBBY -> QUESTION_ACTIVE at index 0. It requires at least
// one registered player; with an empty roster the session stays in LOBBY.
func (e *Engine) StartQuiz(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.State != domain.StateLobby {
		return e.skip(session, domain.StateQuestionActive), nil
	}

	players, err := e.store.ListPlayers(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if len(players) == 0 {
		e.log.Warn().Str("session", sessionID).Msg("start requested with empty roster, staying in lobby")
		return session, nil
	}

	session.State = domain.StateQuestionActive
	session.CurrentQuestion = 0
	session.RevealQuestion = true
	return session, e.persist(ctx, session)
}

// RevealResults moves QUESTION_ACTIVE -> QUESTION_RESULT and freezes the
// live tally for the current question. Late submissions are still persisted
// but no longer count toward the result view. Revealing results without a
// loadable current question fails: showing results with the tally still
// live would let late answers mutate the revealed chart.
func (e *Engine) RevealResults(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.State != domain.StateQuestionActive {
		return e.skip(session, domain.StateQuestionResult), nil
	}

	question, err := e.currentQuestion(ctx, session)
	if err != nil {
		e.log.Error().Err(err).Str("session", sessionID).Int("question", session.CurrentQuestion).
			Msg("cannot freeze tally, results not revealed")
		return domain.Session{}, fmt.Errorf("reveal results %s: %w", sessionID, err)
	}
	if e.tally != nil {
		e.tally.Freeze(sessionID, question.ID)
	}

	session.State = domain.StateQuestionResult
	return session, e.persist(ctx, session)
}

// ShowLeaderboard moves QUESTION_RESULT -> LEADERBOARD. It is only legal
// when the current question is not the last one; at the end of the sequence
// the host finishes instead.
func (e *Engine) ShowLeaderboard(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	last, err := e.onLastQuestion(ctx, session)
	if err != nil {
		return domain.Session{}, err
	}
	if session.State != domain.StateQuestionResult || last {
		return e.skip(session, domain.StateLeaderboard), nil
	}

	session.State = domain.StateLeaderboard
	session.RevealQuestion = false
	return session, e.persist(ctx, session)
}

// NextQuestion moves LEADERBOARD -> QUESTION_ACTIVE, advancing the question
// index by one and clearing the collector's live view.
func (e *Engine) NextQuestion(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.State != domain.StateLeaderboard {
		return e.skip(session, domain.StateQuestionActive), nil
	}

	if e.tally != nil {
		e.tally.Clear(sessionID)
	}

	session.State = domain.StateQuestionActive
	session.CurrentQuestion++
	session.RevealQuestion = true
	return session, e.persist(ctx, session)
}

// Finish moves QUESTION_RESULT -> FINISHED, legal only on the last
// question. FINISHED is terminal; no transition leaves it.
func (e *Engine) Finish(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	last, err := e.onLastQuestion(ctx, session)
	if err != nil {
		return domain.Session{}, err
	}
	if session.State != domain.StateQuestionResult || !last {
		return e.skip(session, domain.StateFinished), nil
	}

	session.State = domain.StateFinished
	session.RevealQuestion = false
	return session, e.persist(ctx, session)
}

func (e *Engine) persist(ctx context.Context, session domain.Session) error {
	if err := e.store.PutSession(ctx, session); err != nil {
		return fmt.Errorf("persist session %s: %w", session.ID, err)
	}
	e.log.Info().
		Str("session", session.ID).
		Str("state", string(session.State)).
		Int("question", session.CurrentQuestion).
		Msg("lifecycle transition applied")
	return nil
}

// skip records a swallowed illegal transition and hands back the session
// untouched.
func (e *Engine) skip(session domain.Session, requested domain.LifecycleState) domain.Session {
	e.log.Debug().
		Str("session", session.ID).
		Str("state", string(session.State)).
		Str("requested", string(requested)).
		Err(domain.ErrIllegalTransition).
		Msg("transition ignored")
	return session
}

func (e *Engine) currentQuestion(ctx context.Context, session domain.Session) (domain.Question, error) {
	questions, err := e.questions.Questions(ctx, session.ID)
	if err != nil {
		return domain.Question{}, err
	}
	if session.CurrentQuestion < 0 || session.CurrentQuestion >= len(questions) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return questions[session.CurrentQuestion], nil
}

func (e *Engine) onLastQuestion(ctx context.Context, session domain.Session) (bool, error) {
	questions, err := e.questions.Questions(ctx, session.ID)
	if err != nil {
		return false, err
	}
	return session.CurrentQuestion == len(questions)-1, nil
}
