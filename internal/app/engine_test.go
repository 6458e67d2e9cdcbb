package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"quizlive-service/internal/app"
	"quizlive-service/internal/domain"
	"quizlive-service/internal/infra/memory"
)

func newLobbyStore(t *testing.T, players ...string) *memory.Store {
	t.Helper()
	store := newTestStore(t, players...)
	if err := store.PutSession(context.Background(), domain.Session{
		ID:    testSession,
		Title: "Capitals",
		State: domain.StateLobby,
	}); err != nil {
		t.Fatalf("put session: %v", err)
	}
	return store
}

func newEngine(store *memory.Store) *app.Engine {
	questions := app.StoreQuestionSource{Store: store}
	collector := app.NewCollector(store, questions, zerolog.Nop())
	return app.NewEngine(store, questions, collector, zerolog.Nop())
}

func TestStartRequiresPlayers(t *testing.T) {
	ctx := context.Background()
	store := newLobbyStore(t)
	engine := newEngine(store)

	session, err := engine.StartQuiz(ctx, testSession)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.State != domain.StateLobby {
		t.Fatalf("expected empty-roster start to stay in lobby, got %s", session.State)
	}
}

func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newLobbyStore(t, "p1")
	engine := newEngine(store)

	session, err := engine.StartQuiz(ctx, testSession)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.State != domain.StateQuestionActive || session.CurrentQuestion != 0 || !session.RevealQuestion {
		t.Fatalf("unexpected session after start: %+v", session)
	}

	session, err = engine.RevealResults(ctx, testSession)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if session.State != domain.StateQuestionResult {
		t.Fatalf("expected QUESTION_RESULT, got %s", session.State)
	}

	// Not the last question, so finishing now must be a no-op.
	session, err = engine.Finish(ctx, testSession)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if session.State != domain.StateQuestionResult {
		t.Fatalf("expected early finish to be ignored, got %s", session.State)
	}

	session, err = engine.ShowLeaderboard(ctx, testSession)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if session.State != domain.StateLeaderboard {
		t.Fatalf("expected LEADERBOARD, got %s", session.State)
	}

	session, err = engine.NextQuestion(ctx, testSession)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if session.State != domain.StateQuestionActive || session.CurrentQuestion != 1 {
		t.Fatalf("expected second question active, got %+v", session)
	}

	if _, err = engine.RevealResults(ctx, testSession); err != nil {
		t.Fatalf("results: %v", err)
	}

	// Last question: the leaderboard detour is illegal, finishing is not.
	session, err = engine.ShowLeaderboard(ctx, testSession)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if session.State != domain.StateQuestionResult {
		t.Fatalf("expected last-question leaderboard to be ignored, got %s", session.State)
	}

	session, err = engine.Finish(ctx, testSession)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if session.State != domain.StateFinished {
		t.Fatalf("expected FINISHED, got %s", session.State)
	}
}

func TestFinishedIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := newLobbyStore(t, "p1")
	engine := newEngine(store)

	if _, err := engine.StartQuiz(ctx, testSession); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Skipping ahead while a question is active is ignored.
	session, err := engine.NextQuestion(ctx, testSession)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if session.State != domain.StateQuestionActive || session.CurrentQuestion != 0 {
		t.Fatalf("next escaped QUESTION_ACTIVE: %+v", session)
	}

	// Walk to the end.
	if _, err := engine.RevealResults(ctx, testSession); err != nil {
		t.Fatalf("results: %v", err)
	}
	if _, err := engine.ShowLeaderboard(ctx, testSession); err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if _, err := engine.NextQuestion(ctx, testSession); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := engine.RevealResults(ctx, testSession); err != nil {
		t.Fatalf("results: %v", err)
	}
	session, err = engine.Finish(ctx, testSession)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if session.State != domain.StateFinished {
		t.Fatalf("expected FINISHED, got %s", session.State)
	}

	for name, op := range map[string]func(context.Context, string) (domain.Session, error){
		"start":       engine.StartQuiz,
		"results":     engine.RevealResults,
		"leaderboard": engine.ShowLeaderboard,
		"next":        engine.NextQuestion,
		"finish":      engine.Finish,
	} {
		session, err := op(ctx, testSession)
		if err != nil {
			t.Fatalf("%s after finish: %v", name, err)
		}
		if session.State != domain.StateFinished {
			t.Fatalf("%s escaped the terminal state: %s", name, session.State)
		}
	}
}

type failingQuestions struct {
	err error
}

func (f failingQuestions) Questions(context.Context, string) ([]domain.Question, error) {
	return nil, f.err
}

func TestRevealResultsFailsWithoutQuestionSet(t *testing.T) {
	ctx := context.Background()
	store := newLobbyStore(t, "p1")
	sourceErr := errors.New("content store down")
	engine := app.NewEngine(store, failingQuestions{err: sourceErr}, nil, zerolog.Nop())

	if _, err := engine.StartQuiz(ctx, testSession); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := engine.RevealResults(ctx, testSession); !errors.Is(err, sourceErr) {
		t.Fatalf("expected the question-source error to surface, got %v", err)
	}

	// The transition must not land while the tally cannot be frozen.
	session, err := store.GetSession(ctx, testSession)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.State != domain.StateQuestionActive {
		t.Fatalf("expected session to stay QUESTION_ACTIVE, got %s", session.State)
	}
}

func TestDuplicateTransitionIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newLobbyStore(t, "p1")
	engine := newEngine(store)

	if _, err := engine.StartQuiz(ctx, testSession); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Double-pressed start button.
	session, err := engine.StartQuiz(ctx, testSession)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if session.State != domain.StateQuestionActive || session.CurrentQuestion != 0 {
		t.Fatalf("duplicate start corrupted state: %+v", session)
	}
}
