package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"quizlive-service/internal/domain"
	redisstore "quizlive-service/internal/infra/redis"
)

const session = "ABC234"

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	store := redisstore.NewStore(client)

	if _, err := store.GetSession(ctx, session); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	want := domain.Session{ID: session, Title: "Capitals", State: domain.StateQuestionActive, CurrentQuestion: 1}
	if err := store.PutSession(ctx, want); err != nil {
		t.Fatalf("put session: %v", err)
	}
	got, err := store.GetSession(ctx, session)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != want.ID || got.State != want.State || got.CurrentQuestion != want.CurrentQuestion {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestQuestionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	store := redisstore.NewStore(client)

	if _, err := store.GetQuestions(ctx, session); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	want := []domain.Question{
		{ID: "q1", Text: "Capital of France?", Options: []string{"Berlin", "Paris"}, CorrectIndex: 1, TimeLimitSeconds: 30},
	}
	if err := store.PutQuestions(ctx, session, want); err != nil {
		t.Fatalf("put questions: %v", err)
	}
	got, err := store.GetQuestions(ctx, session)
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "q1" || got[0].CorrectIndex != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestUpsertPlayerKeepsScoreAndOrderOnRejoin(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	store := redisstore.NewStore(client)

	first, err := store.UpsertPlayer(ctx, domain.Player{SessionID: session, ID: "p1", Name: "Ada"})
	if err != nil {
		t.Fatalf("upsert p1: %v", err)
	}
	second, err := store.UpsertPlayer(ctx, domain.Player{SessionID: session, ID: "p2", Name: "Grace"})
	if err != nil {
		t.Fatalf("upsert p2: %v", err)
	}
	if first.JoinOrder >= second.JoinOrder {
		t.Fatalf("join order not increasing: %d then %d", first.JoinOrder, second.JoinOrder)
	}

	total, err := store.IncrementScore(ctx, session, "p1", 1500)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if total != 1500 {
		t.Fatalf("expected total 1500, got %d", total)
	}

	rejoined, err := store.UpsertPlayer(ctx, domain.Player{SessionID: session, ID: "p1", Name: "Ada L."})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if rejoined.Score != 1500 || rejoined.JoinOrder != first.JoinOrder {
		t.Fatalf("rejoin reset score or order: %+v", rejoined)
	}
	if rejoined.Name != "Ada L." {
		t.Fatalf("rejoin did not refresh the profile: %+v", rejoined)
	}

	players, err := store.ListPlayers(ctx, session)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(players))
	}
}

func TestIncrementScoreUnknownPlayer(t *testing.T) {
	_, client := newTestClient(t)
	store := redisstore.NewStore(client)

	if _, err := store.IncrementScore(context.Background(), session, "ghost", 100); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestInsertAnswerFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	store := redisstore.NewStore(client)

	answer := domain.Answer{
		SchemaVersion: domain.AnswerSchemaVersion,
		SessionID:     session,
		QuestionID:    "q1",
		PlayerID:      "p1",
		OptionIndex:   1,
	}
	won, err := store.InsertAnswer(ctx, answer)
	if err != nil || !won {
		t.Fatalf("first insert: won=%v err=%v", won, err)
	}

	retry := answer
	retry.OptionIndex = 3
	won, err = store.InsertAnswer(ctx, retry)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if won {
		t.Fatalf("duplicate insert won")
	}

	answers, err := store.ListAnswers(ctx, session, "q1")
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(answers) != 1 || answers[0].OptionIndex != 1 {
		t.Fatalf("expected the first answer to stand, got %+v", answers)
	}
}

func TestSubscribeDeliversPublishedChanges(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	store := redisstore.NewStore(client)

	feed, cancel, err := store.Subscribe(ctx, session)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := store.PutSession(ctx, domain.Session{ID: session, State: domain.StateQuestionActive}); err != nil {
		t.Fatalf("put session: %v", err)
	}

	select {
	case change := <-feed:
		if change.Kind != domain.ChangeSession || change.Session == nil || change.Session.State != domain.StateQuestionActive {
			t.Fatalf("unexpected change: %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatalf("no change delivered")
	}
}

func TestStoreUnavailable(t *testing.T) {
	mr, client := newTestClient(t)
	store := redisstore.NewStore(client)
	mr.Close()

	_, err := store.GetSession(context.Background(), session)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestTimerStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	states := redisstore.NewTimerStateStore(client, time.Minute)

	if _, ok, err := states.LoadRemaining(ctx, session, 0); err != nil || ok {
		t.Fatalf("expected empty state, got ok=%v err=%v", ok, err)
	}

	if err := states.SaveRemaining(ctx, session, 0, 17); err != nil {
		t.Fatalf("save: %v", err)
	}
	remaining, ok, err := states.LoadRemaining(ctx, session, 0)
	if err != nil || !ok || remaining != 17 {
		t.Fatalf("expected 17, got %d ok=%v err=%v", remaining, ok, err)
	}

	if err := states.ClearRemaining(ctx, session, 0); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := states.LoadRemaining(ctx, session, 0); ok {
		t.Fatalf("expected state cleared")
	}

	// Abandoned entries expire through the TTL safety net.
	if err := states.SaveRemaining(ctx, session, 1, 9); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := states.LoadRemaining(ctx, session, 1); ok {
		t.Fatalf("expected state expired")
	}
}
