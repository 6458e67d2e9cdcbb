package app_test

import (
	"context"
	"errors"
	"testing"

	"quizlive-service/internal/app"
	"quizlive-service/internal/domain"
	"quizlive-service/internal/infra/memory"
)

// countingStore counts GetSession calls to prove malformed codes are
// rejected before any lookup.
type countingStore struct {
	app.SessionStore
	lookups int
}

func (s *countingStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	s.lookups++
	return s.SessionStore.GetSession(ctx, id)
}

func TestResolveKnownCode(t *testing.T) {
	store := newTestStore(t)
	resolver := app.NewResolver(store)

	session, err := resolver.Resolve(context.Background(), testSession)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if session.ID != testSession {
		t.Fatalf("expected session %s, got %s", testSession, session.ID)
	}
}

func TestResolveRejectsMalformedCodeWithoutLookup(t *testing.T) {
	store := &countingStore{SessionStore: newTestStore(t)}
	resolver := app.NewResolver(store)

	for _, code := range []string{"", "AB12C", "ABC2345", "AB 234", "abc-23"} {
		if _, err := resolver.Resolve(context.Background(), code); !errors.Is(err, domain.ErrInvalidSessionCode) {
			t.Fatalf("code %q: expected ErrInvalidSessionCode, got %v", code, err)
		}
	}
	if store.lookups != 0 {
		t.Fatalf("expected no store lookups for malformed codes, got %d", store.lookups)
	}
}

func TestResolveUnknownCode(t *testing.T) {
	resolver := app.NewResolver(memory.NewStore())

	if _, err := resolver.Resolve(context.Background(), "ZZZ999"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
