package app

import (
	"context"

	"quizlive-service/internal/domain"
)

// Resolver maps join codes to sessions. Codes with the wrong shape are
// rejected before any store access.
type Resolver struct {
	store SessionStore
}

func NewResolver(store SessionStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve validates the code shape and looks the session up. A malformed
// code fails fast with ErrInvalidSessionCode; a well-formed code with no
// session behind it fails with ErrSessionNotFound.
func (r *Resolver) Resolve(ctx context.Context, code string) (domain.Session, error) {
	if !domain.ValidSessionCode(code) {
		return domain.Session{}, domain.ErrInvalidSessionCode
	}
	return r.store.GetSession(ctx, code)
}
