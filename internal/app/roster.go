package app

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"quizlive-service/internal/domain"
)

// Roster manages the set of joined players and their cumulative scores.
type Roster struct {
	store SessionStore
	log   zerolog.Logger
}

func NewRoster(store SessionStore, log zerolog.Logger) *Roster {
	return &Roster{store: store, log: log}
}

// Join registers a player, or refreshes their name and clan if the same
// playerID joins again (page reload, reconnect). A re-join never resets the
// score or the arrival order. Joining an unknown session fails with
// ErrSessionNotFound.
func (r *Roster) Join(ctx context.Context, sessionID, playerID, name, clan, avatar string) (domain.Player, error) {
	if _, err := r.store.GetSession(ctx, sessionID); err != nil {
		return domain.Player{}, err
	}

	if existing, ok, err := r.store.GetPlayer(ctx, sessionID, playerID); err != nil {
		return domain.Player{}, err
	} else if ok {
		existing.Name = name
		if clan != "" {
			existing.Clan = clan
		}
		if avatar != "" {
			existing.Avatar = avatar
		}
		return r.store.UpsertPlayer(ctx, existing)
	}

	player, err := r.store.UpsertPlayer(ctx, domain.Player{
		SessionID: sessionID,
		ID:        playerID,
		Name:      name,
		Clan:      clan,
		Avatar:    avatar,
	})
	if err != nil {
		return domain.Player{}, err
	}
	r.log.Info().Str("session", sessionID).Str("player", playerID).Msg("player joined")
	return player, nil
}

// ApplyScoreDelta adds delta to a player's score through the store's atomic
// increment, so concurrent submissions from different players never lose
// updates. It returns the new total.
func (r *Roster) ApplyScoreDelta(ctx context.Context, sessionID, playerID string, delta int) (int, error) {
	total, err := r.store.IncrementScore(ctx, sessionID, playerID, delta)
	if err != nil && errors.Is(err, domain.ErrPlayerNotFound) {
		return 0, domain.ErrPlayerNotFound
	}
	return total, err
}

// List returns the session's players ordered by score descending, ties
// broken by arrival order (first joined first).
func (r *Roster) List(ctx context.Context, sessionID string) ([]domain.Player, error) {
	players, err := r.store.ListPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].JoinOrder < players[j].JoinOrder
	})
	return players, nil
}
