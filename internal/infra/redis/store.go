package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"quizlive-service/internal/domain"
)

// Store implements the session store contract on Redis:
//   - session and question records as JSON values,
//   - player profiles and scores in hashes, score deltas via HINCRBY so
//     concurrent increments from different writers never lose updates,
//   - answers via HSETNX, Redis's unique-constraint insert: the first
//     write wins and later ones report a duplicate,
//   - the change feed over a per-session pub/sub channel; delivery is
//     at-least-once from the subscriber's point of view and every message
//     carries the full record.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, unavailable("get session", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return session, nil
}

func (s *Store) PutSession(ctx context.Context, session domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), raw, 0).Err(); err != nil {
		return unavailable("put session", err)
	}
	return s.publish(ctx, domain.Change{Kind: domain.ChangeSession, SessionID: session.ID, Session: &session})
}

func (s *Store) GetQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	raw, err := s.client.Get(ctx, questionsKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, unavailable("get questions", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode questions %s: %w", sessionID, err)
	}
	return questions, nil
}

func (s *Store) PutQuestions(ctx context.Context, sessionID string, questions []domain.Question) error {
	raw, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("encode questions %s: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, questionsKey(sessionID), raw, 0).Err(); err != nil {
		return unavailable("put questions", err)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, sessionID, playerID string) (domain.Player, bool, error) {
	raw, err := s.client.HGet(ctx, playersKey(sessionID), playerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Player{}, false, nil
	}
	if err != nil {
		return domain.Player{}, false, unavailable("get player", err)
	}
	player, err := s.hydratePlayer(ctx, sessionID, raw)
	if err != nil {
		return domain.Player{}, false, err
	}
	return player, true, nil
}

func (s *Store) UpsertPlayer(ctx context.Context, player domain.Player) (domain.Player, error) {
	// Arrival order: claim a sequence number once per player. A lost race
	// burns a number, which is harmless; order just has to be stable.
	seq, err := s.client.Incr(ctx, joinSeqKey(player.SessionID)).Result()
	if err != nil {
		return domain.Player{}, unavailable("join sequence", err)
	}
	if err := s.client.HSetNX(ctx, joinOrderKey(player.SessionID), player.ID, seq).Err(); err != nil {
		return domain.Player{}, unavailable("join order", err)
	}
	if err := s.client.HSetNX(ctx, scoresKey(player.SessionID), player.ID, 0).Err(); err != nil {
		return domain.Player{}, unavailable("init score", err)
	}

	profile := player
	profile.Score = 0
	profile.JoinOrder = 0
	raw, err := json.Marshal(profile)
	if err != nil {
		return domain.Player{}, fmt.Errorf("encode player %s: %w", player.ID, err)
	}
	if err := s.client.HSet(ctx, playersKey(player.SessionID), player.ID, raw).Err(); err != nil {
		return domain.Player{}, unavailable("put player", err)
	}

	stored, err := s.hydratePlayer(ctx, player.SessionID, raw)
	if err != nil {
		return domain.Player{}, err
	}
	if err := s.publish(ctx, domain.Change{Kind: domain.ChangePlayer, SessionID: player.SessionID, Player: &stored}); err != nil {
		return domain.Player{}, err
	}
	return stored, nil
}

func (s *Store) ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error) {
	raws, err := s.client.HGetAll(ctx, playersKey(sessionID)).Result()
	if err != nil {
		return nil, unavailable("list players", err)
	}
	players := make([]domain.Player, 0, len(raws))
	for _, raw := range raws {
		player, err := s.hydratePlayer(ctx, sessionID, []byte(raw))
		if err != nil {
			return nil, err
		}
		players = append(players, player)
	}
	return players, nil
}

func (s *Store) IncrementScore(ctx context.Context, sessionID, playerID string, delta int) (int, error) {
	exists, err := s.client.HExists(ctx, playersKey(sessionID), playerID).Result()
	if err != nil {
		return 0, unavailable("check player", err)
	}
	if !exists {
		return 0, domain.ErrPlayerNotFound
	}

	total, err := s.client.HIncrBy(ctx, scoresKey(sessionID), playerID, int64(delta)).Result()
	if err != nil {
		return 0, unavailable("increment score", err)
	}

	player, ok, err := s.GetPlayer(ctx, sessionID, playerID)
	if err == nil && ok {
		_ = s.publish(ctx, domain.Change{Kind: domain.ChangePlayer, SessionID: sessionID, Player: &player})
	}
	return int(total), nil
}

func (s *Store) InsertAnswer(ctx context.Context, answer domain.Answer) (bool, error) {
	raw, err := json.Marshal(answer)
	if err != nil {
		return false, fmt.Errorf("encode answer: %w", err)
	}
	won, err := s.client.HSetNX(ctx, answersKey(answer.SessionID, answer.QuestionID), answer.PlayerID, raw).Result()
	if err != nil {
		return false, unavailable("insert answer", err)
	}
	if !won {
		return false, nil
	}
	if err := s.publish(ctx, domain.Change{Kind: domain.ChangeAnswer, SessionID: answer.SessionID, Answer: &answer}); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) ListAnswers(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	raws, err := s.client.HGetAll(ctx, answersKey(sessionID, questionID)).Result()
	if err != nil {
		return nil, unavailable("list answers", err)
	}
	answers := make([]domain.Answer, 0, len(raws))
	for _, raw := range raws {
		var a domain.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, nil
}

func (s *Store) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Change, func(), error) {
	pubsub := s.client.Subscribe(ctx, changeChannel(sessionID))
	// Force the SUBSCRIBE round trip so a failing connection surfaces here
	// rather than as a silent empty feed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, unavailable("subscribe", err)
	}

	out := make(chan domain.Change, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var change domain.Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return out, cancel, nil
}

func (s *Store) publish(ctx context.Context, change domain.Change) error {
	raw, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := s.client.Publish(ctx, changeChannel(change.SessionID), raw).Err(); err != nil {
		return unavailable("publish change", err)
	}
	return nil
}

// hydratePlayer merges a stored profile with its score and arrival-order
// fields, which live in separate hashes so increments stay atomic.
func (s *Store) hydratePlayer(ctx context.Context, sessionID string, raw []byte) (domain.Player, error) {
	var player domain.Player
	if err := json.Unmarshal(raw, &player); err != nil {
		return domain.Player{}, fmt.Errorf("decode player: %w", err)
	}

	if scoreStr, err := s.client.HGet(ctx, scoresKey(sessionID), player.ID).Result(); err == nil {
		if score, convErr := strconv.Atoi(scoreStr); convErr == nil {
			player.Score = score
		}
	}
	if orderStr, err := s.client.HGet(ctx, joinOrderKey(sessionID), player.ID).Result(); err == nil {
		if order, convErr := strconv.Atoi(orderStr); convErr == nil {
			player.JoinOrder = order
		}
	}
	return player, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrStoreUnavailable, err))
}

func sessionKey(id string) string   { return "quiz:" + id + ":session" }
func questionsKey(id string) string { return "quiz:" + id + ":questions" }
func playersKey(id string) string   { return "quiz:" + id + ":players" }
func scoresKey(id string) string    { return "quiz:" + id + ":scores" }
func joinOrderKey(id string) string { return "quiz:" + id + ":joinorder" }
func joinSeqKey(id string) string   { return "quiz:" + id + ":joinseq" }

func answersKey(id, questionID string) string { return "quiz:" + id + ":answers:" + questionID }
func changeChannel(id string) string          { return "quiz:changes:" + id }
