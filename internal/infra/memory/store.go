package memory

import (
	"context"
	"sync"

	"quizlive-service/internal/domain"
)

// Store is an in-memory session store with a per-session change feed. It
// backs tests and single-instance deployments; the Redis store provides
// the same contract across instances.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]domain.Session
	questions map[string][]domain.Question
	players   map[string]map[string]domain.Player
	joinSeq   map[string]int
	answers   map[string]map[string]map[string]domain.Answer
	subs      map[string]map[chan domain.Change]struct{}
}

func NewStore() *Store {
	return &Store{
		sessions:  make(map[string]domain.Session),
		questions: make(map[string][]domain.Question),
		players:   make(map[string]map[string]domain.Player),
		joinSeq:   make(map[string]int),
		answers:   make(map[string]map[string]map[string]domain.Answer),
		subs:      make(map[string]map[chan domain.Change]struct{}),
	}
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) PutSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	snapshot := session
	s.broadcastLocked(domain.Change{Kind: domain.ChangeSession, SessionID: session.ID, Session: &snapshot})
	return nil
}

func (s *Store) GetQuestions(_ context.Context, sessionID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions, ok := s.questions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	return out, nil
}

func (s *Store) PutQuestions(_ context.Context, sessionID string, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]domain.Question, len(questions))
	copy(stored, questions)
	s.questions[sessionID] = stored
	return nil
}

func (s *Store) GetPlayer(_ context.Context, sessionID, playerID string) (domain.Player, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[sessionID][playerID]
	return player, ok, nil
}

func (s *Store) UpsertPlayer(_ context.Context, player domain.Player) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.players[player.SessionID]
	if !ok {
		byID = make(map[string]domain.Player)
		s.players[player.SessionID] = byID
	}

	if existing, ok := byID[player.ID]; ok {
		// Keep score and arrival order on re-join.
		player.Score = existing.Score
		player.JoinOrder = existing.JoinOrder
	} else {
		s.joinSeq[player.SessionID]++
		player.JoinOrder = s.joinSeq[player.SessionID]
	}
	byID[player.ID] = player

	snapshot := player
	s.broadcastLocked(domain.Change{Kind: domain.ChangePlayer, SessionID: player.SessionID, Player: &snapshot})
	return player, nil
}

func (s *Store) ListPlayers(_ context.Context, sessionID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Player, 0, len(s.players[sessionID]))
	for _, p := range s.players[sessionID] {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) IncrementScore(_ context.Context, sessionID, playerID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[sessionID][playerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	player.Score += delta
	s.players[sessionID][playerID] = player

	snapshot := player
	s.broadcastLocked(domain.Change{Kind: domain.ChangePlayer, SessionID: sessionID, Player: &snapshot})
	return player.Score, nil
}

func (s *Store) InsertAnswer(_ context.Context, answer domain.Answer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byQuestion, ok := s.answers[answer.SessionID]
	if !ok {
		byQuestion = make(map[string]map[string]domain.Answer)
		s.answers[answer.SessionID] = byQuestion
	}
	byPlayer, ok := byQuestion[answer.QuestionID]
	if !ok {
		byPlayer = make(map[string]domain.Answer)
		byQuestion[answer.QuestionID] = byPlayer
	}
	if _, exists := byPlayer[answer.PlayerID]; exists {
		return false, nil
	}
	byPlayer[answer.PlayerID] = answer

	snapshot := answer
	s.broadcastLocked(domain.Change{Kind: domain.ChangeAnswer, SessionID: answer.SessionID, Answer: &snapshot})
	return true, nil
}

func (s *Store) ListAnswers(_ context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, 0, len(s.answers[sessionID][questionID]))
	for _, a := range s.answers[sessionID][questionID] {
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) Subscribe(_ context.Context, sessionID string) (<-chan domain.Change, func(), error) {
	ch := make(chan domain.Change, 16)

	s.mu.Lock()
	byCh, ok := s.subs[sessionID]
	if !ok {
		byCh = make(map[chan domain.Change]struct{})
		s.subs[sessionID] = byCh
	}
	byCh[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if byCh, ok := s.subs[sessionID]; ok {
			if _, ok := byCh[ch]; ok {
				delete(byCh, ch)
				close(ch)
			}
			if len(byCh) == 0 {
				delete(s.subs, sessionID)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *Store) broadcastLocked(change domain.Change) {
	for ch := range s.subs[change.SessionID] {
		select {
		case ch <- change:
		default:
			// Slow subscriber: drop its oldest pending notification rather
			// than blocking every other observer. Consumers replay from the
			// store, so a dropped notification only delays convergence.
			select {
			case <-ch:
			default:
			}
			ch <- change
		}
	}
}
