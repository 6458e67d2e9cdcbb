package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quizlive-service/internal/domain"
)

// ContentProvider supplies question content at authoring time. Providers
// are consumed exactly once, before the session's state machine activates;
// a provider failure surfaces to the author and never touches the store.
type ContentProvider interface {
	Generate(ctx context.Context, topic, skillLevel string, count int) ([]domain.Question, error)
}

// AuthorRequest describes a session to create.
type AuthorRequest struct {
	Title      string
	Topic      string
	SkillLevel string
	Count      int
	ClanMode   bool
	ClanNames  map[string]string
}

// Author creates sessions from provider content.
type Author struct {
	store    SessionStore
	provider ContentProvider
	now      func() time.Time
	log      zerolog.Logger
}

func NewAuthor(store SessionStore, provider ContentProvider, log zerolog.Logger) *Author {
	return &Author{store: store, provider: provider, now: time.Now, log: log}
}

// CreateSession fetches content, normalizes it, and persists the new
// session in LOBBY with its immutable question sequence.
func (a *Author) CreateSession(ctx context.Context, req AuthorRequest) (domain.Session, error) {
	raw, err := a.provider.Generate(ctx, req.Topic, req.SkillLevel, req.Count)
	if err != nil {
		return domain.Session{}, fmt.Errorf("generate questions: %w", err)
	}
	questions, err := NormalizeQuestions(raw)
	if err != nil {
		return domain.Session{}, err
	}

	code, err := domain.NewSessionCode()
	if err != nil {
		return domain.Session{}, fmt.Errorf("session code: %w", err)
	}

	session := domain.Session{
		ID:        code,
		Title:     req.Title,
		State:     domain.StateLobby,
		ClanMode:  req.ClanMode,
		ClanNames: req.ClanNames,
		CreatedAt: a.now(),
	}
	if err := a.store.PutSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	if err := a.store.PutQuestions(ctx, code, questions); err != nil {
		return domain.Session{}, err
	}

	a.log.Info().Str("session", code).Int("questions", len(questions)).Msg("session authored")
	return session, nil
}

// NormalizeQuestions enforces the single question schema: blank options are
// filtered out, 2-4 options must remain, the correct index must land inside
// them, and missing time limits get the default. Question IDs are assigned
// when absent.
func NormalizeQuestions(raw []domain.Question) ([]domain.Question, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no questions provided")
	}

	out := make([]domain.Question, 0, len(raw))
	for i, q := range raw {
		options := make([]string, 0, len(q.Options))
		correct := -1
		for j, opt := range q.Options {
			opt = strings.TrimSpace(opt)
			if opt == "" {
				continue
			}
			if j == q.CorrectIndex {
				correct = len(options)
			}
			options = append(options, opt)
		}
		if len(options) < 2 || len(options) > 4 {
			return nil, fmt.Errorf("question %d: need 2-4 options, got %d", i, len(options))
		}
		if correct < 0 {
			return nil, fmt.Errorf("question %d: correct option missing or blank", i)
		}

		q.Options = options
		q.CorrectIndex = correct
		if q.TimeLimitSeconds <= 0 {
			q.TimeLimitSeconds = domain.DefaultTimeLimitSeconds
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		out = append(out, q)
	}
	return out, nil
}
