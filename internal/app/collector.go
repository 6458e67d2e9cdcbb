package app

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"quizlive-service/internal/domain"
)

// SubmitStatus classifies the outcome of a submission attempt.
type SubmitStatus string

const (
	// SubmitAccepted means the answer was stored and the score applied.
	SubmitAccepted SubmitStatus = "accepted"
	// SubmitDuplicate means an answer already existed for this player and
	// question. The attempt is a silent no-op, not an error, so flaky
	// at-least-once clients can retry safely.
	SubmitDuplicate SubmitStatus = "duplicate"
	// SubmitRejected means the submission was invalid (bad option index).
	SubmitRejected SubmitStatus = "rejected"
)

// SubmitResult summarizes one submission for the submitting player.
type SubmitResult struct {
	Status     SubmitStatus `json:"status"`
	QuestionID string       `json:"questionId"`
	Correct    bool         `json:"correct"`
	Awarded    int          `json:"awarded"`
	TotalScore int          `json:"totalScore"`
}

// Collector accumulates, deduplicates, and scores player submissions for
// the current question. Persisted answers are the source of truth;
// the in-memory view only serves the live tally and can be rebuilt from
// the store at any time.
type Collector struct {
	store     SessionStore
	questions QuestionSource
	log       zerolog.Logger

	mu sync.Mutex
	// accepted answers visible to the tally: session -> question -> player -> option
	view map[string]map[string]map[string]int
	// questions whose tally is frozen: session -> question
	frozen map[string]map[string]struct{}
}

func NewCollector(store SessionStore, questions QuestionSource, log zerolog.Logger) *Collector {
	return &Collector{
		store:     store,
		questions: questions,
		log:       log,
		view:      make(map[string]map[string]map[string]int),
		frozen:    make(map[string]map[string]struct{}),
	}
}

// Submit validates, scores, and stores one answer. First write wins per
// (session, question, player); the winning write also increments the
// player's roster score atomically.
func (c *Collector) Submit(ctx context.Context, sessionID, questionID, playerID string, optionIndex int, elapsedSeconds float64) (SubmitResult, error) {
	question, err := c.findQuestion(ctx, sessionID, questionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if optionIndex < 0 || optionIndex >= len(question.Options) {
		return SubmitResult{Status: SubmitRejected, QuestionID: questionID}, domain.ErrInvalidOption
	}

	correct := optionIndex == question.CorrectIndex
	awarded := scoreAnswer(correct, elapsedSeconds, question.TimeLimit())

	answer := domain.Answer{
		SchemaVersion:    domain.AnswerSchemaVersion,
		SessionID:        sessionID,
		QuestionID:       questionID,
		PlayerID:         playerID,
		OptionIndex:      optionIndex,
		TimeTakenSeconds: elapsedSeconds,
		AwardedScore:     awarded,
	}

	won, err := c.store.InsertAnswer(ctx, answer)
	if err != nil {
		return SubmitResult{}, err
	}
	if !won {
		// Absorb retry noise: the original answer stands and no second
		// score delta is applied.
		c.log.Debug().
			Str("session", sessionID).
			Str("question", questionID).
			Str("player", playerID).
			Msg("duplicate submission ignored")
		return SubmitResult{Status: SubmitDuplicate, QuestionID: questionID}, nil
	}

	total, err := c.store.IncrementScore(ctx, sessionID, playerID, awarded)
	if err != nil {
		return SubmitResult{}, err
	}

	c.Observe(domain.Change{Kind: domain.ChangeAnswer, SessionID: sessionID, Answer: &answer})

	return SubmitResult{
		Status:     SubmitAccepted,
		QuestionID: questionID,
		Correct:    correct,
		Awarded:    awarded,
		TotalScore: total,
	}, nil
}

// Observe folds an answer notification into the live tally view. Applying
// the same notification twice is harmless (keyed by player), and answers
// arriving after Freeze are dropped from the view while remaining
// persisted.
func (c *Collector) Observe(change domain.Change) {
	if change.Kind != domain.ChangeAnswer || change.Answer == nil {
		return
	}
	a := change.Answer

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.frozen[a.SessionID][a.QuestionID]; ok {
		return
	}
	byQuestion, ok := c.view[a.SessionID]
	if !ok {
		byQuestion = make(map[string]map[string]int)
		c.view[a.SessionID] = byQuestion
	}
	byPlayer, ok := byQuestion[a.QuestionID]
	if !ok {
		byPlayer = make(map[string]int)
		byQuestion[a.QuestionID] = byPlayer
	}
	if _, exists := byPlayer[a.PlayerID]; !exists {
		byPlayer[a.PlayerID] = a.OptionIndex
	}
}

// Tally counts accepted answers per option for one question. It walks the
// full accepted set rather than keeping running counters, so repeated
// calls and replays agree.
func (c *Collector) Tally(sessionID, questionID string) map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[int]int)
	for _, option := range c.view[sessionID][questionID] {
		counts[option]++
	}
	return counts
}

// Replay rebuilds the live view for one question from persisted answers.
// Used after reconnect, when the in-memory view may be stale or empty.
func (c *Collector) Replay(ctx context.Context, sessionID, questionID string) error {
	answers, err := c.store.ListAnswers(ctx, sessionID, questionID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	byQuestion, ok := c.view[sessionID]
	if !ok {
		byQuestion = make(map[string]map[string]int)
		c.view[sessionID] = byQuestion
	}
	byPlayer := make(map[string]int, len(answers))
	for _, a := range answers {
		if _, exists := byPlayer[a.PlayerID]; !exists {
			byPlayer[a.PlayerID] = a.OptionIndex
		}
	}
	byQuestion[questionID] = byPlayer
	return nil
}

// Freeze stops new submissions from entering the live tally for one
// question. Already-accepted answers stay visible.
func (c *Collector) Freeze(sessionID, questionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byQuestion, ok := c.frozen[sessionID]
	if !ok {
		byQuestion = make(map[string]struct{})
		c.frozen[sessionID] = byQuestion
	}
	byQuestion[questionID] = struct{}{}
}

// Clear discards the session's live view on a question-index change.
// Persisted answers remain for history; they just no longer leak into the
// next question's tally.
func (c *Collector) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.view, sessionID)
	delete(c.frozen, sessionID)
}

func (c *Collector) findQuestion(ctx context.Context, sessionID, questionID string) (domain.Question, error) {
	questions, err := c.questions.Questions(ctx, sessionID)
	if err != nil {
		return domain.Question{}, err
	}
	for i := range questions {
		if questions[i].ID == questionID {
			return questions[i], nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// scoreAnswer awards 1000 base points for a correct answer plus up to 1000
// speed bonus scaled linearly by remaining time, clamped to zero once the
// limit is exceeded. Incorrect answers score nothing.
func scoreAnswer(correct bool, elapsedSeconds float64, timeLimitSeconds int) int {
	if !correct {
		return 0
	}
	bonus := 1 - elapsedSeconds/float64(timeLimitSeconds)
	if bonus < 0 {
		bonus = 0
	}
	return int(math.Round(1000 + bonus*1000))
}
