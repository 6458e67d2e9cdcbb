package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizlive-service/internal/domain"
)

// QuestionLoader loads authored question sets as JSONB from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_sets WHERE session_id=$1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal question set: %w", err)
	}
	return questions, nil
}

// SaveQuestions upserts a session's question set, used at authoring time.
func (l *QuestionLoader) SaveQuestions(ctx context.Context, sessionID string, questions []domain.Question) error {
	raw, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal question set: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO question_sets (session_id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (session_id) DO UPDATE SET data=EXCLUDED.data`,
		sessionID, raw)
	if err != nil {
		return fmt.Errorf("save question set: %w", err)
	}
	return nil
}
