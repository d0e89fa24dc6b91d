package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"arena-quiz-service/internal/domain"
)

// AttemptStore writes completed quiz attempts through bun. The service calls
// it fire-and-forget; an insert failure here is logged upstream, never surfaced.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts"`

	ID             int64     `bun:"id,pk,autoincrement"`
	UserID         string    `bun:"user_id"`
	RoomCode       string    `bun:"room_code"`
	Topic          string    `bun:"topic"`
	Score          int       `bun:"score"`
	TotalQuestions int       `bun:"total_questions"`
	CorrectAnswers int       `bun:"correct_answers"`
	Rank           int       `bun:"rank"`
	TimeTaken      int       `bun:"time_taken"`
	CompletedAt    time.Time `bun:"completed_at"`
}

func (s *AttemptStore) RecordAttempts(ctx context.Context, attempts []domain.QuizAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	rows := make([]attemptRow, len(attempts))
	for i, a := range attempts {
		rows[i] = attemptRow{
			UserID:         a.Identity,
			RoomCode:       a.RoomCode,
			Topic:          a.Topic,
			Score:          a.Score,
			TotalQuestions: a.TotalQuestions,
			CorrectAnswers: a.CorrectAnswers,
			Rank:           a.Rank,
			TimeTaken:      a.TimeTaken,
			CompletedAt:    a.CompletedAt,
		}
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert quiz attempts: %w", err)
	}
	return nil
}
