package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByTest retrieves all questions of a test, ordered by order_num. The
// correct answers are included; callers strip them before anything leaves
// the server.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, question_text, question_type, options, correct_answer, marks, negative_marks, order_num
		 FROM questions WHERE test_id = $1
		 ORDER BY order_num`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q          model.Question
			optionsRaw []byte
			correctRaw []byte
		)
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &q.Type, &optionsRaw, &correctRaw, &q.Marks, &q.NegativeMarks, &q.Order); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(optionsRaw, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", q.ID, err)
		}
		if err := json.Unmarshal(correctRaw, &q.CorrectAnswer); err != nil {
			return nil, fmt.Errorf("decode correct answer of %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	options := q.Options
	if options == nil {
		options = []string{}
	}
	optionsRaw, err := json.Marshal(options)
	if err != nil {
		return err
	}
	correctRaw, err := json.Marshal(q.CorrectAnswer)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (test_id, question_text, question_type, options, correct_answer, marks, negative_marks, order_num)
		 VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8)
		 RETURNING id`,
		q.TestID, q.Text, q.Type, string(optionsRaw), string(correctRaw), q.Marks, q.NegativeMarks, q.Order,
	).Scan(&q.ID)
}
