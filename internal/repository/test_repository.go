package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// TestRepository handles test data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a test with its question count and total marks.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT t.id, t.name, t.subject, t.duration_minutes, t.description, t.instructions,
		        COUNT(q.id), COALESCE(SUM(q.marks), 0)
		 FROM tests t
		 LEFT JOIN questions q ON q.test_id = t.id
		 WHERE t.id = $1
		 GROUP BY t.id`, id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.Duration, &t.Description, &t.Instructions,
		&t.NumQuestions, &t.TotalMarks)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Create inserts a new test.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO tests (name, subject, duration_minutes, description, instructions)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		t.Name, t.Subject, t.Duration, t.Description, t.Instructions,
	).Scan(&t.ID)
}
