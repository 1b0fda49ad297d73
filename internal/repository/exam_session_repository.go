package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// QueuedAnswer is an accepted save on its way to PostgreSQL.
type QueuedAnswer struct {
	SessionID uuid.UUID `json:"session_id"`
	model.AnswerSave
}

// GradedSession is a grading outcome ready to be stored.
type GradedSession struct {
	SessionID uuid.UUID
	Score     float64
	Report    model.GradeReport
}

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, test_id, taker_id, start_time, end_time, status, answers, marked_for_review, score`

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		s          model.Session
		answersRaw []byte
		markedRaw  []byte
	)
	err := row.Scan(&s.ID, &s.TestID, &s.TakerID, &s.StartTime, &s.EndTime, &s.Status, &answersRaw, &markedRaw, &s.Score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(answersRaw, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(markedRaw, &s.MarkedForReview); err != nil {
		return nil, fmt.Errorf("decode marked_for_review: %w", err)
	}
	return &s, nil
}

// GetByID retrieves a session by id.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetByTestAndTaker retrieves the session of one taker for one test.
func (r *ExamSessionRepository) GetByTestAndTaker(ctx context.Context, testID uuid.UUID, takerID int) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE test_id = $1 AND taker_id = $2`, testID, takerID))
}

// Create starts a session or returns the existing one. start_time comes from
// the database clock and is never rewritten.
func (r *ExamSessionRepository) Create(ctx context.Context, testID uuid.UUID, takerID int) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (test_id, taker_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (test_id, taker_id) DO UPDATE SET taker_id = EXCLUDED.taker_id
		 RETURNING `+sessionColumns,
		testID, takerID, model.SessionStatusInProgress))
}

// ListAnswers returns the live answers persisted for a session.
func (r *ExamSessionRepository) ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerSave, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer, marked_for_review, revision
		 FROM session_answers WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AnswerSave
	for rows.Next() {
		var (
			a   model.AnswerSave
			raw []byte
		)
		if err := rows.Scan(&a.QuestionID, &raw, &a.MarkedForReview, &a.Revision); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &a.Answer); err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", a.QuestionID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAnswers writes a batch of saves. A row is only replaced by a newer
// revision, and nothing is written once the session is completed.
func (r *ExamSessionRepository) UpsertAnswers(ctx context.Context, batch []QueuedAnswer) error {
	if len(batch) == 0 {
		return nil
	}
	batch = latestPerQuestion(batch)

	n := len(batch)
	sessionIDs := make([]uuid.UUID, n)
	questionIDs := make([]uuid.UUID, n)
	answers := make([]string, n)
	marked := make([]bool, n)
	revisions := make([]int64, n)
	for i, q := range batch {
		raw, err := json.Marshal(q.Answer)
		if err != nil {
			return fmt.Errorf("encode answer: %w", err)
		}
		sessionIDs[i] = q.SessionID
		questionIDs[i] = q.QuestionID
		answers[i] = string(raw)
		marked[i] = q.MarkedForReview
		revisions[i] = q.Revision
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_answers (session_id, question_id, answer, marked_for_review, revision)
		 SELECT u.session_id, u.question_id, u.answer::jsonb, u.marked, u.revision
		 FROM UNNEST($1::uuid[], $2::uuid[], $3::text[], $4::bool[], $5::int8[])
		      AS u (session_id, question_id, answer, marked, revision)
		 JOIN exam_sessions s ON s.id = u.session_id AND s.status = 'in_progress'
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer,
		     marked_for_review = EXCLUDED.marked_for_review,
		     revision = EXCLUDED.revision,
		     updated_at = NOW()
		 WHERE session_answers.revision < EXCLUDED.revision`,
		sessionIDs, questionIDs, answers, marked, revisions)
	return err
}

// latestPerQuestion keeps only the highest revision of each question, since
// one INSERT cannot touch the same row twice.
func latestPerQuestion(batch []QueuedAnswer) []QueuedAnswer {
	type key struct{ session, question uuid.UUID }
	idx := make(map[key]int, len(batch))
	out := make([]QueuedAnswer, 0, len(batch))
	for _, q := range batch {
		k := key{q.SessionID, q.QuestionID}
		if i, ok := idx[k]; ok {
			if q.Revision > out[i].Revision {
				out[i] = q
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, q)
	}
	return out
}

// Complete finalizes a session together with its answer snapshot. The status
// guard makes it the single point that decides which submit wins; a session
// that is no longer in progress yields model.ErrSessionCompleted.
func (r *ExamSessionRepository) Complete(ctx context.Context, sessionID uuid.UUID, answers map[uuid.UUID]model.Answer, marked []uuid.UUID) (time.Time, error) {
	answersRaw, err := json.Marshal(answers)
	if err != nil {
		return time.Time{}, fmt.Errorf("encode answers: %w", err)
	}
	if marked == nil {
		marked = []uuid.UUID{}
	}
	markedRaw, err := json.Marshal(marked)
	if err != nil {
		return time.Time{}, fmt.Errorf("encode marked: %w", err)
	}

	var endTime time.Time
	err = r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET status = $2, end_time = NOW(), answers = $3::jsonb, marked_for_review = $4::jsonb
		 WHERE id = $1 AND status = $5
		 RETURNING end_time`,
		sessionID, model.SessionStatusCompleted, string(answersRaw), string(markedRaw), model.SessionStatusInProgress,
	).Scan(&endTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, model.ErrSessionCompleted
	}
	return endTime, err
}

// SaveGrades stores scores and reports for a batch of graded sessions.
func (r *ExamSessionRepository) SaveGrades(ctx context.Context, batch []GradedSession) error {
	if len(batch) == 0 {
		return nil
	}
	n := len(batch)
	ids := make([]uuid.UUID, n)
	scores := make([]float64, n)
	reports := make([]string, n)
	for i, g := range batch {
		raw, err := json.Marshal(g.Report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		ids[i] = g.SessionID
		scores[i] = g.Score
		reports[i] = string(raw)
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions AS s
		 SET score = t.score, result = t.report::jsonb
		 FROM UNNEST($1::uuid[], $2::float8[], $3::text[]) AS t (id, score, report)
		 WHERE s.id = t.id AND s.status = 'completed'`,
		ids, scores, reports)
	return err
}

// ListUngraded returns completed sessions submitted before cutoff that still
// have no result, oldest first.
func (r *ExamSessionRepository) ListUngraded(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exam_sessions
		 WHERE status = 'completed' AND result IS NULL AND end_time < $1
		 ORDER BY end_time
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ungraded: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetGradeReport returns the stored report of a completed session, or
// model.ErrResultPending when grading has not finished.
func (r *ExamSessionRepository) GetGradeReport(ctx context.Context, sessionID uuid.UUID) (*model.GradeReport, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT result FROM exam_sessions WHERE id = $1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, model.ErrResultPending
	}
	var report model.GradeReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
