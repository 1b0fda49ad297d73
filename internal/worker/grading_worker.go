package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// GradeStore reads submitted sessions and stores their grades.
type GradeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	SaveGrades(ctx context.Context, batch []repository.GradedSession) error
}

// QuestionLister reads a test's questions with their correct answers.
type QuestionLister interface {
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
}

// AnswerDropper frees the live answers of sessions that no longer need them.
type AnswerDropper interface {
	Drop(ctx context.Context, sessionIDs ...uuid.UUID) error
}

// GradingWorker consumes grade_sessions_queue, grades the answer snapshot of
// each submitted session and stores score and report in one batch update.
type GradingWorker struct {
	sessions  GradeStore
	questions QuestionLister
	answers   AnswerDropper
	queue     listQueue
	batchSize int
	log       zerolog.Logger
}

// NewGradingWorker creates a new GradingWorker.
func NewGradingWorker(
	sessions GradeStore,
	questions QuestionLister,
	answers AnswerDropper,
	queue listQueue,
	batchSize int,
	log zerolog.Logger,
) *GradingWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &GradingWorker{
		sessions:  sessions,
		questions: questions,
		answers:   answers,
		queue:     queue,
		batchSize: batchSize,
		log:       log.With().Str("component", "grading_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("GradingWorker started")
	b := &batcher{
		queue: w.queue,
		key:   config.WorkerKey.GradeSessionsQueue,
		size:  w.batchSize,
		flush: w.grade,
		onErr: func(err error, msg string) { w.log.Error().Err(err).Msg(msg) },
		sleep: sleepCtx,
	}
	b.run(ctx)
	w.log.Info().Msg("GradingWorker stopped")
}

func (w *GradingWorker) grade(ctx context.Context, raw []string) error {
	questionsByTest := map[uuid.UUID][]model.Question{}
	graded := make([]repository.GradedSession, 0, len(raw))
	seen := map[uuid.UUID]bool{}

	for _, r := range raw {
		var job repository.GradeJob
		if err := json.Unmarshal([]byte(r), &job); err != nil {
			w.log.Error().Err(err).Str("payload", r).Msg("Dropping invalid job")
			continue
		}
		if seen[job.SessionID] {
			continue
		}
		seen[job.SessionID] = true

		session, err := w.sessions.GetByID(ctx, job.SessionID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				w.log.Warn().Str("session_id", job.SessionID.String()).Msg("Dropping job for unknown session")
				continue
			}
			return fmt.Errorf("get session %s: %w", job.SessionID, err)
		}
		if session.Status != model.SessionStatusCompleted {
			w.log.Warn().Str("session_id", job.SessionID.String()).Msg("Dropping job for unsubmitted session")
			continue
		}

		questions, ok := questionsByTest[session.TestID]
		if !ok {
			questions, err = w.questions.ListByTest(ctx, session.TestID)
			if err != nil {
				return fmt.Errorf("list questions of %s: %w", session.TestID, err)
			}
			questionsByTest[session.TestID] = questions
		}

		report := service.GradeSession(questions, session.Answers)
		graded = append(graded, repository.GradedSession{
			SessionID: session.ID,
			Score:     report.Summary.Score,
			Report:    report,
		})
	}

	if len(graded) == 0 {
		return nil
	}
	if err := w.sessions.SaveGrades(ctx, graded); err != nil {
		return fmt.Errorf("save grades: %w", err)
	}

	ids := make([]uuid.UUID, len(graded))
	for i, g := range graded {
		ids[i] = g.SessionID
	}
	if err := w.answers.Drop(ctx, ids...); err != nil {
		w.log.Warn().Err(err).Msg("Failed to drop graded answer caches")
	}

	w.log.Info().Int("count", len(graded)).Msg("Sessions graded")
	return nil
}
