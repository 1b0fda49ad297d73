package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// SessionStore is the durable session record.
type SessionStore interface {
	Create(ctx context.Context, testID uuid.UUID, takerID int) (*model.Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	GetByTestAndTaker(ctx context.Context, testID uuid.UUID, takerID int) (*model.Session, error)
	ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerSave, error)
	Complete(ctx context.Context, sessionID uuid.UUID, answers map[uuid.UUID]model.Answer, marked []uuid.UUID) (time.Time, error)
	GetGradeReport(ctx context.Context, sessionID uuid.UUID) (*model.GradeReport, error)
}

// TestStore reads tests.
type TestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
}

// QuestionStore reads questions with their correct answers.
type QuestionStore interface {
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
}

// AnswerCache holds the live answers of running sessions.
type AnswerCache interface {
	Save(ctx context.Context, sessionID uuid.UUID, save model.AnswerSave) (bool, error)
	Load(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerSave, bool, error)
	Seed(ctx context.Context, sessionID uuid.UUID, saves []model.AnswerSave) error
	MarkCompleted(ctx context.Context, sessionID uuid.UUID) error
	Reopen(ctx context.Context, sessionID uuid.UUID) error
}

// GradeQueue hands completed sessions to the grading worker.
type GradeQueue interface {
	EnqueueGrading(ctx context.Context, sessionID uuid.UUID) error
}

// SessionService implements the attempt lifecycle on the server: start or
// resume, bootstrap, answer persistence, submission and result retrieval.
type SessionService struct {
	sessions  SessionStore
	tests     TestStore
	questions QuestionStore
	cache     AnswerCache
	queue     GradeQueue
	log       zerolog.Logger

	// Questions do not change while a test is being taken.
	questionCache sync.Map // uuid.UUID → []model.Question
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions SessionStore,
	tests TestStore,
	questions QuestionStore,
	cache AnswerCache,
	queue GradeQueue,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		tests:     tests,
		questions: questions,
		cache:     cache,
		queue:     queue,
		log:       log.With().Str("component", "session_service").Logger(),
	}
}

// Start creates the taker's session for a test or returns the existing one.
// The start time is assigned once by the database.
func (s *SessionService) Start(ctx context.Context, takerID int, testID uuid.UUID) (*model.SessionDetails, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	questions, err := s.listQuestions(ctx, testID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, model.ErrNoQuestions
	}

	session, err := s.sessions.Create(ctx, testID, takerID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if session.Status == model.SessionStatusCompleted {
		return nil, model.ErrSessionCompleted
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("test_id", testID.String()).
		Int("taker_id", takerID).
		Msg("Session started")

	return s.details(ctx, session, test, questions)
}

// Instructions returns a test's description and instructions together with
// the state of the taker's session, if one exists, so the client can offer
// to start or resume.
func (s *SessionService) Instructions(ctx context.Context, takerID int, testID uuid.UUID) (*model.TestInstructions, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	out := &model.TestInstructions{Test: *test}

	session, err := s.sessions.GetByTestAndTaker(ctx, testID, takerID)
	switch {
	case err == nil:
		out.SessionStatus = session.Status
	case errors.Is(err, model.ErrNotFound):
	default:
		return nil, fmt.Errorf("get session: %w", err)
	}
	return out, nil
}

// Ongoing returns the taker's in-progress session of a test.
func (s *SessionService) Ongoing(ctx context.Context, takerID int, testID uuid.UUID) (*model.SessionDetails, error) {
	session, err := s.sessions.GetByTestAndTaker(ctx, testID, takerID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.Status == model.SessionStatusCompleted {
		return nil, model.ErrSessionCompleted
	}
	return s.bootstrap(ctx, session)
}

// Details returns a session owned by the taker, with its test and questions.
// Sessions of other takers are reported as not found.
func (s *SessionService) Details(ctx context.Context, takerID int, sessionID uuid.UUID) (*model.SessionDetails, error) {
	session, err := s.ownedSession(ctx, takerID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.bootstrap(ctx, session)
}

// SaveAnswer persists one edit. A save older than the stored revision is
// ignored and still reported as success, since a newer value already won.
func (s *SessionService) SaveAnswer(ctx context.Context, takerID int, sessionID uuid.UUID, save model.AnswerSave) error {
	session, err := s.ownedSession(ctx, takerID, sessionID)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusCompleted {
		return model.ErrSessionCompleted
	}

	questions, err := s.listQuestions(ctx, session.TestID)
	if err != nil {
		return err
	}
	q, ok := findQuestion(questions, save.QuestionID)
	if !ok {
		return fmt.Errorf("%w: question %s is not part of this test", model.ErrInvalidAnswer, save.QuestionID)
	}
	if err := q.ValidateAnswer(save.Answer); err != nil {
		return err
	}

	accepted, err := s.cache.Save(ctx, sessionID, save)
	if err != nil {
		if errors.Is(err, model.ErrSessionCompleted) {
			return err
		}
		return fmt.Errorf("save answer: %w", err)
	}
	if !accepted {
		s.log.Debug().
			Str("session_id", sessionID.String()).
			Str("question_id", save.QuestionID.String()).
			Int64("revision", save.Revision).
			Msg("Stale save ignored")
	}
	return nil
}

// Submit completes a session exactly once. The answer snapshot stored with
// the session is the state of the live answers at submission time.
func (s *SessionService) Submit(ctx context.Context, takerID int, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.ownedSession(ctx, takerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionStatusCompleted {
		return nil, model.ErrSessionCompleted
	}

	// Close the cache first so no save can slip in after the snapshot.
	if err := s.cache.MarkCompleted(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("close answers: %w", err)
	}

	saves, err := s.liveAnswers(ctx, sessionID)
	if err != nil {
		s.reopen(sessionID)
		return nil, err
	}
	answers, marked, _ := foldSaves(saves)

	endTime, err := s.sessions.Complete(ctx, sessionID, answers, marked)
	if err != nil {
		if errors.Is(err, model.ErrSessionCompleted) {
			return nil, err
		}
		s.reopen(sessionID)
		return nil, fmt.Errorf("complete session: %w", err)
	}

	// The session is completed either way; a lost job is picked up by the
	// grading sweep.
	if err := s.queue.EnqueueGrading(ctx, sessionID); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Failed to enqueue grading, leaving it to the sweep")
	}

	session.Status = model.SessionStatusCompleted
	session.EndTime = &endTime
	session.Answers = answers
	session.MarkedForReview = marked

	s.log.Info().
		Str("session_id", sessionID.String()).
		Int("answers", len(answers)).
		Msg("Session submitted")

	return session, nil
}

// Result returns the graded result of a completed session.
func (s *SessionService) Result(ctx context.Context, takerID int, sessionID uuid.UUID) (*model.Result, error) {
	session, err := s.ownedSession(ctx, takerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusCompleted {
		return nil, model.ErrResultPending
	}

	report, err := s.sessions.GetGradeReport(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	test, err := s.tests.GetByID(ctx, session.TestID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}

	return &model.Result{
		Session: model.ResultSession{
			ID:        session.ID,
			StartTime: session.StartTime,
			EndTime:   session.EndTime,
			Score:     report.Summary.Score,
		},
		Test:      *test,
		Summary:   report.Summary,
		Questions: report.Questions,
	}, nil
}

// ─── Internals ─────────────────────────────────────────────────────────────

func (s *SessionService) ownedSession(ctx context.Context, takerID int, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.TakerID != takerID {
		return nil, model.ErrNotFound
	}
	return session, nil
}

func (s *SessionService) bootstrap(ctx context.Context, session *model.Session) (*model.SessionDetails, error) {
	test, err := s.tests.GetByID(ctx, session.TestID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	questions, err := s.listQuestions(ctx, session.TestID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, session, test, questions)
}

// details assembles the bootstrap payload. Running sessions report their
// live answers; completed ones the snapshot taken at submission.
func (s *SessionService) details(ctx context.Context, session *model.Session, test *model.Test, questions []model.Question) (*model.SessionDetails, error) {
	out := *session
	if session.Status == model.SessionStatusInProgress {
		saves, err := s.liveAnswers(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		out.Answers, out.MarkedForReview, out.Revision = foldSaves(saves)
	}
	if out.Answers == nil {
		out.Answers = map[uuid.UUID]model.Answer{}
	}
	if out.MarkedForReview == nil {
		out.MarkedForReview = []uuid.UUID{}
	}

	public := make([]model.Question, len(questions))
	for i, q := range questions {
		q.CorrectAnswer = model.Answer{}
		public[i] = q
	}

	return &model.SessionDetails{Session: out, Test: *test, Questions: public}, nil
}

// liveAnswers reads the answer cache, falling back to PostgreSQL when the
// cache is unavailable or was never seeded, and heals the cache afterwards.
func (s *SessionService) liveAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerSave, error) {
	cached, complete, err := s.cache.Load(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Answer cache unavailable, reading PostgreSQL")
		cached, complete = nil, false
	}
	if complete {
		return cached, nil
	}

	persisted, err := s.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	merged := mergeSaves(persisted, cached)

	if err := s.cache.Seed(ctx, sessionID, merged); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to seed answer cache")
	}
	return merged, nil
}

func (s *SessionService) listQuestions(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	if v, ok := s.questionCache.Load(testID); ok {
		return v.([]model.Question), nil
	}
	questions, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) > 0 {
		s.questionCache.Store(testID, questions)
	}
	return questions, nil
}

func (s *SessionService) reopen(sessionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cache.Reopen(ctx, sessionID); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Failed to reopen answers after aborted submit")
	}
}

func findQuestion(questions []model.Question, id uuid.UUID) (model.Question, bool) {
	for _, q := range questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.Question{}, false
}

// mergeSaves keeps the highest revision per question across sources.
func mergeSaves(sources ...[]model.AnswerSave) []model.AnswerSave {
	latest := map[uuid.UUID]model.AnswerSave{}
	for _, src := range sources {
		for _, s := range src {
			if cur, ok := latest[s.QuestionID]; !ok || s.Revision > cur.Revision {
				latest[s.QuestionID] = s
			}
		}
	}
	out := make([]model.AnswerSave, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out
}

// foldSaves turns per-question saves into the session's answer map, its
// sorted review list and the highest revision seen.
func foldSaves(saves []model.AnswerSave) (map[uuid.UUID]model.Answer, []uuid.UUID, int64) {
	answers := make(map[uuid.UUID]model.Answer, len(saves))
	marked := []uuid.UUID{}
	var revision int64
	for _, s := range saves {
		if !s.Answer.IsEmpty() {
			answers[s.QuestionID] = s.Answer
		}
		if s.MarkedForReview {
			marked = append(marked, s.QuestionID)
		}
		if s.Revision > revision {
			revision = s.Revision
		}
	}
	sort.Slice(marked, func(i, j int) bool { return marked[i].String() < marked[j].String() })
	return answers, marked, revision
}
