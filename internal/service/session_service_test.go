package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ─── Fakes ─────────────────────────────────────────────────────────────────

type memSessions struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*model.Session
	persisted   map[uuid.UUID][]model.AnswerSave
	reports     map[uuid.UUID]*model.GradeReport
	completeErr error
	now         time.Time
}

func newMemSessions(now time.Time) *memSessions {
	return &memSessions{
		byID:      map[uuid.UUID]*model.Session{},
		persisted: map[uuid.UUID][]model.AnswerSave{},
		reports:   map[uuid.UUID]*model.GradeReport{},
		now:       now,
	}
}

func (m *memSessions) Create(_ context.Context, testID uuid.UUID, takerID int) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.TestID == testID && s.TakerID == takerID {
			cp := *s
			return &cp, nil
		}
	}
	s := &model.Session{
		ID:        uuid.New(),
		TestID:    testID,
		TakerID:   takerID,
		StartTime: m.now,
		Status:    model.SessionStatusInProgress,
	}
	m.byID[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *memSessions) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) GetByTestAndTaker(_ context.Context, testID uuid.UUID, takerID int) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.TestID == testID && s.TakerID == takerID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *memSessions) ListAnswers(_ context.Context, sessionID uuid.UUID) ([]model.AnswerSave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AnswerSave(nil), m.persisted[sessionID]...), nil
}

func (m *memSessions) Complete(_ context.Context, sessionID uuid.UUID, answers map[uuid.UUID]model.Answer, marked []uuid.UUID) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return time.Time{}, m.completeErr
	}
	s := m.byID[sessionID]
	if s.Status == model.SessionStatusCompleted {
		return time.Time{}, model.ErrSessionCompleted
	}
	end := m.now.Add(30 * time.Minute)
	s.Status = model.SessionStatusCompleted
	s.EndTime = &end
	s.Answers = answers
	s.MarkedForReview = marked
	return end, nil
}

func (m *memSessions) GetGradeReport(_ context.Context, sessionID uuid.UUID) (*model.GradeReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[sessionID]
	if !ok {
		return nil, model.ErrResultPending
	}
	return r, nil
}

type memTests map[uuid.UUID]*model.Test

func (m memTests) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	t, ok := m[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return t, nil
}

type memQuestions struct {
	byTest map[uuid.UUID][]model.Question
	calls  int
}

func (m *memQuestions) ListByTest(_ context.Context, testID uuid.UUID) ([]model.Question, error) {
	m.calls++
	return m.byTest[testID], nil
}

type memCache struct {
	mu        sync.Mutex
	answers   map[uuid.UUID]map[uuid.UUID]model.AnswerSave
	seeded    map[uuid.UUID]bool
	completed map[uuid.UUID]bool
	loadErr   error
}

func newMemCache() *memCache {
	return &memCache{
		answers:   map[uuid.UUID]map[uuid.UUID]model.AnswerSave{},
		seeded:    map[uuid.UUID]bool{},
		completed: map[uuid.UUID]bool{},
	}
}

func (c *memCache) Save(_ context.Context, sessionID uuid.UUID, save model.AnswerSave) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completed[sessionID] {
		return false, model.ErrSessionCompleted
	}
	h := c.answers[sessionID]
	if h == nil {
		h = map[uuid.UUID]model.AnswerSave{}
		c.answers[sessionID] = h
	}
	if cur, ok := h[save.QuestionID]; ok && cur.Revision >= save.Revision {
		return false, nil
	}
	h[save.QuestionID] = save
	return true, nil
}

func (c *memCache) Load(_ context.Context, sessionID uuid.UUID) ([]model.AnswerSave, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return nil, false, c.loadErr
	}
	var out []model.AnswerSave
	for _, s := range c.answers[sessionID] {
		out = append(out, s)
	}
	return out, c.seeded[sessionID], nil
}

func (c *memCache) Seed(_ context.Context, sessionID uuid.UUID, saves []model.AnswerSave) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return c.loadErr
	}
	h := c.answers[sessionID]
	if h == nil {
		h = map[uuid.UUID]model.AnswerSave{}
		c.answers[sessionID] = h
	}
	for _, s := range saves {
		if cur, ok := h[s.QuestionID]; !ok || cur.Revision < s.Revision {
			h[s.QuestionID] = s
		}
	}
	c.seeded[sessionID] = true
	return nil
}

func (c *memCache) MarkCompleted(_ context.Context, sessionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed[sessionID] = true
	return nil
}

func (c *memCache) Reopen(_ context.Context, sessionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.completed, sessionID)
	return nil
}

type memQueue struct {
	mu   sync.Mutex
	jobs []uuid.UUID
	err  error
}

func (q *memQueue) EnqueueGrading(_ context.Context, sessionID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, sessionID)
	return nil
}

type serviceFixture struct {
	svc       *SessionService
	sessions  *memSessions
	cache     *memCache
	queue     *memQueue
	questions *memQuestions
	test      *model.Test
	mcq       model.Question
	num       model.Question
}

const takerID = 7

func newServiceFixture() *serviceFixture {
	test := &model.Test{ID: uuid.New(), Name: "Physics Mock 1", Subject: "Physics", Duration: 60, TotalMarks: 6, NumQuestions: 2}
	mcq := model.Question{ID: uuid.New(), TestID: test.ID, Type: model.QuestionTypeMCQ, Options: []string{"a", "b", "c"}, Marks: 4, Order: 1, CorrectAnswer: model.OptionAnswer(2)}
	num := model.Question{ID: uuid.New(), TestID: test.ID, Type: model.QuestionTypeNumerical, Marks: 2, Order: 2, CorrectAnswer: model.NumericAnswer("9.8")}

	f := &serviceFixture{
		sessions:  newMemSessions(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		cache:     newMemCache(),
		queue:     &memQueue{},
		questions: &memQuestions{byTest: map[uuid.UUID][]model.Question{test.ID: {mcq, num}}},
		test:      test,
		mcq:       mcq,
		num:       num,
	}
	f.svc = NewSessionService(f.sessions, memTests{test.ID: test}, f.questions, f.cache, f.queue, zerolog.Nop())
	return f
}

func (f *serviceFixture) start(t *testing.T) *model.SessionDetails {
	t.Helper()
	d, err := f.svc.Start(context.Background(), takerID, f.test.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return d
}

// ─── Tests ─────────────────────────────────────────────────────────────────

func TestSessionService_StartIsIdempotentAndHidesCorrectAnswers(t *testing.T) {
	f := newServiceFixture()
	first := f.start(t)
	second := f.start(t)

	if first.Session.ID != second.Session.ID {
		t.Fatalf("second Start created a new session")
	}
	if !first.Session.StartTime.Equal(second.Session.StartTime) {
		t.Fatalf("start time moved from %v to %v", first.Session.StartTime, second.Session.StartTime)
	}
	for _, q := range first.Questions {
		if !q.CorrectAnswer.IsEmpty() {
			t.Fatalf("question %s leaks its correct answer", q.ID)
		}
	}
	if f.questions.calls != 1 {
		t.Fatalf("questions loaded %d times, want cached after first", f.questions.calls)
	}
}

func TestSessionService_StartErrors(t *testing.T) {
	f := newServiceFixture()

	if _, err := f.svc.Start(context.Background(), takerID, uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unknown test: err = %v, want ErrNotFound", err)
	}

	empty := &model.Test{ID: uuid.New(), Duration: 30}
	svc := NewSessionService(f.sessions, memTests{empty.ID: empty}, &memQuestions{}, f.cache, f.queue, zerolog.Nop())
	if _, err := svc.Start(context.Background(), takerID, empty.ID); !errors.Is(err, model.ErrNoQuestions) {
		t.Fatalf("empty test: err = %v, want ErrNoQuestions", err)
	}
}

func TestSessionService_SaveAnswerAndResume(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	d := f.start(t)
	id := d.Session.ID

	saves := []model.AnswerSave{
		{QuestionID: f.mcq.ID, Answer: model.OptionAnswer(0), Revision: 1},
		{QuestionID: f.mcq.ID, Answer: model.OptionAnswer(2), Revision: 3},
		// Arrives late: must not replace revision 3.
		{QuestionID: f.mcq.ID, Answer: model.OptionAnswer(1), Revision: 2},
		{QuestionID: f.num.ID, Answer: model.NumericAnswer("9.8"), MarkedForReview: true, Revision: 4},
	}
	for _, s := range saves {
		if err := f.svc.SaveAnswer(ctx, takerID, id, s); err != nil {
			t.Fatalf("SaveAnswer(rev %d): %v", s.Revision, err)
		}
	}

	got, err := f.svc.Ongoing(ctx, takerID, f.test.ID)
	if err != nil {
		t.Fatalf("Ongoing: %v", err)
	}
	if a := got.Session.Answers[f.mcq.ID]; !a.Equal(model.OptionAnswer(2)) {
		t.Fatalf("mcq answer = %v, want revision 3's", a)
	}
	if len(got.Session.MarkedForReview) != 1 || got.Session.MarkedForReview[0] != f.num.ID {
		t.Fatalf("marked = %v", got.Session.MarkedForReview)
	}
	if got.Session.Revision != 4 {
		t.Fatalf("revision = %d, want 4", got.Session.Revision)
	}
}

func TestSessionService_SaveAnswerRejections(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	id := f.start(t).Session.ID

	tests := []struct {
		name    string
		taker   int
		save    model.AnswerSave
		wantErr error
	}{
		{"foreign taker", takerID + 1, model.AnswerSave{QuestionID: f.mcq.ID, Answer: model.OptionAnswer(0), Revision: 1}, model.ErrNotFound},
		{"unknown question", takerID, model.AnswerSave{QuestionID: uuid.New(), Answer: model.OptionAnswer(0), Revision: 1}, model.ErrInvalidAnswer},
		{"wrong shape", takerID, model.AnswerSave{QuestionID: f.num.ID, Answer: model.OptionAnswer(0), Revision: 1}, model.ErrInvalidAnswer},
		{"out of range", takerID, model.AnswerSave{QuestionID: f.mcq.ID, Answer: model.OptionAnswer(5), Revision: 1}, model.ErrInvalidAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.SaveAnswer(ctx, tt.taker, id, tt.save)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionService_ResumeMergesPersistedAnswers(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	id := f.start(t).Session.ID

	// The cache was flushed; PostgreSQL still has an older and a newer save.
	f.cache = newMemCache()
	f.svc.cache = f.cache
	f.sessions.persisted[id] = []model.AnswerSave{
		{QuestionID: f.mcq.ID, Answer: model.OptionAnswer(1), Revision: 5},
		{QuestionID: f.num.ID, Answer: model.NumericAnswer("1"), Revision: 2},
	}
	if _, err := f.cache.Save(ctx, id, model.AnswerSave{QuestionID: f.num.ID, Answer: model.NumericAnswer("2"), Revision: 6}); err != nil {
		t.Fatalf("cache save: %v", err)
	}

	d, err := f.svc.Details(ctx, takerID, id)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if a := d.Session.Answers[f.mcq.ID]; !a.Equal(model.OptionAnswer(1)) {
		t.Fatalf("mcq = %v, want persisted answer", a)
	}
	if a := d.Session.Answers[f.num.ID]; !a.Equal(model.NumericAnswer("2")) {
		t.Fatalf("num = %v, want newer cached answer", a)
	}
	if d.Session.Revision != 6 {
		t.Fatalf("revision = %d, want 6", d.Session.Revision)
	}
	if !f.cache.seeded[id] {
		t.Fatal("cache was not healed")
	}
}

func TestSessionService_ResumeWithoutCache(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	id := f.start(t).Session.ID

	f.cache.loadErr = errors.New("redis down")
	f.sessions.persisted[id] = []model.AnswerSave{{QuestionID: f.mcq.ID, Answer: model.OptionAnswer(0), Revision: 1}}

	d, err := f.svc.Details(ctx, takerID, id)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if a := d.Session.Answers[f.mcq.ID]; !a.Equal(model.OptionAnswer(0)) {
		t.Fatalf("mcq = %v", a)
	}
}

func TestSessionService_SubmitOnce(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	id := f.start(t).Session.ID

	if err := f.svc.SaveAnswer(ctx, takerID, id, model.AnswerSave{QuestionID: f.mcq.ID, Answer: model.OptionAnswer(2), Revision: 1}); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}

	s, err := f.svc.Submit(ctx, takerID, id)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.Status != model.SessionStatusCompleted || s.EndTime == nil {
		t.Fatalf("submitted session = %+v", s)
	}
	if !s.Answers[f.mcq.ID].Equal(model.OptionAnswer(2)) {
		t.Fatalf("snapshot = %v", s.Answers)
	}
	if len(f.queue.jobs) != 1 || f.queue.jobs[0] != id {
		t.Fatalf("grading jobs = %v", f.queue.jobs)
	}

	if _, err := f.svc.Submit(ctx, takerID, id); !errors.Is(err, model.ErrSessionCompleted) {
		t.Fatalf("second Submit err = %v, want ErrSessionCompleted", err)
	}
	err = f.svc.SaveAnswer(ctx, takerID, id, model.AnswerSave{QuestionID: f.mcq.ID, Answer: model.OptionAnswer(0), Revision: 2})
	if !errors.Is(err, model.ErrSessionCompleted) {
		t.Fatalf("save after submit err = %v, want ErrSessionCompleted", err)
	}
	if _, err := f.svc.Ongoing(ctx, takerID, f.test.ID); !errors.Is(err, model.ErrSessionCompleted) {
		t.Fatalf("Ongoing after submit err = %v", err)
	}
	if _, err := f.svc.Start(ctx, takerID, f.test.ID); !errors.Is(err, model.ErrSessionCompleted) {
		t.Fatalf("Start after submit err = %v", err)
	}
}

func TestSessionService_Instructions(t *testing.T) {
	f := newServiceFixture()
	f.test.Description = "Full syllabus mock"
	f.test.Instructions = "1. Each question carries 4 marks."
	ctx := context.Background()

	in, err := f.svc.Instructions(ctx, takerID, f.test.ID)
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	if in.Instructions != f.test.Instructions || in.Description != f.test.Description {
		t.Fatalf("instructions = %+v", in.Test)
	}
	if in.SessionStatus != "" || in.Resumable() {
		t.Fatalf("fresh test reports session %q", in.SessionStatus)
	}

	id := f.start(t).Session.ID
	if in, _ = f.svc.Instructions(ctx, takerID, f.test.ID); !in.Resumable() {
		t.Fatalf("started test: status = %q", in.SessionStatus)
	}
	if _, err := f.svc.Submit(ctx, takerID, id); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if in, _ = f.svc.Instructions(ctx, takerID, f.test.ID); in.SessionStatus != model.SessionStatusCompleted {
		t.Fatalf("submitted test: status = %q", in.SessionStatus)
	}

	if _, err := f.svc.Instructions(ctx, takerID, uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unknown test: err = %v", err)
	}
}

func TestSessionService_SubmitSurvivesLostGradingJob(t *testing.T) {
	f := newServiceFixture()
	f.queue.err = errors.New("redis down")
	id := f.start(t).Session.ID

	s, err := f.svc.Submit(context.Background(), takerID, id)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.Status != model.SessionStatusCompleted {
		t.Fatalf("status = %s", s.Status)
	}
}

func TestSessionService_FailedSubmitReopensAnswers(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	id := f.start(t).Session.ID

	f.sessions.completeErr = errors.New("connection refused")
	if _, err := f.svc.Submit(ctx, takerID, id); err == nil {
		t.Fatal("Submit succeeded with a failing store")
	}
	if f.cache.completed[id] {
		t.Fatal("answers still closed after a failed submit")
	}
	if err := f.svc.SaveAnswer(ctx, takerID, id, model.AnswerSave{QuestionID: f.mcq.ID, Answer: model.OptionAnswer(1), Revision: 1}); err != nil {
		t.Fatalf("SaveAnswer after failed submit: %v", err)
	}
	if len(f.queue.jobs) != 0 {
		t.Fatalf("grading enqueued for a failed submit")
	}
}

func TestSessionService_Result(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	id := f.start(t).Session.ID

	if _, err := f.svc.Result(ctx, takerID, id); !errors.Is(err, model.ErrResultPending) {
		t.Fatalf("result of running session err = %v, want ErrResultPending", err)
	}
	if _, err := f.svc.Submit(ctx, takerID, id); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.svc.Result(ctx, takerID, id); !errors.Is(err, model.ErrResultPending) {
		t.Fatalf("ungraded result err = %v, want ErrResultPending", err)
	}

	report := GradeSession([]model.Question{f.mcq, f.num}, map[uuid.UUID]model.Answer{f.mcq.ID: model.OptionAnswer(2)})
	f.sessions.reports[id] = &report

	res, err := f.svc.Result(ctx, takerID, id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Session.Score != 4 || res.Summary.Percentage != "66.67" {
		t.Fatalf("result summary = %+v", res.Summary)
	}
	if res.Test.ID != f.test.ID {
		t.Fatalf("result test = %v", res.Test.ID)
	}
}

func TestMergeSavesKeepsHighestRevision(t *testing.T) {
	q := uuid.New()
	got := mergeSaves(
		[]model.AnswerSave{{QuestionID: q, Answer: model.OptionAnswer(1), Revision: 3}},
		[]model.AnswerSave{{QuestionID: q, Answer: model.OptionAnswer(2), Revision: 2}},
	)
	if len(got) != 1 || got[0].Revision != 3 {
		t.Fatalf("merge = %+v", got)
	}
}
