package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fakeBackend serves one session from memory.
type fakeBackend struct {
	mu      sync.Mutex
	details model.SessionDetails
	loadErr error
	saveErr error
	saves   []model.AnswerSave

	submitCalls   int
	submitResults []error
	submitGate    chan struct{}
	submitStarted chan struct{}
}

func (f *fakeBackend) LoadSession(ctx context.Context, ref SessionRef) (*model.SessionDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	d := f.details
	return &d, nil
}

func (f *fakeBackend) SaveAnswer(ctx context.Context, sessionID uuid.UUID, save model.AnswerSave) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, save)
	return nil
}

func (f *fakeBackend) Submit(ctx context.Context, sessionID uuid.UUID) error {
	f.mu.Lock()
	f.submitCalls++
	n := f.submitCalls
	gate, started := f.submitGate, f.submitStarted
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= len(f.submitResults) {
		return f.submitResults[n-1]
	}
	return nil
}

func (f *fakeBackend) setSaveErr(err error) {
	f.mu.Lock()
	f.saveErr = err
	f.mu.Unlock()
}

func (f *fakeBackend) setSubmitResults(errs ...error) {
	f.mu.Lock()
	f.submitResults = errs
	f.mu.Unlock()
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func (f *fakeBackend) lastSave(id uuid.UUID) (model.AnswerSave, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.saves) - 1; i >= 0; i-- {
		if f.saves[i].QuestionID == id {
			return f.saves[i], true
		}
	}
	return model.AnswerSave{}, false
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *noticeLog) add(x Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, x)
	n.mu.Unlock()
}

func (n *noticeLog) count(kind NoticeKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, x := range n.notices {
		if x.Kind == kind {
			c++
		}
	}
	return c
}

func sampleDetails() model.SessionDetails {
	testID := uuid.New()
	mk := func(order int, typ model.QuestionType, opts ...string) model.Question {
		return model.Question{ID: uuid.New(), TestID: testID, Type: typ, Options: opts, Marks: 4, Order: order}
	}
	return model.SessionDetails{
		Session: model.Session{
			ID:        uuid.New(),
			TestID:    testID,
			TakerID:   7,
			StartTime: testStart,
			Status:    model.SessionStatusInProgress,
		},
		Test: model.Test{ID: testID, Name: "Physics", Duration: 60, NumQuestions: 4},
		Questions: []model.Question{
			// Deliberately out of order; the controller sorts by Order.
			mk(3, model.QuestionTypeNumerical),
			mk(1, model.QuestionTypeMCQ, "a", "b", "c", "d"),
			mk(2, model.QuestionTypeMultipleCorrect, "a", "b", "c", "d"),
			mk(4, model.QuestionTypeTrueFalse, "True", "False"),
		},
	}
}

func newTestController(t *testing.T, b *fakeBackend, clock *fakeClock) (*Controller, *noticeLog) {
	t.Helper()
	notes := &noticeLog{}
	c := NewController(Options{
		Backend:       b,
		Clock:         clock,
		OnNotice:      notes.add,
		FlushTimeout:  time.Second,
		SubmitTimeout: 2 * time.Second,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c, notes
}

func loadAt(t *testing.T, at time.Duration) (*Controller, *fakeBackend, *fakeClock, *noticeLog) {
	t.Helper()
	b := &fakeBackend{details: sampleDetails()}
	clock := newFakeClock(testStart.Add(at))
	c, notes := newTestController(t, b, clock)
	if err := c.Load(context.Background(), SessionRef{SessionID: b.details.Session.ID}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c, b, clock, notes
}

func TestController_LoadSortsAndSeedsPalette(t *testing.T) {
	d := sampleDetails()
	numerical, mcq, multi := d.Questions[0].ID, d.Questions[1].ID, d.Questions[2].ID
	d.Session.Answers = map[uuid.UUID]model.Answer{numerical: model.NumericAnswer("0")}
	d.Session.MarkedForReview = []uuid.UUID{multi}

	b := &fakeBackend{details: d}
	c, _ := newTestController(t, b, newFakeClock(testStart.Add(10*time.Minute)))
	if err := c.Load(context.Background(), SessionRef{SessionID: d.Session.ID}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	v := c.View()
	if v.State != StateInProgress {
		t.Fatalf("state = %s", v.State)
	}
	if v.Question.ID != mcq {
		t.Fatalf("first question is %v, want the one with order 1", v.Question.ID)
	}
	if v.Remaining != 50*60 {
		t.Fatalf("remaining = %d, want 3000", v.Remaining)
	}
	want := []Status{StatusNotAnswered, StatusMarked, StatusAnswered, StatusNotVisited}
	for i, s := range v.Palette {
		if s != want[i] {
			t.Errorf("palette[%d] = %s, want %s", i, s, want[i])
		}
	}
	if v.Summary.Total() != 4 {
		t.Fatalf("summary total = %d", v.Summary.Total())
	}
}

func TestController_LoadRejectsCompletedSession(t *testing.T) {
	d := sampleDetails()
	d.Session.Status = model.SessionStatusCompleted
	b := &fakeBackend{details: d}
	c, notes := newTestController(t, b, newFakeClock(testStart))

	err := c.Load(context.Background(), SessionRef{SessionID: d.Session.ID})
	if !errors.Is(err, model.ErrSessionCompleted) {
		t.Fatalf("Load error = %v", err)
	}
	if c.State() != StateError || notes.count(NoticeLoadFailed) != 1 {
		t.Fatalf("state = %s, load notices = %d", c.State(), notes.count(NoticeLoadFailed))
	}
	if err := c.Load(context.Background(), SessionRef{}); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("second Load error = %v", err)
	}
}

func TestController_WarningFiresOnce(t *testing.T) {
	c, _, clock, notes := loadAt(t, 54*time.Minute)
	ctx := context.Background()

	c.Tick(ctx)
	if notes.count(NoticeWarning) != 0 {
		t.Fatal("warning fired with six minutes left")
	}

	clock.Set(testStart.Add(55 * time.Minute))
	c.Tick(ctx)
	clock.Set(testStart.Add(56 * time.Minute))
	c.Tick(ctx)
	clock.Set(testStart.Add(59 * time.Minute))
	c.Tick(ctx)

	if got := notes.count(NoticeWarning); got != 1 {
		t.Fatalf("warnings = %d, want 1", got)
	}
	if c.Remaining() != 60 {
		t.Fatalf("remaining = %d, want 60", c.Remaining())
	}
}

func TestController_WarningFiresAgainAfterReload(t *testing.T) {
	c, b, clock, notes := loadAt(t, 56*time.Minute)
	c.Tick(context.Background())
	if notes.count(NoticeWarning) != 1 {
		t.Fatalf("warnings = %d, want 1", notes.count(NoticeWarning))
	}

	// A restarted client holds no memory of the earlier warning.
	again, notes2 := newTestController(t, b, clock)
	if err := again.Load(context.Background(), SessionRef{SessionID: b.details.Session.ID}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	again.Tick(context.Background())
	again.Tick(context.Background())
	if notes2.count(NoticeWarning) != 1 {
		t.Fatalf("warnings after reload = %d, want 1", notes2.count(NoticeWarning))
	}
}

func TestController_AutoSubmitAtDeadline(t *testing.T) {
	c, b, clock, notes := loadAt(t, 59*time.Minute)
	ctx := context.Background()

	clock.Set(testStart.Add(59*time.Minute + 59*time.Second))
	c.Tick(ctx)
	if b.calls() != 0 {
		t.Fatal("submitted before the deadline")
	}

	clock.Set(testStart.Add(60 * time.Minute))
	c.Tick(ctx)
	c.Tick(ctx)

	if b.calls() != 1 {
		t.Fatalf("submit calls = %d, want 1", b.calls())
	}
	if c.State() != StateCompleted {
		t.Fatalf("state = %s", c.State())
	}
	if notes.count(NoticeTimeUp) != 1 || notes.count(NoticeCompleted) != 1 {
		t.Fatalf("notices = %+v", notes.notices)
	}
}

func TestController_CountdownTickerDrivesAutoSubmit(t *testing.T) {
	c, b, clock, _ := loadAt(t, 59*time.Minute+58*time.Second)
	c.StartCountdown(context.Background())

	clock.Advance(time.Second)
	clock.Advance(time.Second)

	if !eventually(func() bool { return c.State() == StateCompleted }) {
		t.Fatalf("state = %s, want completed", c.State())
	}
	if b.calls() != 1 {
		t.Fatalf("submit calls = %d, want 1", b.calls())
	}
}

func TestController_ExpiredAtLoadSubmitsImmediately(t *testing.T) {
	c, b, _, notes := loadAt(t, 61*time.Minute)

	if b.calls() != 1 {
		t.Fatalf("submit calls = %d, want 1", b.calls())
	}
	if c.State() != StateCompleted || c.Remaining() != 0 {
		t.Fatalf("state = %s remaining = %d", c.State(), c.Remaining())
	}
	if notes.count(NoticeTimeUp) != 1 {
		t.Fatal("missing time-up notice")
	}
}

func TestController_ManualAndTimeoutSubmitRaceSubmitsOnce(t *testing.T) {
	b := &fakeBackend{
		details:       sampleDetails(),
		submitGate:    make(chan struct{}),
		submitStarted: make(chan struct{}, 1),
	}
	clock := newFakeClock(testStart.Add(59 * time.Minute))
	c, _ := newTestController(t, b, clock)
	if err := c.Load(context.Background(), SessionRef{SessionID: b.details.Session.ID}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()
	<-b.submitStarted

	clock.Set(testStart.Add(60 * time.Minute))
	c.Tick(context.Background())
	if err := c.Submit(context.Background()); !errors.Is(err, ErrSubmitSuppressed) {
		t.Fatalf("second Submit error = %v, want ErrSubmitSuppressed", err)
	}
	if c.State() != StateSubmitting {
		t.Fatalf("state = %s, want submitting", c.State())
	}

	close(b.submitGate)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if b.calls() != 1 {
		t.Fatalf("submit calls = %d, want 1", b.calls())
	}
	if c.State() != StateCompleted {
		t.Fatalf("state = %s", c.State())
	}
}

func TestController_SubmitFailureReturnsToInProgress(t *testing.T) {
	c, b, _, notes := loadAt(t, 20*time.Minute)
	b.submitResults = []error{errors.New("bad gateway"), model.ErrSessionCompleted}

	if err := c.Submit(context.Background()); err == nil {
		t.Fatal("Submit succeeded, want error")
	}
	if c.State() != StateInProgress || c.Err() == nil {
		t.Fatalf("state = %s err = %v", c.State(), c.Err())
	}
	if notes.count(NoticeSubmitFailed) != 1 {
		t.Fatal("missing submit-failed notice")
	}
	if err := c.SelectOption(2); err != nil {
		t.Fatalf("editing after failed submit: %v", err)
	}

	// The first request did land; the server reports the session completed.
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if c.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", c.State())
	}
}

func TestController_UnexpectedCompletionIsAnError(t *testing.T) {
	c, b, _, notes := loadAt(t, 20*time.Minute)
	b.submitResults = []error{model.ErrSessionCompleted}

	if err := c.Submit(context.Background()); !errors.Is(err, ErrUnexpectedCompletion) {
		t.Fatalf("Submit error = %v", err)
	}
	if c.State() != StateError || notes.count(NoticeFailed) != 1 {
		t.Fatalf("state = %s", c.State())
	}
	if err := c.SelectOption(0); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("edit in error state = %v", err)
	}
}

func TestController_CompletedElsewhereAfterAbortedSubmitIsAnError(t *testing.T) {
	b := &fakeBackend{details: sampleDetails(), saveErr: errors.New("offline")}
	clock := newFakeClock(testStart.Add(time.Minute))
	c, notes := newTestController(t, b, clock)
	c.opts.FlushTimeout = 30 * time.Millisecond
	if err := c.Load(context.Background(), SessionRef{SessionID: b.details.Session.ID}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.SelectOption(1); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}

	if err := c.Submit(context.Background()); err == nil {
		t.Fatal("first Submit succeeded with unsaved edits")
	}
	if b.calls() != 0 {
		t.Fatalf("submit calls = %d, want 0", b.calls())
	}

	// Connectivity returns, the edit drains, and meanwhile the session was
	// completed from somewhere else.
	b.setSaveErr(nil)
	b.setSubmitResults(model.ErrSessionCompleted)
	if !eventually(func() bool { return clock.pendingTimers() > 0 }) {
		t.Fatal("no save retry scheduled")
	}
	clock.Advance(5 * time.Second)
	if !eventually(func() bool { return c.View().Unsaved == 0 }) {
		t.Fatal("edit never saved")
	}

	if err := c.Submit(context.Background()); !errors.Is(err, ErrUnexpectedCompletion) {
		t.Fatalf("second Submit error = %v, want ErrUnexpectedCompletion", err)
	}
	if c.State() != StateError {
		t.Fatalf("state = %s, want error", c.State())
	}
	if notes.count(NoticeFailed) != 1 || notes.count(NoticeCompleted) != 0 {
		t.Fatalf("failed = %d completed = %d", notes.count(NoticeFailed), notes.count(NoticeCompleted))
	}
}

func TestController_ParallelEditsSaveTheStoredAnswer(t *testing.T) {
	c, b, _, _ := loadAt(t, time.Minute)
	q := c.View().Question.ID

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(opt int) {
			defer wg.Done()
			_ = c.SelectOption(opt % 4)
		}(i)
	}
	wg.Wait()

	if !eventually(func() bool { return c.View().Unsaved == 0 }) {
		t.Fatal("edits never drained")
	}
	stored, ok := c.Answer(q)
	if !ok {
		t.Fatal("no stored answer")
	}
	saved, ok := b.lastSave(q)
	if !ok {
		t.Fatal("nothing saved")
	}
	if !saved.Answer.Equal(stored) {
		t.Fatalf("saved %v, stored %v", saved.Answer, stored)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 1; i < len(b.saves); i++ {
		if b.saves[i].Revision <= b.saves[i-1].Revision {
			t.Fatalf("revisions out of order: %d after %d", b.saves[i].Revision, b.saves[i-1].Revision)
		}
	}
}

func TestController_FailedAutoSubmitBacksOff(t *testing.T) {
	c, b, clock, _ := loadAt(t, 59*time.Minute)
	b.submitResults = []error{errors.New("offline"), errors.New("offline")}
	ctx := context.Background()

	clock.Set(testStart.Add(60 * time.Minute))
	c.Tick(ctx)
	if b.calls() != 1 || c.State() != StateInProgress {
		t.Fatalf("calls = %d state = %s", b.calls(), c.State())
	}

	c.Tick(ctx)
	if b.calls() != 1 {
		t.Fatal("retried without backing off")
	}

	clock.Set(testStart.Add(60*time.Minute + time.Second))
	c.Tick(ctx)
	if b.calls() != 2 {
		t.Fatalf("calls = %d, want a retry after backoff", b.calls())
	}

	clock.Set(testStart.Add(60*time.Minute + 4*time.Second))
	c.Tick(ctx)
	if b.calls() != 3 || c.State() != StateCompleted {
		t.Fatalf("calls = %d state = %s", b.calls(), c.State())
	}
}

func TestController_ManualSubmitAbortsWhenSavesCannotFlush(t *testing.T) {
	b := &fakeBackend{details: sampleDetails(), saveErr: errors.New("offline")}
	c, _ := newTestController(t, b, newFakeClock(testStart.Add(time.Minute)))
	c.opts.FlushTimeout = 30 * time.Millisecond
	if err := c.Load(context.Background(), SessionRef{SessionID: b.details.Session.ID}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.SelectOption(1); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}

	if err := c.Submit(context.Background()); err == nil {
		t.Fatal("Submit succeeded with unsaved edits")
	}
	if b.calls() != 0 {
		t.Fatal("submitter called despite unsaved edits")
	}
	if c.State() != StateInProgress {
		t.Fatalf("state = %s", c.State())
	}
}

func TestController_ClearAfterAnswer(t *testing.T) {
	c, b, _, _ := loadAt(t, time.Minute)
	v := c.View()
	q := v.Question.ID

	if err := c.SelectOption(1); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}
	if c.Palette()[0] != StatusAnswered {
		t.Fatalf("palette[0] = %s", c.Palette()[0])
	}
	if err := c.ClearResponse(); err != nil {
		t.Fatalf("ClearResponse: %v", err)
	}
	if _, ok := c.Answer(q); ok {
		t.Fatal("answer still stored after clear")
	}
	if c.Palette()[0] != StatusNotAnswered {
		t.Fatalf("palette[0] = %s", c.Palette()[0])
	}

	if !eventually(func() bool {
		s, ok := b.lastSave(q)
		return ok && s.Answer.IsEmpty()
	}) {
		t.Fatal("clear was not persisted")
	}
}

func TestController_EditsPerQuestionType(t *testing.T) {
	c, b, _, _ := loadAt(t, time.Minute)

	// mcq
	if err := c.ToggleOption(0); !errors.Is(err, ErrWrongQuestionType) {
		t.Fatalf("ToggleOption on mcq = %v", err)
	}
	if err := c.SelectOption(7); !errors.Is(err, model.ErrInvalidAnswer) {
		t.Fatalf("out of range option = %v", err)
	}

	// multiple_correct
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	multi := c.View().Question.ID
	for _, o := range []int{1, 2, 1} {
		if err := c.ToggleOption(o); err != nil {
			t.Fatalf("ToggleOption(%d): %v", o, err)
		}
	}
	if a, _ := c.Answer(multi); !a.Equal(model.OptionsAnswer(2)) {
		t.Fatalf("multi answer = %v, want [2]", a)
	}

	// numerical
	if err := c.SaveAndNext(); err != nil {
		t.Fatal(err)
	}
	if err := c.SetNumeric("abc"); !errors.Is(err, model.ErrInvalidAnswer) {
		t.Fatalf("SetNumeric(abc) = %v", err)
	}
	if err := c.SetNumeric("0"); err != nil {
		t.Fatalf("SetNumeric(0): %v", err)
	}
	if err := c.ToggleMark(); err != nil {
		t.Fatal(err)
	}
	if got := c.View(); !got.Answered || !got.Marked {
		t.Fatalf("view = %+v", got)
	}
	if c.Palette()[2] != StatusAnsweredMarked {
		t.Fatalf("palette[2] = %s", c.Palette()[2])
	}

	numerical := c.View().Question.ID
	if !eventually(func() bool {
		s, ok := b.lastSave(numerical)
		return ok && s.MarkedForReview && s.Answer.Equal(model.NumericAnswer("0"))
	}) {
		t.Fatal("mark was not persisted with the answer")
	}
}

func TestController_Navigation(t *testing.T) {
	c, _, _, _ := loadAt(t, time.Minute)

	if err := c.Previous(); err != nil || c.View().Index != 0 {
		t.Fatalf("Previous on first question moved to %d (%v)", c.View().Index, err)
	}
	if err := c.Goto(3); err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil || c.View().Index != 3 {
		t.Fatalf("Next on last question moved to %d (%v)", c.View().Index, err)
	}
	if err := c.Goto(9); err == nil {
		t.Fatal("Goto out of range succeeded")
	}

	p := c.Palette()
	if p[3] != StatusNotAnswered || p[1] != StatusNotVisited {
		t.Fatalf("palette = %v", p)
	}
}
