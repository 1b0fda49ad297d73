package attempt

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

// State is the lifecycle state of an attempt as seen by the controller.
type State string

const (
	StateLoading    State = "loading"
	StateInProgress State = "in_progress"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

var (
	ErrAlreadyLoaded        = errors.New("attempt already loaded")
	ErrNotInProgress        = errors.New("attempt is not in progress")
	ErrSubmitSuppressed     = errors.New("a submission is already in flight")
	ErrWrongQuestionType    = errors.New("action does not apply to this question type")
	ErrUnexpectedCompletion = errors.New("session was completed elsewhere")
)

// SessionRef identifies the attempt to load: by session id when known,
// otherwise the taker's ongoing session of a test.
type SessionRef struct {
	TestID    uuid.UUID
	SessionID uuid.UUID
}

// Loader fetches a session with its test and questions.
type Loader interface {
	LoadSession(ctx context.Context, ref SessionRef) (*model.SessionDetails, error)
}

// Submitter finalizes a session.
type Submitter interface {
	Submit(ctx context.Context, sessionID uuid.UUID) error
}

// Backend bundles every collaborator the controller uses.
type Backend interface {
	Loader
	Saver
	Submitter
}

// NoticeKind classifies user-visible notices.
type NoticeKind string

const (
	NoticeWarning      NoticeKind = "warning"
	NoticeTimeUp       NoticeKind = "time_up"
	NoticeSaveFailed   NoticeKind = "save_failed"
	NoticeSubmitFailed NoticeKind = "submit_failed"
	NoticeCompleted    NoticeKind = "completed"
	NoticeLoadFailed   NoticeKind = "load_failed"
	NoticeFailed       NoticeKind = "failed"
)

// Notice is emitted to the UI. Transient kinds are dismissible; LoadFailed
// and Failed are terminal and should route the taker away, Completed carries
// the session id for result routing.
type Notice struct {
	Kind      NoticeKind
	Message   string
	SessionID uuid.UUID
	Err       error
}

type submitReason string

const (
	submitManual  submitReason = "manual"
	submitTimeout submitReason = "timeout"
)

// Options configures a Controller. Backend is required.
type Options struct {
	Backend       Backend
	Clock         Clock
	Logger        zerolog.Logger
	OnNotice      func(Notice)
	TickInterval  time.Duration
	FlushTimeout  time.Duration
	SubmitTimeout time.Duration
	SaveTimeout   time.Duration
	RetryBase     time.Duration
	RetryMax      time.Duration
}

// Controller is the attempt state machine. All methods are safe for
// concurrent use; state changes are serialized on an internal mutex and
// backend calls happen outside it. Edits are queued for saving under the
// mutex so revisions match the order they were applied.
type Controller struct {
	backend Backend
	clock   Clock
	log     zerolog.Logger
	notify  func(Notice)
	opts    Options

	mu        sync.Mutex
	state     State
	err       error
	session   model.Session
	test      model.Test
	questions []model.Question
	deadline  Deadline
	answers   *AnswerStore
	marked    map[uuid.UUID]struct{}
	visited   map[uuid.UUID]struct{}
	current   int
	remaining int
	warned    bool
	sync      *SyncChannel

	submitsSent    int
	autoFailures   int
	nextAutoSubmit time.Time

	countdownParent context.Context
	stopCountdown   context.CancelFunc
}

// NewController builds an idle controller in the loading state.
func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 5 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = defaultRetryMax
	}
	notify := opts.OnNotice
	if notify == nil {
		notify = func(Notice) {}
	}
	return &Controller{
		backend: opts.Backend,
		clock:   opts.Clock,
		log:     opts.Logger.With().Str("component", "attempt_controller").Logger(),
		notify:  notify,
		opts:    opts,
		state:   StateLoading,
		marked:  map[uuid.UUID]struct{}{},
		visited: map[uuid.UUID]struct{}{},
		answers: NewAnswerStore(nil),
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────────────

// Load fetches the session, seeds local state from it and settles in
// in_progress. A session whose deadline has already passed is submitted
// right away without a countdown.
func (c *Controller) Load(ctx context.Context, ref SessionRef) error {
	c.mu.Lock()
	if c.state != StateLoading {
		c.mu.Unlock()
		return ErrAlreadyLoaded
	}
	c.mu.Unlock()

	details, err := c.backend.LoadSession(ctx, ref)
	if err == nil {
		switch {
		case details.Session.Status == model.SessionStatusCompleted:
			err = model.ErrSessionCompleted
		case len(details.Questions) == 0:
			err = model.ErrNoQuestions
		}
	}
	if err != nil {
		c.fail(err, NoticeLoadFailed, "Failed to load exam session")
		return fmt.Errorf("load session: %w", err)
	}

	questions := append([]model.Question(nil), details.Questions...)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })

	c.mu.Lock()
	c.session = details.Session
	c.test = details.Test
	c.questions = questions
	c.deadline = NewDeadline(details.Session.StartTime, details.Test.Duration)
	c.answers = NewAnswerStore(details.Session.Answers)
	for _, id := range details.Session.MarkedForReview {
		c.marked[id] = struct{}{}
	}
	// Anything already answered or marked was necessarily visited before.
	for _, q := range questions {
		if c.answers.Answered(q.ID) || c.isMarkedLocked(q.ID) {
			c.visited[q.ID] = struct{}{}
		}
	}
	c.current = 0
	c.visited[questions[0].ID] = struct{}{}
	c.sync = NewSyncChannel(c.backend, details.Session.ID, SyncOptions{
		Clock:           c.clock,
		Logger:          c.opts.Logger,
		SaveTimeout:     c.opts.SaveTimeout,
		RetryBase:       c.opts.RetryBase,
		RetryMax:        c.opts.RetryMax,
		InitialRevision: details.Session.Revision,
		OnResult:        c.onSaveResult,
	})
	c.remaining = c.deadline.Remaining(c.clock.Now())
	c.state = StateInProgress

	expired := c.remaining == 0
	if expired {
		c.beginSubmitLocked()
	}
	c.mu.Unlock()

	c.log.Debug().
		Str("session_id", details.Session.ID.String()).
		Int("questions", len(questions)).
		Int("remaining", c.remaining).
		Msg("Attempt loaded")

	if expired {
		c.notify(Notice{Kind: NoticeTimeUp, Message: "Time is up! Submitting your exam..."})
		_ = c.runSubmit(ctx, submitTimeout)
	}
	return nil
}

// StartCountdown ticks the controller once per TickInterval until the
// attempt leaves in_progress or ctx is cancelled. It survives a failed
// submission: the countdown restarts when the attempt returns to
// in_progress.
func (c *Controller) StartCountdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countdownParent = ctx
	c.startCountdownLocked()
}

func (c *Controller) startCountdownLocked() {
	if c.state != StateInProgress || c.stopCountdown != nil || c.countdownParent == nil {
		return
	}
	ctx, cancel := context.WithCancel(c.countdownParent)
	c.stopCountdown = cancel
	ticker := c.clock.NewTicker(c.opts.TickInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if ctx.Err() != nil {
					return
				}
				c.Tick(ctx)
			}
		}
	}()
}

func (c *Controller) stopCountdownLocked() {
	if c.stopCountdown != nil {
		c.stopCountdown()
		c.stopCountdown = nil
	}
}

// Tick recomputes the remaining time from the deadline, raises the one-time
// warning and fires the automatic submission once time is up.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateInProgress {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	c.remaining = c.deadline.Remaining(now)

	var notices []Notice
	if !c.warned && c.remaining > 0 && c.remaining <= int(WarningThreshold/time.Second) {
		c.warned = true
		notices = append(notices, Notice{Kind: NoticeWarning, Message: "5 minutes remaining!"})
	}

	fire := false
	if c.remaining == 0 && !now.Before(c.nextAutoSubmit) {
		fire = c.beginSubmitLocked()
		notices = append(notices, Notice{Kind: NoticeTimeUp, Message: "Time is up! Submitting your exam..."})
	}
	c.mu.Unlock()

	for _, n := range notices {
		c.notify(n)
	}
	if fire {
		_ = c.runSubmit(ctx, submitTimeout)
	}
}

// Submit is the taker's confirmed submission. A call made while another
// submission is outstanding is suppressed.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	ok := c.beginSubmitLocked()
	c.mu.Unlock()

	if !ok {
		if state == StateSubmitting {
			return ErrSubmitSuppressed
		}
		return ErrNotInProgress
	}
	return c.runSubmit(ctx, submitManual)
}

// Close tears down the countdown and drains pending saves until ctx is done.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.stopCountdownLocked()
	c.countdownParent = nil
	sc := c.sync
	c.mu.Unlock()

	if sc == nil {
		return nil
	}
	return sc.Close(ctx)
}

// beginSubmitLocked is the single-flight guard: only the caller that moves
// the attempt from in_progress to submitting may call the submitter.
func (c *Controller) beginSubmitLocked() bool {
	if c.state != StateInProgress {
		return false
	}
	c.state = StateSubmitting
	c.stopCountdownLocked()
	return true
}

func (c *Controller) runSubmit(ctx context.Context, reason submitReason) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SubmitTimeout)
	defer cancel()

	log := c.log.With().Str("session_id", c.session.ID.String()).Str("reason", string(reason)).Logger()

	flushCtx, flushCancel := context.WithTimeout(ctx, c.opts.FlushTimeout)
	flushErr := c.sync.Flush(flushCtx)
	flushCancel()
	if flushErr != nil {
		if reason == submitManual {
			err := fmt.Errorf("submit: %w", flushErr)
			c.submitFailed(err, reason)
			return err
		}
		log.Warn().Err(flushErr).Msg("Submitting with unsaved edits after deadline")
	}

	c.mu.Lock()
	sentBefore := c.submitsSent > 0
	c.submitsSent++
	c.mu.Unlock()

	err := c.backend.Submit(ctx, c.session.ID)
	switch {
	case err == nil:
		c.complete()
		return nil

	case errors.Is(err, model.ErrSessionCompleted):
		if sentBefore {
			// An earlier submit of ours reached the server after all.
			log.Info().Msg("Duplicate submit confirmed as completed")
			c.complete()
			return nil
		}
		c.fail(ErrUnexpectedCompletion, NoticeFailed, "This exam was already submitted elsewhere")
		return ErrUnexpectedCompletion

	default:
		err = fmt.Errorf("submit: %w", err)
		c.submitFailed(err, reason)
		return err
	}
}

func (c *Controller) complete() {
	c.mu.Lock()
	c.state = StateCompleted
	c.stopCountdownLocked()
	sc := c.sync
	id := c.session.ID
	c.mu.Unlock()

	c.log.Info().Str("session_id", id.String()).Msg("Attempt submitted")

	closeCtx, cancel := context.WithTimeout(context.Background(), c.opts.FlushTimeout)
	_ = sc.Close(closeCtx)
	cancel()

	c.notify(Notice{Kind: NoticeCompleted, Message: "Exam submitted successfully!", SessionID: id})
}

// submitFailed returns the attempt to in_progress with the countdown
// re-derived from the deadline.
func (c *Controller) submitFailed(err error, reason submitReason) {
	c.mu.Lock()
	now := c.clock.Now()
	c.state = StateInProgress
	c.err = err
	c.remaining = c.deadline.Remaining(now)
	if reason == submitTimeout {
		c.autoFailures++
		c.nextAutoSubmit = now.Add(backoff(c.autoFailures, c.opts.RetryBase, c.opts.RetryMax))
	}
	c.startCountdownLocked()
	c.mu.Unlock()

	c.log.Error().Err(err).Str("reason", string(reason)).Msg("Submit failed")
	c.notify(Notice{Kind: NoticeSubmitFailed, Message: "Failed to submit exam", Err: err})
}

func (c *Controller) fail(err error, kind NoticeKind, msg string) {
	c.mu.Lock()
	c.state = StateError
	c.err = err
	c.stopCountdownLocked()
	sc := c.sync
	c.mu.Unlock()

	if sc != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), c.opts.FlushTimeout)
		_ = sc.Close(closeCtx)
		cancel()
	}

	c.log.Error().Err(err).Str("notice", string(kind)).Msg(msg)
	c.notify(Notice{Kind: kind, Message: msg, Err: err})
}

func (c *Controller) onSaveResult(r SaveResult) {
	if r.Err == nil {
		return
	}
	msg := "Failed to save answer"
	if r.Retrying {
		msg = "Failed to save answer, retrying"
	}
	c.notify(Notice{Kind: NoticeSaveFailed, Message: msg, Err: r.Err})
}

// ─── Navigation ────────────────────────────────────────────────────────────

// Goto makes question i current and marks it visited.
func (c *Controller) Goto(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return ErrNotInProgress
	}
	if i < 0 || i >= len(c.questions) {
		return fmt.Errorf("question index %d out of range", i)
	}
	c.current = i
	c.visited[c.questions[i].ID] = struct{}{}
	return nil
}

// Next moves to the following question; on the last question it stays.
func (c *Controller) Next() error {
	c.mu.Lock()
	i := c.current
	last := len(c.questions) - 1
	c.mu.Unlock()
	if i >= last {
		return nil
	}
	return c.Goto(i + 1)
}

// Previous moves to the preceding question; on the first question it stays.
func (c *Controller) Previous() error {
	c.mu.Lock()
	i := c.current
	c.mu.Unlock()
	if i <= 0 {
		return nil
	}
	return c.Goto(i - 1)
}

// ─── Editing ───────────────────────────────────────────────────────────────

// SelectOption answers a single-choice question.
func (c *Controller) SelectOption(option int) error {
	return c.edit(func(q model.Question) (model.Answer, error) {
		if q.Type != model.QuestionTypeMCQ && q.Type != model.QuestionTypeTrueFalse {
			return model.Answer{}, ErrWrongQuestionType
		}
		a := model.OptionAnswer(option)
		if err := q.ValidateAnswer(a); err != nil {
			return model.Answer{}, err
		}
		c.answers.Set(q.ID, a)
		return a, nil
	})
}

// ToggleOption flips one option of a multiple-correct question.
func (c *Controller) ToggleOption(option int) error {
	return c.edit(func(q model.Question) (model.Answer, error) {
		if q.Type != model.QuestionTypeMultipleCorrect {
			return model.Answer{}, ErrWrongQuestionType
		}
		if option < 0 || option >= len(q.Options) {
			return model.Answer{}, fmt.Errorf("%w: option %d out of range", model.ErrInvalidAnswer, option)
		}
		return c.answers.ToggleOption(q.ID, option), nil
	})
}

// SetNumeric answers a numerical question. A blank literal clears it.
func (c *Controller) SetNumeric(literal string) error {
	return c.edit(func(q model.Question) (model.Answer, error) {
		if q.Type != model.QuestionTypeNumerical {
			return model.Answer{}, ErrWrongQuestionType
		}
		a := model.NumericAnswer(literal)
		if err := q.ValidateAnswer(a); err != nil {
			return model.Answer{}, err
		}
		c.answers.Set(q.ID, a)
		return a, nil
	})
}

// ClearResponse removes the current answer. The review mark is untouched.
func (c *Controller) ClearResponse() error {
	return c.edit(func(q model.Question) (model.Answer, error) {
		c.answers.Clear(q.ID)
		return model.Answer{}, nil
	})
}

// ToggleMark flips the review mark of the current question and persists it
// together with the current answer.
func (c *Controller) ToggleMark() error {
	return c.edit(func(q model.Question) (model.Answer, error) {
		if c.isMarkedLocked(q.ID) {
			delete(c.marked, q.ID)
		} else {
			c.marked[q.ID] = struct{}{}
		}
		a, _ := c.answers.Get(q.ID)
		return a, nil
	})
}

// SaveAndNext persists the current question again and moves on.
func (c *Controller) SaveAndNext() error {
	err := c.edit(func(q model.Question) (model.Answer, error) {
		a, _ := c.answers.Get(q.ID)
		return a, nil
	})
	if err != nil {
		return err
	}
	return c.Next()
}

// edit applies fn to the current question and queues the resulting answer
// with the question's current mark.
func (c *Controller) edit(fn func(q model.Question) (model.Answer, error)) error {
	c.mu.Lock()
	if c.state != StateInProgress {
		c.mu.Unlock()
		return ErrNotInProgress
	}
	q := c.questions[c.current]
	a, err := fn(q)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	// Revisions must follow the order edits hit the store, so the push
	// happens under the same lock.
	c.sync.Push(q.ID, a, c.isMarkedLocked(q.ID))
	c.mu.Unlock()
	return nil
}

func (c *Controller) isMarkedLocked(id uuid.UUID) bool {
	_, ok := c.marked[id]
	return ok
}

// ─── Queries ───────────────────────────────────────────────────────────────

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the last submit or load error.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SessionID returns the loaded session's id.
func (c *Controller) SessionID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID
}

// Remaining returns the seconds left as of the last load or tick.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Answer returns the stored answer of a question.
func (c *Controller) Answer(id uuid.UUID) (model.Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers.Get(id)
}

// Palette classifies every question in order.
func (c *Controller) Palette() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paletteLocked()
}

// Summary tallies the palette.
func (c *Controller) Summary() Tally {
	return Summarize(c.Palette())
}

func (c *Controller) paletteLocked() []Status {
	out := make([]Status, len(c.questions))
	for i, q := range c.questions {
		_, visited := c.visited[q.ID]
		out[i] = Classify(visited, c.answers.Answered(q.ID), c.isMarkedLocked(q.ID))
	}
	return out
}

// View is a consistent snapshot for rendering.
type View struct {
	State     State
	Err       error
	SessionID uuid.UUID
	Test      model.Test
	Index     int
	Total     int
	Question  model.Question
	Answer    model.Answer
	Answered  bool
	Marked    bool
	Remaining int
	Palette   []Status
	Summary   Tally
	Unsaved   int
}

// View snapshots everything a renderer needs.
func (c *Controller) View() View {
	c.mu.Lock()
	v := View{
		State:     c.state,
		Err:       c.err,
		SessionID: c.session.ID,
		Test:      c.test,
		Index:     c.current,
		Total:     len(c.questions),
		Remaining: c.remaining,
		Palette:   c.paletteLocked(),
	}
	if len(c.questions) > 0 {
		q := c.questions[c.current]
		v.Question = q
		v.Answer, v.Answered = c.answers.Get(q.ID)
		v.Marked = c.isMarkedLocked(q.ID)
	}
	sc := c.sync
	c.mu.Unlock()

	v.Summary = Summarize(v.Palette)
	if sc != nil {
		v.Unsaved = sc.Unsaved()
	}
	return v
}
