package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const (
	defaultSaveTimeout = 10 * time.Second
	defaultRetryBase   = time.Second
	defaultRetryMax    = 30 * time.Second
)

// Saver persists one answer edit to the session record.
type Saver interface {
	SaveAnswer(ctx context.Context, sessionID uuid.UUID, save model.AnswerSave) error
}

// SaveResult reports the outcome of one save attempt.
type SaveResult struct {
	Save     model.AnswerSave
	Err      error
	Retrying bool
}

// SyncOptions configures a SyncChannel. Zero values pick defaults.
type SyncOptions struct {
	Clock       Clock
	Logger      zerolog.Logger
	SaveTimeout time.Duration
	RetryBase   time.Duration
	RetryMax    time.Duration
	// InitialRevision is the highest revision the server already holds for
	// the session; new edits are numbered after it.
	InitialRevision int64
	OnResult        func(SaveResult)
}

// SyncChannel pushes answer edits to durable storage with at most one save in
// flight. Edits queue behind the in-flight save in FIFO order across
// questions; a newer edit of a question that has not been sent yet replaces
// the older one, since only the latest value of a question matters. Failed
// saves are re-queued with capped exponential backoff unless a newer edit of
// the same question superseded them. The local answer store is never rolled
// back.
type SyncChannel struct {
	saver     Saver
	sessionID uuid.UUID
	opts      SyncOptions
	log       zerolog.Logger

	mu       sync.Mutex
	revision int64
	pending  map[uuid.UUID]model.AnswerSave
	order    []uuid.UUID
	inFlight bool
	failures int
	lastErr  error
	closed   bool
	changed  chan struct{}

	wake   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// NewSyncChannel starts the channel's worker goroutine. Call Close to stop it.
func NewSyncChannel(saver Saver, sessionID uuid.UUID, opts SyncOptions) *SyncChannel {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = defaultRetryMax
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SyncChannel{
		saver:     saver,
		sessionID: sessionID,
		opts:      opts,
		log:       opts.Logger.With().Str("component", "sync_channel").Str("session_id", sessionID.String()).Logger(),
		revision:  opts.InitialRevision,
		pending:   make(map[uuid.UUID]model.AnswerSave),
		changed:   make(chan struct{}),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	go s.run(ctx)
	return s
}

// Push queues the current answer and review mark of a question. It returns
// the revision assigned to the edit, or 0 once the channel is closed.
func (s *SyncChannel) Push(questionID uuid.UUID, answer model.Answer, marked bool) int64 {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.revision++
	save := model.AnswerSave{
		QuestionID:      questionID,
		Answer:          answer,
		MarkedForReview: marked,
		Revision:        s.revision,
	}
	if _, queued := s.pending[questionID]; !queued {
		s.order = append(s.order, questionID)
	}
	s.pending[questionID] = save
	s.notifyLocked()
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return save.Revision
}

// Unsaved returns how many edits are queued or in flight.
func (s *SyncChannel) Unsaved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	if s.inFlight {
		n++
	}
	return n
}

// LastError returns the error of the most recent failed save, or nil once a
// save succeeds again.
func (s *SyncChannel) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Flush waits until nothing is queued or in flight.
func (s *SyncChannel) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		idle := len(s.pending) == 0 && !s.inFlight
		unsaved := len(s.pending)
		lastErr := s.lastErr
		ch := s.changed
		s.mu.Unlock()

		if idle {
			return nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("flush: %d edits unsaved: %w", unsaved, lastErr)
			}
			return fmt.Errorf("flush: %d edits unsaved: %w", unsaved, ctx.Err())
		}
	}
}

// Close stops accepting edits, waits for queued edits to drain until ctx is
// done, then stops the worker. An in-flight save is allowed to finish.
func (s *SyncChannel) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Flush(ctx)
	s.cancel()
	<-s.done
	if err != nil {
		s.log.Warn().Err(err).Msg("Closed with unsaved edits")
	}
	return err
}

func (s *SyncChannel) run(ctx context.Context) {
	defer close(s.done)

	for {
		save, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		err := s.send(save)
		if delay := s.settle(save, err); delay > 0 {
			select {
			case <-s.opts.Clock.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// next dequeues the oldest pending edit and marks it in flight.
func (s *SyncChannel) next() (model.AnswerSave, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return model.AnswerSave{}, false
	}
	qid := s.order[0]
	s.order = s.order[1:]
	save := s.pending[qid]
	delete(s.pending, qid)
	s.inFlight = true
	return save, true
}

// send performs the save on its own context so teardown of the caller does
// not abort a save that is already on the wire.
func (s *SyncChannel) send(save model.AnswerSave) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
	defer cancel()
	return s.saver.SaveAnswer(ctx, s.sessionID, save)
}

// settle records the outcome of a save and returns how long to back off.
func (s *SyncChannel) settle(save model.AnswerSave, err error) time.Duration {
	s.mu.Lock()

	s.inFlight = false
	result := SaveResult{Save: save, Err: err}
	var delay time.Duration

	switch {
	case err == nil:
		s.failures = 0
		s.lastErr = nil
	case errors.Is(err, model.ErrSessionCompleted), errors.Is(err, model.ErrInvalidAnswer):
		// Rejected for good; retrying cannot succeed.
		s.lastErr = err
	default:
		s.failures++
		s.lastErr = err
		if _, newer := s.pending[save.QuestionID]; !newer {
			s.pending[save.QuestionID] = save
			s.order = append([]uuid.UUID{save.QuestionID}, s.order...)
		}
		result.Retrying = true
		delay = backoff(s.failures, s.opts.RetryBase, s.opts.RetryMax)
	}

	s.notifyLocked()
	s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).
			Str("question_id", save.QuestionID.String()).
			Int64("revision", save.Revision).
			Bool("retrying", result.Retrying).
			Msg("Save failed")
	}
	if s.opts.OnResult != nil {
		s.opts.OnResult(result)
	}
	return delay
}

func (s *SyncChannel) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// backoff doubles base for every consecutive failure, capped at limit.
func backoff(failures int, base, limit time.Duration) time.Duration {
	if failures <= 1 {
		return base
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}
