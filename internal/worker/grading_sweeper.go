package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	sweepBatch = 200
	// sweepGrace leaves the normal queue time to grade a fresh submission.
	sweepGrace = 2 * time.Minute
)

// UngradedLister finds completed sessions that never got a result.
type UngradedLister interface {
	ListUngraded(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// GradeEnqueuer queues a session for the grading worker.
type GradeEnqueuer interface {
	EnqueueGrading(ctx context.Context, sessionID uuid.UUID) error
}

// GradingSweeper periodically queues completed sessions that are still
// ungraded, so a grading job lost between submit and the queue is redone.
// Grading twice stores the same report, so overlapping with a slow job is
// harmless.
type GradingSweeper struct {
	sessions UngradedLister
	queue    GradeEnqueuer
	every    time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewGradingSweeper creates a new GradingSweeper.
func NewGradingSweeper(sessions UngradedLister, queue GradeEnqueuer, every time.Duration, log zerolog.Logger) *GradingSweeper {
	if every <= 0 {
		every = time.Minute
	}
	return &GradingSweeper{
		sessions: sessions,
		queue:    queue,
		every:    every,
		now:      time.Now,
		log:      log.With().Str("component", "grading_sweeper").Logger(),
	}
}

// Start sweeps every interval until ctx is cancelled. Call in a goroutine.
func (s *GradingSweeper) Start(ctx context.Context) {
	s.log.Info().Dur("every", s.every).Msg("GradingSweeper started")
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		if _, err := s.sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("Sweep failed")
		}
		select {
		case <-ctx.Done():
			s.log.Info().Msg("GradingSweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// sweep queues one page of ungraded sessions and returns how many it queued.
func (s *GradingSweeper) sweep(ctx context.Context) (int, error) {
	ids, err := s.sessions.ListUngraded(ctx, s.now().Add(-sweepGrace), sweepBatch)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, id := range ids {
		if err := s.queue.EnqueueGrading(ctx, id); err != nil {
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		s.log.Warn().Int("count", queued).Msg("Re-queued ungraded sessions")
	}
	return queued, nil
}
