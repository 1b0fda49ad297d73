package worker

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// AnswerPersister writes accepted saves to PostgreSQL.
type AnswerPersister interface {
	UpsertAnswers(ctx context.Context, batch []repository.QueuedAnswer) error
}

const AutosaveBatchSize = 200

// AutosaveWorker consumes persist_answers_queue and UPSERTs answers to
// PostgreSQL in batches. The revision guard in the UPSERT makes replays and
// out-of-order batches harmless.
type AutosaveWorker struct {
	store AnswerPersister
	queue listQueue
	log   zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(store AnswerPersister, queue listQueue, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		store: store,
		queue: queue,
		log:   log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the worker loop and returns after draining the queue once
// ctx is cancelled. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")
	b := &batcher{
		queue: w.queue,
		key:   config.WorkerKey.PersistAnswersQueue,
		size:  AutosaveBatchSize,
		flush: w.persist,
		onErr: func(err error, msg string) { w.log.Error().Err(err).Msg(msg) },
		sleep: sleepCtx,
	}
	b.run(ctx)
	w.log.Info().Msg("Worker stopped")
}

func (w *AutosaveWorker) persist(ctx context.Context, raw []string) error {
	batch := make([]repository.QueuedAnswer, 0, len(raw))
	for _, r := range raw {
		var a repository.QueuedAnswer
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			// Retrying a malformed payload can never succeed.
			w.log.Error().Err(err).Str("payload", r).Msg("Dropping invalid payload")
			continue
		}
		batch = append(batch, a)
	}
	if len(batch) == 0 {
		return nil
	}

	if err := w.store.UpsertAnswers(ctx, batch); err != nil {
		return err
	}
	w.log.Debug().Int("count", len(batch)).Msg("Answers persisted")
	return nil
}
