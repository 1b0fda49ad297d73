package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pollTimeout  = 1 * time.Second
	batchTimeout = 2 * time.Second
	retryDelay   = 5 * time.Second
)

// listQueue is the part of *redis.Client the workers consume lists with.
type listQueue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LPop(ctx context.Context, key string) *redis.StringCmd
}

// batcher collects raw queue items and hands them to flush once the batch
// is full or has waited long enough. Items of a failed flush go back to the
// tail of the queue.
type batcher struct {
	queue listQueue
	key   string
	size  int
	flush func(ctx context.Context, raw []string) error
	onErr func(err error, msg string)

	sleep func(ctx context.Context, d time.Duration)
}

func (b *batcher) run(ctx context.Context) {
	batch := make([]string, 0, b.size)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 && (len(batch) >= b.size || time.Since(lastFlush) >= batchTimeout) {
			if err := b.flushOrRequeue(ctx, batch); err != nil {
				b.sleep(ctx, retryDelay)
			}
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			// Finish what was already taken off the queue, then whatever is left.
			if err := b.flushOrRequeue(context.Background(), batch); err != nil {
				return
			}
			b.drain(context.Background())
			return
		default:
		}

		item, err := b.queue.BLPop(ctx, pollTimeout, b.key).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				b.onErr(err, "BLPop error")
			}
			if len(batch) > 0 {
				lastFlush = time.Time{}
			}
			continue
		}
		if len(item) < 2 {
			continue
		}
		batch = append(batch, item[1])
	}
}

func (b *batcher) flushOrRequeue(ctx context.Context, batch []string) error {
	if len(batch) == 0 {
		return nil
	}
	if err := b.flush(ctx, batch); err != nil {
		b.onErr(err, "Flush failed, requeueing batch")
		b.requeue(context.WithoutCancel(ctx), batch)
		return err
	}
	return nil
}

func (b *batcher) requeue(ctx context.Context, batch []string) {
	values := make([]any, len(batch))
	for i, raw := range batch {
		values[i] = raw
	}
	if err := b.queue.RPush(ctx, b.key, values...).Err(); err != nil {
		b.onErr(err, "Requeue failed, batch lost")
	}
}

// drain empties the queue in batches before shutdown. It stops at the first
// failed flush so a broken database does not spin.
func (b *batcher) drain(ctx context.Context) {
	for {
		batch := make([]string, 0, b.size)
		for len(batch) < b.size {
			raw, err := b.queue.LPop(ctx, b.key).Result()
			if err != nil {
				break
			}
			batch = append(batch, raw)
		}
		if len(batch) == 0 {
			return
		}
		if err := b.flush(ctx, batch); err != nil {
			b.onErr(err, "Drain flush failed, requeueing")
			b.requeue(ctx, batch)
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
