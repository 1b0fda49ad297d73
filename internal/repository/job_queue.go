package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-attempt/internal/config"
)

// GradeJob asks the grading worker to score one completed session.
type GradeJob struct {
	SessionID uuid.UUID `json:"session_id"`
}

// JobQueue pushes work onto the Redis lists the workers consume.
type JobQueue struct {
	rdb *redis.Client
}

// NewJobQueue creates a new JobQueue.
func NewJobQueue(rdb *redis.Client) *JobQueue {
	return &JobQueue{rdb: rdb}
}

// EnqueueGrading queues a completed session for grading.
func (q *JobQueue) EnqueueGrading(ctx context.Context, sessionID uuid.UUID) error {
	raw, err := json.Marshal(GradeJob{SessionID: sessionID})
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.GradeSessionsQueue, raw).Err()
}
