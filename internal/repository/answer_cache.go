package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// seededField marks a hash that holds every persisted answer of its session,
// not just the saves that arrived since the cache was last emptied.
const seededField = "__seeded"

// saveScript stores an answer only if its revision is newer than the stored
// one and the session is not completed. Accepted saves are queued for
// PostgreSQL in the same step.
//
// KEYS: answers hash, status key, persist queue
// ARGV: question id, stored value, revision, ttl seconds, queue payload
// Returns 1 accepted, 0 stale, -1 completed.
var saveScript = redis.NewScript(`
if redis.call('GET', KEYS[2]) == 'completed' then
	return -1
end
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur then
	local ok, stored = pcall(cjson.decode, cur)
	if ok and type(stored) == 'table' and tonumber(stored['revision']) and tonumber(stored['revision']) >= tonumber(ARGV[3]) then
		return 0
	end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[4])
redis.call('RPUSH', KEYS[3], ARGV[5])
return 1
`)

// seedScript merges persisted answers into the hash without overwriting
// newer ones and marks the hash complete.
//
// KEYS: answers hash
// ARGV: ttl seconds, then (question id, stored value, revision) triples
var seedScript = redis.NewScript(`
for i = 2, #ARGV, 3 do
	local keep = false
	local cur = redis.call('HGET', KEYS[1], ARGV[i])
	if cur then
		local ok, stored = pcall(cjson.decode, cur)
		if ok and type(stored) == 'table' and tonumber(stored['revision']) and tonumber(stored['revision']) >= tonumber(ARGV[i + 2]) then
			keep = true
		end
	end
	if not keep then
		redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
	end
end
redis.call('HSET', KEYS[1], '` + seededField + `', '1')
redis.call('EXPIRE', KEYS[1], ARGV[1])
return 1
`)

// AnswerCache keeps the live answers of running sessions in Redis.
type AnswerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAnswerCache creates a new AnswerCache. Hashes expire ttl after the
// last write.
func NewAnswerCache(rdb *redis.Client, ttl time.Duration) *AnswerCache {
	return &AnswerCache{rdb: rdb, ttl: ttl}
}

// Save applies one save. It reports false for a save that is not newer than
// the stored one, and model.ErrSessionCompleted once the session is closed.
func (c *AnswerCache) Save(ctx context.Context, sessionID uuid.UUID, save model.AnswerSave) (bool, error) {
	value, err := json.Marshal(save)
	if err != nil {
		return false, fmt.Errorf("encode save: %w", err)
	}
	payload, err := json.Marshal(QueuedAnswer{SessionID: sessionID, AnswerSave: save})
	if err != nil {
		return false, fmt.Errorf("encode payload: %w", err)
	}

	keys := []string{
		config.CacheKey.SessionAnswersKey(sessionID),
		config.CacheKey.SessionStatusKey(sessionID),
		config.WorkerKey.PersistAnswersQueue,
	}
	res, err := saveScript.Run(ctx, c.rdb, keys,
		save.QuestionID.String(), string(value), save.Revision, int(c.ttl.Seconds()), string(payload),
	).Int()
	if err != nil {
		return false, fmt.Errorf("run save script: %w", err)
	}

	switch res {
	case 1:
		return true, nil
	case -1:
		return false, model.ErrSessionCompleted
	default:
		return false, nil
	}
}

// Load returns the cached saves of a session. complete is false when the
// hash was never seeded from PostgreSQL, in which case the result may miss
// older answers.
func (c *AnswerCache) Load(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerSave, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(sessionID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("read answers hash: %w", err)
	}

	_, complete := fields[seededField]
	saves := make([]model.AnswerSave, 0, len(fields))
	for field, raw := range fields {
		if field == seededField {
			continue
		}
		var s model.AnswerSave
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, false, fmt.Errorf("decode cached answer %s: %w", field, err)
		}
		saves = append(saves, s)
	}
	return saves, complete, nil
}

// Seed merges persisted saves into the cache and marks it complete.
func (c *AnswerCache) Seed(ctx context.Context, sessionID uuid.UUID, saves []model.AnswerSave) error {
	args := make([]any, 0, 1+3*len(saves))
	args = append(args, int(c.ttl.Seconds()))
	for _, s := range saves {
		value, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode save: %w", err)
		}
		args = append(args, s.QuestionID.String(), string(value), s.Revision)
	}
	keys := []string{config.CacheKey.SessionAnswersKey(sessionID)}
	if err := seedScript.Run(ctx, c.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("run seed script: %w", err)
	}
	return nil
}

// MarkCompleted makes further saves for the session fail fast.
func (c *AnswerCache) MarkCompleted(ctx context.Context, sessionID uuid.UUID) error {
	return c.rdb.Set(ctx, config.CacheKey.SessionStatusKey(sessionID), string(model.SessionStatusCompleted), c.ttl).Err()
}

// Reopen undoes MarkCompleted after a submit that did not go through.
func (c *AnswerCache) Reopen(ctx context.Context, sessionID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.SessionStatusKey(sessionID)).Err()
}

// Drop removes the answer hashes of graded sessions.
func (c *AnswerCache) Drop(ctx context.Context, sessionIDs ...uuid.UUID) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for _, id := range sessionIDs {
		pipe.Del(ctx, config.CacheKey.SessionAnswersKey(id))
	}
	_, err := pipe.Exec(ctx)
	return err
}
