package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
)

const (
	redisJobPrefix   = "docpipe:job:"
	redisReadyKey    = "docpipe:jobs:ready"     // zset scored by next_run_at (unix ms)
	redisCompleteKey = "docpipe:jobs:completed" // zset scored by updated_at (unix ms)
)

// claimScript pops the oldest ready job whose score has passed and marks
// it active in one round trip, so concurrent workers never claim twice.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then return false end
redis.call('ZREM', KEYS[1], ids[1])
redis.call('HSET', KEYS[2] .. ids[1], 'status', ARGV[2], 'updated_at', ARGV[1])
return ids[1]
`)

// RedisStore keeps each job in a hash and tracks queued jobs in a
// delayed-ready sorted set.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, redisJobPrefix+job.ID.String(), jobFields(job))
	if job.Status == constants.JobStatusQueued {
		pipe.ZAdd(ctx, redisReadyKey, redis.Z{
			Score:  float64(job.NextRunAt.UnixMilli()),
			Member: job.ID.String(),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	fields, err := s.rdb.HGetAll(ctx, redisJobPrefix+id.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if len(fields) == 0 {
		return nil, common.ErrNotFound
	}
	return jobFromFields(id, fields)
}

func (s *RedisStore) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	key := redisJobPrefix + job.ID.String()

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if exists == 0 {
		return common.ErrNotFound
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, jobFields(job))
	switch job.Status {
	case constants.JobStatusQueued:
		// requeued after a failed attempt; score carries the backoff delay
		pipe.ZAdd(ctx, redisReadyKey, redis.Z{
			Score:  float64(job.NextRunAt.UnixMilli()),
			Member: job.ID.String(),
		})
	case constants.JobStatusCompleted:
		pipe.ZRem(ctx, redisReadyKey, job.ID.String())
		pipe.ZAdd(ctx, redisCompleteKey, redis.Z{
			Score:  float64(job.UpdatedAt.UnixMilli()),
			Member: job.ID.String(),
		})
	default:
		pipe.ZRem(ctx, redisReadyKey, job.ID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *RedisStore) ClaimNext(ctx context.Context, now time.Time) (*Job, error) {
	res, err := claimScript.Run(ctx, s.rdb,
		[]string{redisReadyKey, redisJobPrefix},
		now.UnixMilli(), string(constants.JobStatusActive)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	id, err := uuid.Parse(res.(string))
	if err != nil {
		return nil, fmt.Errorf("claim job: bad id %q: %w", res, err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) SweepCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	max := strconv.FormatInt(olderThan.UnixMilli(), 10)
	ids, err := s.rdb.ZRangeByScore(ctx, redisCompleteKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("sweep completed: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := s.rdb.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, redisJobPrefix+id)
	}
	pipe.ZRemRangeByScore(ctx, redisCompleteKey, "-inf", max)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("sweep completed: %w", err)
	}
	return len(ids), nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func jobFields(job *Job) map[string]any {
	return map[string]any{
		"type":          job.Type,
		"status":        string(job.Status),
		"progress":      job.Progress,
		"payload":       string(job.Payload),
		"result":        string(job.Result),
		"failed_reason": job.FailedReason,
		"attempts":      job.Attempts,
		"max_attempts":  job.MaxAttempts,
		"created_at":    job.CreatedAt.UnixMilli(),
		"updated_at":    job.UpdatedAt.UnixMilli(),
		"next_run_at":   job.NextRunAt.UnixMilli(),
	}
}

func jobFromFields(id uuid.UUID, fields map[string]string) (*Job, error) {
	job := &Job{
		ID:           id,
		Type:         fields["type"],
		Status:       constants.JobStatus(fields["status"]),
		FailedReason: fields["failed_reason"],
	}
	if v := fields["payload"]; v != "" {
		job.Payload = json.RawMessage(v)
	}
	if v := fields["result"]; v != "" {
		job.Result = json.RawMessage(v)
	}
	var err error
	if job.Progress, err = strconv.Atoi(fields["progress"]); err != nil {
		return nil, fmt.Errorf("decode job %s: progress: %w", id, err)
	}
	if job.Attempts, err = strconv.Atoi(fields["attempts"]); err != nil {
		return nil, fmt.Errorf("decode job %s: attempts: %w", id, err)
	}
	if job.MaxAttempts, err = strconv.Atoi(fields["max_attempts"]); err != nil {
		return nil, fmt.Errorf("decode job %s: max_attempts: %w", id, err)
	}
	for field, dst := range map[string]*time.Time{
		"created_at":  &job.CreatedAt,
		"updated_at":  &job.UpdatedAt,
		"next_run_at": &job.NextRunAt,
	} {
		ms, err := strconv.ParseInt(fields[field], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode job %s: %s: %w", id, field, err)
		}
		*dst = time.UnixMilli(ms).UTC()
	}
	return job, nil
}
