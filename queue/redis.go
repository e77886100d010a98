package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions configures the Redis queue backend.
type RedisOptions struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RedisQueue is a Redis-based Queue for distributed deployments. Jobs ride
// a list per queue name, delayed retries a sorted set scored by ready
// time, and each job's status blob a Redis hash with JSON-encoded values.
type RedisQueue struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisQueue connects to Redis and returns a queue. The connection is
// verified with a ping before the queue is handed out.
func NewRedisQueue(opts RedisOptions, logger *zap.Logger) (*RedisQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	keyPrefix := opts.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "missionflow:"
	}

	q := &RedisQueue{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "redis_queue")),
	}
	q.logger.Info("redis queue connected", zap.String("addr", opts.Addr))
	return q, nil
}

func (q *RedisQueue) queueKey(name string) string { return q.keyPrefix + "queue:" + name }

func (q *RedisQueue) statusKey(jobID string) string { return q.keyPrefix + "status:" + jobID }

func (q *RedisQueue) delayedKey() string { return q.keyPrefix + "delayed" }

func (q *RedisQueue) deadKey() string { return q.keyPrefix + "dead" }

// Enqueue assigns a job ID, writes the initial status hash and pushes the
// job onto its queue list.
func (q *RedisQueue) Enqueue(ctx context.Context, p *Payload) (string, error) {
	job := &Job{
		ID:         uuid.New().String(),
		Type:       p.Type,
		Queue:      p.Queue,
		Args:       p.Args,
		EnqueuedAt: time.Now(),
	}
	if err := q.Status().Merge(ctx, job.ID, map[string]any{
		StatusKeyState: StateQueued,
		"type":         job.Type,
	}); err != nil {
		return "", err
	}
	if err := q.push(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Dequeue promotes due delayed jobs and then blocks on the named queue
// lists. The block is re-armed every second so delayed jobs keep getting
// promoted while the consumer waits.
func (q *RedisQueue) Dequeue(ctx context.Context, queues []string) (*Job, error) {
	if len(queues) == 0 {
		return nil, ErrNoQueues
	}
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = q.queueKey(name)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := q.promoteDelayed(ctx); err != nil {
			q.logger.Warn("delayed promotion failed", zap.Error(err))
		}

		res, err := q.client.BRPop(ctx, time.Second, keys...).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("dequeue: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.logger.Error("dropping undecodable job payload", zap.Error(err))
			continue
		}
		return &job, nil
	}
}

// Requeue puts the job back for another attempt, either immediately or
// onto the delayed set scored by its ready time.
func (q *RedisQueue) Requeue(ctx context.Context, job *Job, delay time.Duration) error {
	if delay <= 0 {
		return q.push(ctx, job)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("requeue %q: %w", job.ID, err)
	}
	readyAt := time.Now().Add(delay)
	return q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(readyAt.UnixNano()),
		Member: string(data),
	}).Err()
}

// promoteDelayed moves due jobs from the delayed set back onto their
// queue lists.
func (q *RedisQueue) promoteDelayed(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	members, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			// Another consumer promoted it first.
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			q.logger.Error("dropping undecodable delayed job", zap.Error(err))
			continue
		}
		if err := q.client.LPush(ctx, q.queueKey(job.Queue), member).Err(); err != nil {
			return err
		}
	}
	return nil
}

// DeadLetter retains the job on the dead list and records the cause in
// its status hash.
func (q *RedisQueue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("dead letter %q: %w", job.ID, err)
	}
	if err := q.client.LPush(ctx, q.deadKey(), string(data)).Err(); err != nil {
		return err
	}
	return q.Status().Merge(ctx, job.ID, map[string]any{
		StatusKeyState: StateFailed,
		StatusKeyError: cause.Error(),
	})
}

// DeadLetters returns the retained dead-lettered jobs, newest first.
func (q *RedisQueue) DeadLetters(ctx context.Context) ([]*Job, error) {
	members, err := q.client.LRange(ctx, q.deadKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(members))
	for _, member := range members {
		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Status returns the Redis-hash-backed status store.
func (q *RedisQueue) Status() StatusStore {
	return &redisStatusStore{client: q.client, keyFor: q.statusKey}
}

// Close closes the underlying client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("enqueue %q: %w", job.ID, err)
	}
	return q.client.LPush(ctx, q.queueKey(job.Queue), string(data)).Err()
}

var _ Queue = (*RedisQueue)(nil)

// redisStatusStore stores each job's status blob as a Redis hash. Values
// are JSON-encoded so maps and numbers round-trip.
type redisStatusStore struct {
	client *redis.Client
	keyFor func(jobID string) string
}

func (s *redisStatusStore) Read(ctx context.Context, jobID string) (map[string]any, error) {
	raw, err := s.client.HGetAll(ctx, s.keyFor(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("status read %q: %w", jobID, err)
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			// Not JSON; keep the raw string.
			out[k] = v
			continue
		}
		out[k] = decoded
	}
	return out, nil
}

func (s *redisStatusStore) Merge(ctx context.Context, jobID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	encoded := make(map[string]any, len(fields))
	for k, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("status merge %q: encode %q: %w", jobID, k, err)
		}
		encoded[k] = string(data)
	}
	if err := s.client.HSet(ctx, s.keyFor(jobID), encoded).Err(); err != nil {
		return fmt.Errorf("status merge %q: %w", jobID, err)
	}
	return nil
}

var _ StatusStore = (*redisStatusStore)(nil)
