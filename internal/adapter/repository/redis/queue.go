package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iho/gameledger/internal/domain"
)

// enqueueScript stores the job hash and schedules it unless the id exists.
// KEYS: job, ready, delayed. ARGV: id, score, delayed flag, due ms, field/value pairs.
var enqueueScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV, 5))
if ARGV[3] == "1" then
	redis.call("ZADD", KEYS[3], ARGV[4], ARGV[1])
else
	redis.call("ZADD", KEYS[2], ARGV[2], ARGV[1])
end
return 1
`)

// dequeueScript requeues jobs whose lease ran out, promotes due delayed jobs,
// then claims the best ready job under a fresh lease.
// KEYS: ready, delayed, active. ARGV: job key prefix, now ms, lease deadline ms.
var dequeueScript = redis.NewScript(`
local stalled = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", ARGV[2])
for _, id in ipairs(stalled) do
	redis.call("ZREM", KEYS[3], id)
	local key = ARGV[1] .. id
	if redis.call("HGET", key, "state") == "active" then
		local attempts = tonumber(redis.call("HGET", key, "attempts") or "0")
		local maxAttempts = tonumber(redis.call("HGET", key, "max_attempts") or "0")
		if attempts >= maxAttempts then
			redis.call("HSET", key, "state", "failed", "failed_reason", "job stalled",
				"updated_at", ARGV[2], "finished_at", ARGV[2])
			local retention = tonumber(redis.call("HGET", key, "retention_ms") or "0")
			if retention > 0 then
				redis.call("PEXPIRE", key, retention)
			end
		else
			redis.call("HSET", key, "state", "waiting", "failed_reason", "job stalled", "updated_at", ARGV[2])
			redis.call("ZADD", KEYS[1], redis.call("HGET", key, "score"), id)
		end
	end
end
local due = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", ARGV[2])
for _, id in ipairs(due) do
	redis.call("ZREM", KEYS[2], id)
	local key = ARGV[1] .. id
	local score = redis.call("HGET", key, "score")
	if score then
		redis.call("ZADD", KEYS[1], score, id)
		redis.call("HSET", key, "state", "waiting")
	end
end
local ids = redis.call("ZRANGE", KEYS[1], 0, 0)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call("ZREM", KEYS[1], id)
local key = ARGV[1] .. id
redis.call("HSET", key, "state", "active", "updated_at", ARGV[2])
redis.call("HINCRBY", key, "attempts", 1)
redis.call("ZADD", KEYS[3], ARGV[3], id)
return id
`)

// priorityWeight spaces priorities so that enqueue time orders jobs within one priority.
const priorityWeight = 1e13

// QueueConfig holds job defaults applied when JobOptions leaves them zero.
type QueueConfig struct {
	Prefix    string
	Attempts  int
	Backoff   time.Duration
	Retention time.Duration
	// Lease is how long a claimed job may go without a heartbeat before it
	// is handed to another worker.
	Lease time.Duration
}

// Queue is a Redis-backed priority job queue with delayed retries.
type Queue struct {
	client *redis.Client
	cfg    QueueConfig
	now    func() time.Time
}

// NewQueue creates a new Queue.
func NewQueue(client *redis.Client, cfg QueueConfig) *Queue {
	if cfg.Prefix == "" {
		cfg.Prefix = "jobs:"
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 3 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	return &Queue{client: client, cfg: cfg, now: time.Now}
}

func (q *Queue) jobKey(id string) string { return q.cfg.Prefix + "job:" + id }
func (q *Queue) readyKey() string        { return q.cfg.Prefix + "ready" }
func (q *Queue) delayedKey() string      { return q.cfg.Prefix + "delayed" }
func (q *Queue) activeKey() string       { return q.cfg.Prefix + "active" }

// Enqueue schedules a job. When opts.JobID names a job that still exists the
// existing job is returned unchanged.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any, opts domain.JobOptions) (*domain.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}

	id := opts.JobID
	if id == "" {
		id = ulid.Make().String()
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = q.cfg.Attempts
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = q.cfg.Backoff
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = q.cfg.Retention
	}

	now := q.now()
	state := domain.JobStateWaiting
	delayed := "0"
	if opts.Delay > 0 {
		state = domain.JobStateDelayed
		delayed = "1"
	}
	score := strconv.FormatFloat(float64(opts.Priority)*priorityWeight+float64(now.UnixMilli()), 'f', -1, 64)

	args := []any{
		id, score, delayed, now.Add(opts.Delay).UnixMilli(),
		"id", id,
		"type", jobType,
		"payload", string(raw),
		"state", string(state),
		"priority", opts.Priority,
		"score", score,
		"progress", 0,
		"attempts", 0,
		"max_attempts", attempts,
		"backoff_ms", backoff.Milliseconds(),
		"retention_ms", retention.Milliseconds(),
		"created_at", now.UnixMilli(),
		"updated_at", now.UnixMilli(),
	}
	keys := []string{q.jobKey(id), q.readyKey(), q.delayedKey()}
	if err := enqueueScript.Run(ctx, q.client, keys, args...).Err(); err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", id, err)
	}
	return q.Get(ctx, id)
}

// Dequeue claims the highest-priority ready job, or returns nil when none is ready.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Job, error) {
	now := q.now()
	id, err := dequeueScript.Run(ctx, q.client,
		[]string{q.readyKey(), q.delayedKey(), q.activeKey()},
		q.cfg.Prefix+"job:", now.UnixMilli(), now.Add(q.cfg.Lease).UnixMilli(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	return q.Get(ctx, id)
}

// Get returns a job by ID.
func (q *Queue) Get(ctx context.Context, id string) (*domain.Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.ErrJobNotFound
	}
	return decodeJob(fields)
}

// UpdateProgress records a completion percentage on an active job and renews its lease.
func (q *Queue) UpdateProgress(ctx context.Context, id string, percent int) error {
	now := q.now()
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.jobKey(id),
			"progress", percent,
			"updated_at", now.UnixMilli(),
		)
		p.ZAddXX(ctx, q.activeKey(), redis.Z{Score: float64(now.Add(q.cfg.Lease).UnixMilli()), Member: id})
		return nil
	})
	return err
}

// Heartbeat renews the lease of an active job. Jobs no longer leased are left alone.
func (q *Queue) Heartbeat(ctx context.Context, id string) error {
	deadline := q.now().Add(q.cfg.Lease)
	return q.client.ZAddXX(ctx, q.activeKey(), redis.Z{Score: float64(deadline.UnixMilli()), Member: id}).Err()
}

// Complete marks a job completed and starts its retention countdown.
func (q *Queue) Complete(ctx context.Context, id string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	job, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	now := q.now().UnixMilli()
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.jobKey(id),
			"state", string(domain.JobStateCompleted),
			"progress", 100,
			"result", string(raw),
			"updated_at", now,
			"finished_at", now,
		)
		p.Expire(ctx, q.jobKey(id), q.retention(job))
		p.ZRem(ctx, q.activeKey(), id)
		return nil
	})
	return err
}

// Fail records cause on a job. Unless permanent, the job is retried after an
// exponential backoff while attempts remain. It reports whether a retry was scheduled.
func (q *Queue) Fail(ctx context.Context, id string, cause error, permanent bool) (bool, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return false, err
	}
	now := q.now()
	retry := !permanent && job.Attempts < job.MaxAttempts

	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.activeKey(), id)
		if retry {
			delay := job.Backoff << max(job.Attempts-1, 0)
			p.HSet(ctx, q.jobKey(id),
				"state", string(domain.JobStateDelayed),
				"failed_reason", cause.Error(),
				"updated_at", now.UnixMilli(),
			)
			p.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(now.Add(delay).UnixMilli()), Member: id})
			return nil
		}
		p.HSet(ctx, q.jobKey(id),
			"state", string(domain.JobStateFailed),
			"failed_reason", cause.Error(),
			"updated_at", now.UnixMilli(),
			"finished_at", now.UnixMilli(),
		)
		p.Expire(ctx, q.jobKey(id), q.retention(job))
		return nil
	})
	return retry, err
}

func (q *Queue) retention(job *domain.Job) time.Duration {
	if job.Retention > 0 {
		return job.Retention
	}
	return q.cfg.Retention
}

func decodeJob(f map[string]string) (*domain.Job, error) {
	job := &domain.Job{
		ID:           f["id"],
		Type:         f["type"],
		State:        domain.JobState(f["state"]),
		FailedReason: f["failed_reason"],
	}
	if p := f["payload"]; p != "" {
		job.Payload = json.RawMessage(p)
	}
	if r := f["result"]; r != "" {
		job.Result = json.RawMessage(r)
	}

	ints := []struct {
		field string
		dst   *int
	}{
		{"priority", &job.Priority},
		{"progress", &job.Progress},
		{"attempts", &job.Attempts},
		{"max_attempts", &job.MaxAttempts},
	}
	for _, i := range ints {
		if f[i.field] == "" {
			continue
		}
		v, err := strconv.Atoi(f[i.field])
		if err != nil {
			return nil, fmt.Errorf("decode job %s %s: %w", job.ID, i.field, err)
		}
		*i.dst = v
	}

	millis := func(field string) (int64, error) {
		if f[field] == "" {
			return 0, nil
		}
		return strconv.ParseInt(f[field], 10, 64)
	}
	for _, m := range []struct {
		field string
		set   func(int64)
	}{
		{"backoff_ms", func(v int64) { job.Backoff = time.Duration(v) * time.Millisecond }},
		{"retention_ms", func(v int64) { job.Retention = time.Duration(v) * time.Millisecond }},
		{"created_at", func(v int64) { job.CreatedAt = time.UnixMilli(v).UTC() }},
		{"updated_at", func(v int64) { job.UpdatedAt = time.UnixMilli(v).UTC() }},
		{"finished_at", func(v int64) {
			if v > 0 {
				t := time.UnixMilli(v).UTC()
				job.FinishedAt = &t
			}
		}},
	} {
		v, err := millis(m.field)
		if err != nil {
			return nil, fmt.Errorf("decode job %s %s: %w", job.ID, m.field, err)
		}
		m.set(v)
	}
	return job, nil
}
