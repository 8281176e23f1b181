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

var (
	// ErrEmpty is returned by Dequeue when no job arrived within the wait.
	ErrEmpty = errors.New("queue empty")
	// ErrExhausted is returned by Nack when the job was dead-lettered.
	ErrExhausted = errors.New("retry attempts exhausted")
)

// DefaultLease bounds how long a dequeued job may stay unacknowledged.
const DefaultLease = 5 * time.Minute

// Job is one triage request for a ticket.
type Job struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	raw string
}

// Stats reports queue depths.
type Stats struct {
	Ready   int64 `json:"ready"`
	Delayed int64 `json:"delayed"`
	Leased  int64 `json:"leased"`
	Dead    int64 `json:"dead"`
}

// Moves every delayed job whose score is due onto the ready list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, job in ipairs(due) do
  redis.call('ZREM', KEYS[1], job)
  redis.call('LPUSH', KEYS[2], job)
end
return #due
`)

// Lease members are "<processing key>\n<job>". Every expired lease is dropped
// and its job, if the owner still holds it, goes back to the head of ready.
var reapScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local moved = 0
for _, member in ipairs(expired) do
  redis.call('ZREM', KEYS[1], member)
  local sep = string.find(member, '\n', 1, true)
  if sep then
    local owner = string.sub(member, 1, sep - 1)
    local job = string.sub(member, sep + 1)
    if redis.call('LREM', owner, 1, job) > 0 then
      redis.call('RPUSH', KEYS[2], job)
      moved = moved + 1
    end
  end
end
return moved
`)

// Completes a job only while this consumer still holds it.
// KEYS: processing, leases, dedup. ARGV: job, lease member.
var ackScript = redis.NewScript(`
local held = redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[2])
if held > 0 then
  redis.call('DEL', KEYS[3])
end
return held
`)

// Reschedules or dead-letters a job only while this consumer still holds it.
// KEYS: processing, leases, dedup, delayed, dead.
// ARGV: job, lease member, next job, retry score or "dead".
var nackScript = redis.NewScript(`
local held = redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[2])
if held == 0 then
  return 0
end
if ARGV[4] == 'dead' then
  redis.call('LPUSH', KEYS[5], ARGV[3])
  redis.call('DEL', KEYS[3])
else
  redis.call('ZADD', KEYS[4], ARGV[4], ARGV[3])
end
return 1
`)

// RedisQueue is an at-least-once job queue deduplicated by ticket id.
// Jobs move ready -> processing:<consumer> under a lease and are either acked,
// scheduled on the delayed set, or pushed to the dead-letter list. A job whose
// lease expires is handed back to ready by whichever consumer notices first.
type RedisQueue struct {
	client   redis.UniversalClient
	name     string
	consumer string
	policy   RetryPolicy
	dedupTTL time.Duration
	lease    time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Options configures a RedisQueue.
type Options struct {
	Name     string
	Consumer string
	Policy   RetryPolicy
	DedupTTL time.Duration
	// Lease should exceed the worker's job timeout. Zero means DefaultLease.
	Lease    time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewRedisQueue creates the queue.
func NewRedisQueue(client redis.UniversalClient, opts Options) *RedisQueue {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = DefaultLease
	}
	return &RedisQueue{
		client:   client,
		name:     opts.Name,
		consumer: opts.Consumer,
		policy:   opts.Policy,
		dedupTTL: opts.DedupTTL,
		lease:    lease,
		logger:   logger,
		now:      now,
	}
}

func (q *RedisQueue) readyKey() string      { return q.name + ":ready" }
func (q *RedisQueue) delayedKey() string    { return q.name + ":delayed" }
func (q *RedisQueue) deadKey() string       { return q.name + ":dead" }
func (q *RedisQueue) leasesKey() string     { return q.name + ":leases" }
func (q *RedisQueue) processingKey() string { return q.name + ":processing:" + q.consumer }

func (q *RedisQueue) dedupKey(ticketID string) string { return q.name + ":dedup:" + ticketID }

func (q *RedisQueue) leaseMember(raw string) string { return q.processingKey() + "\n" + raw }

// Enqueue adds a job unless one for the ticket is already pending or running.
func (q *RedisQueue) Enqueue(ctx context.Context, ticketID string) (bool, error) {
	ok, err := q.client.SetNX(ctx, q.dedupKey(ticketID), q.now().UTC().Format(time.RFC3339Nano), q.dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedup key: %w", err)
	}
	if !ok {
		return false, nil
	}

	job := Job{ID: uuid.NewString(), TicketID: ticketID, EnqueuedAt: q.now().UTC()}
	raw, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	if err := q.client.LPush(ctx, q.readyKey(), raw).Err(); err != nil {
		_ = q.client.Del(ctx, q.dedupKey(ticketID)).Err()
		return false, fmt.Errorf("push job: %w", err)
	}
	return true, nil
}

// Dequeue reclaims expired leases, promotes due retries and then blocks up to
// wait for a job. The returned job is leased to this consumer and its ticket's
// dedup key is refreshed.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	if _, err := q.reapExpired(ctx); err != nil {
		return nil, err
	}
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}

	raw, err := q.client.BLMove(ctx, q.readyKey(), q.processingKey(), "RIGHT", "LEFT", wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.logger.Error("dropping malformed job", zap.String("raw", raw), zap.Error(err))
		_ = q.client.LRem(ctx, q.processingKey(), 1, raw).Err()
		return nil, ErrEmpty
	}
	job.raw = raw

	now := q.now()
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, q.leasesKey(), redis.Z{
			Score:  float64(now.Add(q.lease).UnixMilli()),
			Member: q.leaseMember(raw),
		})
		pipe.Set(ctx, q.dedupKey(job.TicketID), now.UTC().Format(time.RFC3339Nano), q.dedupTTL)
		return nil
	})
	if err != nil {
		q.release(ctx, raw)
		return nil, fmt.Errorf("lease job %s: %w", job.ID, err)
	}
	return &job, nil
}

// Ack completes a job and releases the ticket's dedup key. A job whose lease
// already expired and was redelivered is left to its new holder.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	keys := []string{q.processingKey(), q.leasesKey(), q.dedupKey(job.TicketID)}
	held, err := ackScript.Run(ctx, q.client, keys, job.raw, q.leaseMember(job.raw)).Int()
	if err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	if held == 0 {
		q.logger.Warn("acked job no longer held; lease had expired",
			zap.String("job_id", job.ID), zap.String("ticket_id", job.TicketID))
	}
	return nil
}

// Nack schedules a retry with backoff, or dead-letters the job and returns
// ErrExhausted when attempts run out.
func (q *RedisQueue) Nack(ctx context.Context, job *Job, cause error) error {
	next := *job
	next.Attempt++
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}

	exhausted := q.policy.Exhausted(job.Attempt)
	delay := q.policy.Delay(job.Attempt)
	target := strconv.FormatInt(q.now().Add(delay).UnixMilli(), 10)
	if exhausted {
		target = "dead"
	}

	keys := []string{q.processingKey(), q.leasesKey(), q.dedupKey(job.TicketID), q.delayedKey(), q.deadKey()}
	held, err := nackScript.Run(ctx, q.client, keys, job.raw, q.leaseMember(job.raw), string(raw), target).Int()
	if err != nil {
		return fmt.Errorf("nack job %s: %w", job.ID, err)
	}

	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("ticket_id", job.TicketID),
		zap.Int("attempt", job.Attempt),
		zap.Error(cause),
	}
	switch {
	case held == 0:
		q.logger.Warn("nacked job no longer held; lease had expired", fields...)
		return nil
	case exhausted:
		q.logger.Warn("job dead-lettered", fields...)
		return ErrExhausted
	}
	q.logger.Info("job scheduled for retry", append(fields, zap.Duration("delay", delay))...)
	return nil
}

// Recover returns jobs left in this consumer's processing list to the ready
// list, plus any job whose lease expired under another consumer.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey(), q.readyKey(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("recover: %w", err)
		}
		moved++
	}
	reaped, err := q.reapExpired(ctx)
	return moved + reaped, err
}

// Stats returns current queue depths.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.readyKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	leased := pipe.ZCard(ctx, q.leasesKey())
	dead := pipe.LLen(ctx, q.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{Ready: ready.Val(), Delayed: delayed.Val(), Leased: leased.Val(), Dead: dead.Val()}, nil
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)
	err := promoteScript.Run(ctx, q.client, []string{q.delayedKey(), q.readyKey()}, now).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("promote delayed jobs: %w", err)
	}
	return nil
}

func (q *RedisQueue) reapExpired(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)
	moved, err := reapScript.Run(ctx, q.client, []string{q.leasesKey(), q.readyKey()}, now).Int()
	if err != nil {
		return 0, fmt.Errorf("reap expired leases: %w", err)
	}
	if moved > 0 {
		q.logger.Warn("redelivered jobs with expired leases", zap.Int("count", moved))
	}
	return moved, nil
}

// release hands an unleased job back to ready. Failing that, it stays in
// processing until this consumer's next Recover.
func (q *RedisQueue) release(ctx context.Context, raw string) {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(), 1, raw)
		pipe.RPush(ctx, q.readyKey(), raw)
		return nil
	})
	if err != nil {
		q.logger.Error("unable to release unleased job", zap.Error(err))
	}
}
