package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/spec-kit/triage-engine/internal/observability"
	"github.com/spec-kit/triage-engine/internal/queue"
	"github.com/spec-kit/triage-engine/internal/repository"
	"github.com/spec-kit/triage-engine/internal/service"
)

// JobSource is the consumer side of the triage queue.
type JobSource interface {
	Dequeue(ctx context.Context, wait time.Duration) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
	Nack(ctx context.Context, job *queue.Job, cause error) error
	Recover(ctx context.Context) (int, error)
}

// TriageRunner executes one triage job.
type TriageRunner interface {
	Run(ctx context.Context, ticketID string) (*service.TriageResult, error)
	ReportExhausted(ctx context.Context, ticketID string, attempt int, cause error)
}

// TriagePoolConfig sizes the pool.
type TriagePoolConfig struct {
	Concurrency int
	JobTimeout  time.Duration
	DequeueWait time.Duration
}

// TriagePool pulls jobs from the queue and runs them with bounded concurrency.
type TriagePool struct {
	source  JobSource
	runner  TriageRunner
	metrics *observability.Metrics
	logger  *zap.Logger
	cfg     TriagePoolConfig
}

// NewTriagePool creates the pool.
func NewTriagePool(source JobSource, runner TriageRunner, metrics *observability.Metrics, logger *zap.Logger, cfg TriagePoolConfig) *TriagePool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DequeueWait <= 0 {
		cfg.DequeueWait = 5 * time.Second
	}
	return &TriagePool{source: source, runner: runner, metrics: metrics, logger: logger, cfg: cfg}
}

// Run consumes until ctx is cancelled and then waits for in-flight jobs.
// A job is only dequeued once a slot is free, so it never sits leased while
// waiting for a worker.
func (p *TriagePool) Run(ctx context.Context) error {
	if moved, err := p.source.Recover(ctx); err != nil {
		p.logger.Warn("unable to recover in-flight jobs", zap.Error(err))
	} else if moved > 0 {
		p.logger.Info("recovered in-flight jobs", zap.Int("count", moved))
	}

	slots := semaphore.NewWeighted(int64(p.cfg.Concurrency))
	var g errgroup.Group
	p.logger.Info("triage pool started", zap.Int("concurrency", p.cfg.Concurrency))

	for {
		if err := slots.Acquire(ctx, 1); err != nil {
			break
		}
		job, err := p.source.Dequeue(ctx, p.cfg.DequeueWait)
		if err != nil {
			slots.Release(1)
			if ctx.Err() != nil {
				break
			}
			if !errors.Is(err, queue.ErrEmpty) {
				p.logger.Error("dequeue failed", zap.Error(err))
				sleep(ctx, time.Second)
			}
			continue
		}
		g.Go(func() error {
			defer slots.Release(1)
			p.handle(ctx, job)
			return nil
		})
	}

	err := g.Wait()
	p.logger.Info("triage pool stopped")
	return err
}

// handle outlives ctx cancellation so a job that started is acked or nacked.
func (p *TriagePool) handle(ctx context.Context, job *queue.Job) {
	started := time.Now()
	base := context.WithoutCancel(ctx)
	runCtx := base
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(base, p.cfg.JobTimeout)
		defer cancel()
	}
	logger := p.logger.With(
		zap.String("job_id", job.ID),
		zap.String("ticket_id", job.TicketID),
		zap.Int("attempt", job.Attempt))

	_, err := p.runner.Run(runCtx, job.TicketID)
	switch {
	case err == nil:
		p.ack(base, job, logger)
		p.metrics.RecordJob(observability.JobOutcomeDone, time.Since(started))
	case errors.Is(err, repository.ErrTicketNotFound):
		logger.Warn("ticket not found; dropping job")
		p.ack(base, job, logger)
		p.metrics.RecordJob(observability.JobOutcomeSkipped, time.Since(started))
	default:
		logger.Warn("triage job failed", zap.Error(err))
		nackErr := p.source.Nack(base, job, err)
		switch {
		case errors.Is(nackErr, queue.ErrExhausted):
			p.runner.ReportExhausted(base, job.TicketID, job.Attempt+1, err)
			p.metrics.RecordJob(observability.JobOutcomeExhausted, time.Since(started))
		case nackErr != nil:
			logger.Error("nack failed; job stays in processing until recovery", zap.Error(nackErr))
			p.metrics.RecordJob(observability.JobOutcomeRetried, time.Since(started))
		default:
			p.metrics.RecordJob(observability.JobOutcomeRetried, time.Since(started))
		}
	}
}

func (p *TriagePool) ack(ctx context.Context, job *queue.Job, logger *zap.Logger) {
	if err := p.source.Ack(ctx, job); err != nil {
		logger.Error("ack failed", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
