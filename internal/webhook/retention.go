package webhook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fraudguard/fraudguard/internal/metrics"
)

// Pruner deletes ledger entries older than a cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob bounds the size of the idempotency ledger. Entries older
// than Retention can no longer be redelivered by the sender, so dropping
// them does not weaken duplicate detection.
type RetentionJob struct {
	pruner    Pruner
	logger    *slog.Logger
	metrics   metrics.Recorder
	Retention time.Duration
	Interval  time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
	now       func() time.Time
}

// NewRetentionJob creates a RetentionJob.
func NewRetentionJob(pruner Pruner, logger *slog.Logger, recorder metrics.Recorder, retention, interval time.Duration) *RetentionJob {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &RetentionJob{
		pruner:    pruner,
		logger:    logger,
		metrics:   recorder,
		Retention: retention,
		Interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Run prunes once. It is idempotent and a no-op when Retention is zero.
func (j *RetentionJob) Run(ctx context.Context) error {
	if j.Retention <= 0 {
		return nil
	}

	start := time.Now()
	cutoff := j.now().Add(-j.Retention)

	deleted, err := j.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("webhook ledger pruning failed",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return err
	}
	j.metrics.IncLedgerPruned(deleted)

	j.logger.Info("webhook ledger pruned",
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
	)
	return nil
}

// Start runs the job every Interval until Stop is called. Calls after the
// first, or after Stop, do nothing.
func (j *RetentionJob) Start() {
	j.startOnce.Do(j.start)
}

func (j *RetentionJob) start() {
	if j.Retention <= 0 || j.Interval <= 0 {
		close(j.doneCh)
		return
	}

	go func() {
		defer close(j.doneCh)

		ticker := time.NewTicker(j.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				_ = j.Run(ctx)
				cancel()
			case <-j.stopCh:
				return
			}
		}
	}()
}

// Stop halts the background loop and waits for it to exit. Stopping a job
// that was never started returns immediately.
func (j *RetentionJob) Stop(ctx context.Context) error {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.startOnce.Do(func() { close(j.doneCh) })
	select {
	case <-j.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
