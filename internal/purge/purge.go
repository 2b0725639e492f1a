// Package purge deletes expired messages in the background.
//
// With Redis available the sweep is an asynq periodic task, so only one node
// runs each tick. Without Redis an in-process ticker does the same work.
// Queries already hide expired messages; the sweep only reclaims storage.
package purge

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	// TaskType is the asynq task type of a sweep.
	TaskType = "messages:purge"
	// Queue is the asynq queue sweeps are enqueued on.
	Queue = "maintenance"
)

// Purger deletes every message whose expiry has passed.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// NewTask returns a sweep task.
func NewTask() *asynq.Task { return asynq.NewTask(TaskType, nil) }

// CronSpec turns an interval into an asynq schedule.
func CronSpec(interval time.Duration) string { return "@every " + interval.String() }

// Once runs one sweep.
func Once(ctx context.Context, p Purger, logger *zap.Logger) (int64, error) {
	n, err := p.PurgeExpired(ctx)
	if err != nil {
		logger.Error("purge failed", zap.Error(err))
		return 0, err
	}
	logger.Debug("purge finished", zap.Int64("deleted", n))
	return n, nil
}

// Handler adapts p to an asynq handler for TaskType.
func Handler(p Purger, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if t.Type() != TaskType {
			return fmt.Errorf("purge: unexpected task type %q", t.Type())
		}
		_, err := Once(ctx, p, logger)
		return err
	}
}

// RunTicker sweeps every interval until ctx is done.
func RunTicker(ctx context.Context, p Purger, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = Once(ctx, p, logger)
		}
	}
}

// Worker runs the asynq scheduler and the server that executes sweeps.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	interval  time.Duration
	logger    *zap.Logger
}

// NewWorker connects to redisURL and registers a sweep every interval.
func NewWorker(redisURL string, p Purger, interval time.Duration, logger *zap.Logger) (*Worker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("purge: interval must be positive")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("purge: parse redis url: %w", err)
	}
	logger = logger.With(zap.String("component", "purge"))

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{Queue: 1},
		Logger:      logger.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Warn("task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskType, Handler(p, logger))

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: logger.Sugar()})
	if _, err := scheduler.Register(CronSpec(interval), NewTask(),
		asynq.Queue(Queue),
		asynq.MaxRetry(1),
		asynq.Unique(interval),
	); err != nil {
		return nil, fmt.Errorf("purge: register schedule: %w", err)
	}

	return &Worker{server: srv, scheduler: scheduler, mux: mux, interval: interval, logger: logger}, nil
}

// Run starts the scheduler and the server and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return err
	}
	w.logger.Info("purge worker started", zap.Duration("interval", w.interval))

	<-ctx.Done()
	w.scheduler.Shutdown()
	w.server.Shutdown()
	return nil
}
