// Package queue drains the durable sqlite task queue: a polling dispatcher
// claims tasks and fans them out to handlers under a worker semaphore.
// Failures are retried with jittered exponential backoff; terminal failures
// and exhausted retries dead-letter.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/store"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 5

	retryInitialDelay = 30 * time.Second
	retryMaxDelay     = time.Hour
)

// Handler executes one task. A nil return completes the task; an error is
// classified by the retry policy.
type Handler func(ctx context.Context, task *domain.Task) error

// Dispatcher polls the queue and runs handlers.
type Dispatcher struct {
	qdb      *store.QueueDB
	handlers map[domain.TaskType]Handler
	log      *logger.Logger

	workers      int
	perType      int
	maxAttempts  int
	pollInterval time.Duration
}

type Options struct {
	Workers      int
	PerTypeLimit int
	MaxAttempts  int
	PollInterval time.Duration
}

func NewDispatcher(qdb *store.QueueDB, opts Options, log *logger.Logger) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PerTypeLimit < 1 {
		opts.PerTypeLimit = opts.Workers
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Dispatcher{
		qdb:          qdb,
		handlers:     make(map[domain.TaskType]Handler),
		log:          log.WithComponent("queue"),
		workers:      opts.Workers,
		perType:      opts.PerTypeLimit,
		maxAttempts:  opts.MaxAttempts,
		pollInterval: opts.PollInterval,
	}
}

// Register binds a handler to a task type. Tasks with no handler dead-letter
// on claim.
func (d *Dispatcher) Register(taskType domain.TaskType, h Handler) {
	d.handlers[taskType] = h
}

// Run polls until ctx is cancelled. Tasks left running by a previous process
// are requeued first.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.qdb.ResetStuckTasks(); err != nil {
		return err
	}

	slots := make(chan struct{}, d.workers)
	typeSlots := make(map[domain.TaskType]chan struct{}, len(d.handlers))
	for taskType := range d.handlers {
		typeSlots[taskType] = make(chan struct{}, d.perType)
	}

	for {
		select {
		case <-ctx.Done():
			// Drain in-flight workers before returning.
			for i := 0; i < d.workers; i++ {
				slots <- struct{}{}
			}
			return ctx.Err()
		case slots <- struct{}{}:
		}

		task, err := d.qdb.ClaimNextTask()
		if err != nil {
			<-slots
			d.log.Error("claim failed", "error", err)
			d.sleep(ctx)
			continue
		}
		if task == nil {
			<-slots
			d.sleep(ctx)
			continue
		}

		go func(task *domain.Task) {
			defer func() { <-slots }()
			if ts, ok := typeSlots[task.Type]; ok {
				ts <- struct{}{}
				defer func() { <-ts }()
			}
			d.execute(ctx, task)
		}(task)
	}
}

func (d *Dispatcher) sleep(ctx context.Context) {
	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (d *Dispatcher) execute(ctx context.Context, task *domain.Task) {
	log := d.log.With("task_id", task.TaskID, "type", string(task.Type), "attempt", task.Attempts)

	handler, ok := d.handlers[task.Type]
	if !ok {
		log.Error("no handler for task type")
		if err := d.qdb.FailTask(task.TaskID, "no handler registered", -1, d.maxAttempts); err != nil {
			log.Error("failed to dead-letter task", "error", err)
		}
		return
	}

	err := handler(ctx, task)
	if err == nil {
		if err := d.qdb.CompleteTask(task.TaskID); err != nil {
			log.Error("failed to complete task", "error", err)
		}
		return
	}

	retryIn := time.Duration(-1)
	if domain.IsRetriable(err) {
		retryIn = retryDelay(task.Attempts, retryAfterOf(err))
	}
	log.Warn("task failed", "error", err, "retry_in", retryIn)
	if ferr := d.qdb.FailTask(task.TaskID, err.Error(), retryIn, d.maxAttempts); ferr != nil {
		log.Error("failed to record task failure", "error", ferr)
	}
}

// Enqueue inserts one task, deduplicated against pending work.
func (d *Dispatcher) Enqueue(taskType domain.TaskType, trackID string, priority int) error {
	now := time.Now()
	return d.qdb.EnqueueTask(&domain.Task{
		TaskID:    uuid.New().String(),
		Type:      taskType,
		TrackID:   trackID,
		Priority:  priority,
		Status:    domain.TaskStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// EnqueuePending scans silver for outstanding work: tracks whose waterfall
// has not completed and tracks with a placeholder artist. Returns how many
// tasks were offered to the queue.
func (d *Dispatcher) EnqueuePending(db *store.DB, limit int) (int, error) {
	offered := 0

	needEnrich, err := db.ListTracksForEnrichment(limit)
	if err != nil {
		return offered, err
	}
	for _, track := range needEnrich {
		if err := d.Enqueue(domain.TaskEnrichTrack, track.TrackID, 5); err != nil {
			return offered, err
		}
		offered++
	}

	needArtist, err := db.ListTracksNeedingArtist(limit)
	if err != nil {
		return offered, err
	}
	for _, track := range needArtist {
		// Resolution unblocks enrichment, so it runs first.
		if err := d.Enqueue(domain.TaskResolveArtist, track.TrackID, 7); err != nil {
			return offered, err
		}
		offered++
	}

	return offered, nil
}

// retryDelay grows exponentially with jitter from the attempt count, floored
// by an explicit Retry-After when the failure carried one.
func retryDelay(attempts int, retryAfter time.Duration) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialDelay
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = retryMaxDelay
	b.MaxElapsedTime = 0

	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	return delay
}

func retryAfterOf(err error) time.Duration {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
