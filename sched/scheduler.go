package sched

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/logger"
	"github.com/vigilhq/vigil/notify"
	"github.com/vigilhq/vigil/rules"
)

const (
	// DefaultScanInterval is how often the scanner looks for new triggers
	DefaultScanInterval = 5 * time.Minute
	// DefaultMaxWorkers caps concurrent scheduler work: the scanner loop
	// plus every per-job execution loop draw from the same pool.
	DefaultMaxWorkers = 100
)

// Config contains scheduler configuration
type Config struct {
	ScanInterval time.Duration
	MaxWorkers   int
}

// runningJob is one registry entry: the spec captured at job start plus the
// cancel handle for its execution loop.
type runningJob struct {
	spec   rules.JobSpec
	cancel context.CancelFunc
}

// Scheduler owns the set of running jobs. A scanner loop periodically asks
// the inventory for trigger definitions not yet running and starts one
// execution loop per new definition. Each loop sleeps until its next cron
// fire, evaluates its rules, and dispatches the resulting events.
//
// Specs are captured once at job start; edits to a trigger's rules after
// its loop is running take effect only on process restart. Jobs deleted
// from the inventory are not evicted and keep running until shutdown.
type Scheduler struct {
	inventory  Inventory
	engine     rules.StateEngine
	generator  notify.EmailGenerator
	sender     notify.EmailSender
	executions *ExecutionStore

	scanInterval time.Duration
	pool         chan struct{} // semaphore bounding all scheduler work

	mu   sync.Mutex
	jobs map[int]runningJob

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.SugaredLogger
}

// NewScheduler creates a scheduler. executions may be nil to disable
// execution history.
func NewScheduler(inventory Inventory, engine rules.StateEngine, generator notify.EmailGenerator, sender notify.EmailSender, executions *ExecutionStore, cfg Config, log *zap.SugaredLogger) *Scheduler {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		inventory:    inventory,
		engine:       engine,
		generator:    generator,
		sender:       sender,
		executions:   executions,
		scanInterval: cfg.ScanInterval,
		pool:         make(chan struct{}, cfg.MaxWorkers),
		jobs:         make(map[int]runningJob),
		ctx:          ctx,
		cancel:       cancel,
		log:          log,
	}
}

// Start launches the scanner loop. Call at most once.
func (s *Scheduler) Start() {
	s.pool <- struct{}{}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.pool }()
		s.runScanner()
	}()
	s.log.Infow("Scheduler started",
		"scan_interval", s.scanInterval,
		"max_workers", cap(s.pool),
	)
}

// Stop cancels the scanner loop and every job loop, then blocks until all
// of them have acknowledged cancellation. Safe to call once after Start.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Infow("Scheduler stopped")
}

// MonitorNumJobs returns the current number of registered jobs. Safe to
// call concurrently with scanning.
func (s *Scheduler) MonitorNumJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// runScanner discovers new trigger definitions until the scheduler stops.
// The first scan runs immediately so a fresh process picks up work without
// waiting out a full interval.
func (s *Scheduler) runScanner() {
	s.scan()

	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.scan()
		}
	}
}

// scan starts an execution loop for every trigger definition not already
// registered. Inventory read failures are logged and retried on the next
// scan; they block discovery of all new work, so they are loud.
func (s *Scheduler) scan() {
	s.mu.Lock()
	known := make([]int, 0, len(s.jobs))
	for id := range s.jobs {
		known = append(known, id)
	}
	s.mu.Unlock()

	specs, err := s.inventory.ListNewJobSpecs(s.ctx, known)
	if err != nil {
		s.log.Errorw("Failed to scan for new trigger definitions",
			logger.FieldError, err,
		)
		return
	}

	for _, spec := range specs {
		s.startJob(spec)
	}
}

// startJob registers the spec and launches its execution loop on the pool.
// If the pool is full the job is skipped this scan; it stays unregistered
// and is retried on the next one.
func (s *Scheduler) startJob(spec rules.JobSpec) {
	select {
	case s.pool <- struct{}{}:
	default:
		s.log.Warnw("Worker pool exhausted, deferring job",
			logger.FieldJobID, spec.ID,
			logger.FieldTrigger, spec.Name,
			"max_workers", cap(s.pool),
		)
		return
	}

	jobCtx, jobCancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	if _, exists := s.jobs[spec.ID]; exists {
		// Lost the race with a concurrent registration
		s.mu.Unlock()
		jobCancel()
		<-s.pool
		return
	}
	s.jobs[spec.ID] = runningJob{spec: spec, cancel: jobCancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.pool }()
		s.runJob(jobCtx, spec)
	}()

	s.log.Infow("Job started",
		logger.FieldJobID, spec.ID,
		logger.FieldTrigger, spec.Name,
		logger.FieldCustomer, spec.Customer,
		logger.FieldSchedule, spec.Schedule,
	)
}

// runJob is one job's execution loop: sleep until the next cron fire, run
// one evaluation cycle, repeat until cancelled. Cycle failures are isolated
// to this job and this iteration.
func (s *Scheduler) runJob(ctx context.Context, spec rules.JobSpec) {
	for {
		delay, err := NextFireDelay(spec.Schedule, time.Now())
		if err != nil {
			// Configuration error: the schedule will not get better by
			// retrying, so this job's loop ends here.
			s.log.Errorw("Job has malformed schedule, stopping its loop",
				logger.FieldJobID, spec.ID,
				logger.FieldTrigger, spec.Name,
				logger.FieldSchedule, spec.Schedule,
				logger.FieldError, err,
			)
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.runCycle(ctx, spec); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.log.Errorw("Job cycle failed",
				logger.FieldJobID, spec.ID,
				logger.FieldTrigger, spec.Name,
				logger.FieldCustomer, spec.Customer,
				logger.FieldError, err,
			)
		}
	}
}

// runCycle performs one evaluate-and-dispatch iteration for a job
func (s *Scheduler) runCycle(ctx context.Context, spec rules.JobSpec) error {
	started := time.Now()
	exec := s.recordStart(spec, started)

	events, err := s.engine.CheckRules(ctx, spec.Customer, spec.Rules)
	if err != nil {
		s.recordFinish(exec, started, 0, err)
		return errors.Wrap(err, "rule evaluation failed")
	}

	if len(events) > 0 {
		if err := s.dispatch(ctx, spec, events); err != nil {
			s.recordFinish(exec, started, len(events), err)
			return err
		}
	}

	s.recordFinish(exec, started, len(events), nil)
	s.log.Infow("Job cycle completed",
		logger.FieldJobID, spec.ID,
		logger.FieldTrigger, spec.Name,
		logger.FieldCustomer, spec.Customer,
		logger.FieldEventCount, len(events),
		logger.FieldDurationMS, time.Since(started).Milliseconds(),
	)
	return nil
}

// dispatch routes the cycle's events to the job's action. The switch is
// exhaustive over JobKind; add new kinds here.
func (s *Scheduler) dispatch(ctx context.Context, spec rules.JobSpec, events []rules.TriggerEvent) error {
	switch spec.Kind {
	case rules.JobKindEmail:
		if spec.Email == nil {
			return errors.Newf("email job %d has no email action", spec.ID)
		}
		body, err := s.generator.GenerateEmail(ctx, *spec.Email, events)
		if err != nil {
			return errors.Wrap(err, "notification generation failed")
		}
		if err := s.sender.SendEmail(ctx, spec.Email.Address, body); err != nil {
			return errors.Wrap(err, "notification delivery failed")
		}
		return nil
	default:
		return errors.Newf("unknown job kind %q for job %d", spec.Kind, spec.ID)
	}
}

// recordStart writes a running execution row. History is best-effort;
// failures are logged and the cycle proceeds.
func (s *Scheduler) recordStart(spec rules.JobSpec, started time.Time) *Execution {
	if s.executions == nil {
		return nil
	}

	exec := &Execution{
		ID:        uuid.NewString(),
		TriggerID: spec.ID,
		Status:    ExecutionStatusRunning,
		StartedAt: started.Format(time.RFC3339),
		CreatedAt: started.Format(time.RFC3339),
		UpdatedAt: started.Format(time.RFC3339),
	}
	if err := s.executions.CreateExecution(exec); err != nil {
		s.log.Warnw("Failed to record execution start",
			logger.FieldJobID, spec.ID,
			logger.FieldError, err,
		)
		return nil
	}
	return exec
}

// recordFinish closes out an execution row with the cycle's outcome
func (s *Scheduler) recordFinish(exec *Execution, started time.Time, eventCount int, cycleErr error) {
	if exec == nil {
		return
	}

	completed := time.Now()
	completedAt := completed.Format(time.RFC3339)
	durationMs := int(completed.Sub(started).Milliseconds())

	exec.CompletedAt = &completedAt
	exec.DurationMs = &durationMs
	exec.EventCount = &eventCount
	exec.UpdatedAt = completedAt
	if cycleErr != nil {
		exec.Status = ExecutionStatusFailed
		msg := cycleErr.Error()
		exec.ErrorMessage = &msg
	} else {
		exec.Status = ExecutionStatusCompleted
	}

	if err := s.executions.UpdateExecution(exec); err != nil {
		s.log.Warnw("Failed to record execution finish",
			logger.FieldError, err,
		)
	}
}
