package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/infrastructure/logging"
	"github.com/smcopilot/copilot-core/internal/pilot"
)

// Trigger decides when a task is due.
type Trigger interface {
	// Due reports whether the task should fire now, given its last
	// dispatch time and the configured slot margin.
	Due(now, last time.Time, margin time.Duration) bool
}

// Every fires once per interval, aligned to UTC midnight. An interval of
// 3 hours fires at 00/03/06/09/12/15/18/21 UTC.
type Every struct {
	Interval time.Duration
}

func (e Every) Due(now, last time.Time, _ time.Duration) bool {
	boundary := now.UTC().Truncate(e.Interval)
	return last.Before(boundary)
}

// SlotAligned fires once per 30-minute price slot, a configured margin
// after the :00/:30 UTC boundary. Firing exactly at the boundary risks
// reading the outgoing slot's row, so the margin is never zero.
type SlotAligned struct{}

func (SlotAligned) Due(now, last time.Time, margin time.Duration) bool {
	fireAt := now.UTC().Truncate(30 * time.Minute).Add(margin)
	return !now.Before(fireAt) && last.Before(fireAt)
}

// Task binds a pilot to its trigger.
type Task struct {
	Pilot   pilot.Pilot
	Trigger Trigger
	Enabled bool

	lastRun time.Time
}

// TaskStatus is a read-only view of one registered task.
type TaskStatus struct {
	Name    string    `json:"name"`
	Enabled bool      `json:"enabled"`
	LastRun time.Time `json:"last_run,omitzero"`
}

// Executor runs one pilot invocation. Satisfied by pilot.Runner.
type Executor interface {
	ExecuteScheduled(ctx context.Context, p pilot.Pilot)
}

// Scheduler polls registered tasks and dispatches due ones. Each dispatch
// runs in its own goroutine so a slow task never delays the rest; the
// executor absorbs failures, and the pilot's lock category keeps a
// long-running invocation from overlapping with its own next tick.
type Scheduler struct {
	cfg      *config.Config
	logger   *logging.Logger
	executor Executor

	mu    sync.Mutex
	tasks []*Task
	wg    sync.WaitGroup
}

// New creates a scheduler over the executor.
func New(cfg *config.Config, logger *logging.Logger, executor Executor) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		logger:   logger.With("component", "scheduler"),
		executor: executor,
	}
}

// Register adds a task. Registration happens during wiring, before Run.
func (s *Scheduler) Register(p pilot.Pilot, trigger Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, &Task{Pilot: p, Trigger: trigger, Enabled: true})
}

// Run polls until the context is cancelled, then waits for in-flight
// dispatches to return.
func (s *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Scheduler.TickInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		"tasks", len(s.tasks), "tick_interval", interval.String())

	for {
		select {
		case <-ticker.C:
			s.runDue(ctx, time.Now())
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

// runDue dispatches every task whose trigger is due at now.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	margin := s.cfg.SlotMarginDuration()

	s.mu.Lock()
	due := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if !task.Enabled {
			continue
		}
		if task.Trigger.Due(now, task.lastRun, margin) {
			task.lastRun = now
			due = append(due, task)
		}
	}
	s.mu.Unlock()

	for _, task := range due {
		s.wg.Add(1)
		go func(task *Task) {
			defer s.wg.Done()
			s.logger.Debug("dispatching task", "task", task.Pilot.Name())
			s.executor.ExecuteScheduled(ctx, task.Pilot)
		}(task)
	}
}

// Status returns a snapshot of all registered tasks.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]TaskStatus, 0, len(s.tasks))
	for _, task := range s.tasks {
		statuses = append(statuses, TaskStatus{
			Name:    task.Pilot.Name(),
			Enabled: task.Enabled,
			LastRun: task.lastRun,
		})
	}
	return statuses
}
