package pilot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smcopilot/copilot-core/internal/cache"
	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/infrastructure/logging"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/logbook"
	"github.com/smcopilot/copilot-core/internal/session"
)

// Telemetry receives fire-and-forget run metrics. Satisfied by the
// influxdb client; NopTelemetry stands in when telemetry is disabled.
type Telemetry interface {
	WritePriceMetric(account, commodity, slot string, price float64)
	WriteTaskMetric(account, task, status string, duration time.Duration)
	WriteSpendMetric(account, category string, amount float64)
}

// NopTelemetry discards every metric.
type NopTelemetry struct{}

func (NopTelemetry) WritePriceMetric(string, string, string, float64)       {}
func (NopTelemetry) WriteTaskMetric(string, string, string, time.Duration) {}
func (NopTelemetry) WriteSpendMetric(string, string, float64)              {}

// Env is what a pilot sees while running. Pilots never touch shared
// state directly; everything goes through these components.
type Env struct {
	Account *session.Account
	Client  *gameapi.Client
	Cache   *cache.Store
	Events  hub.Sender
	Logger  *logging.Logger
	Metrics Telemetry
}

// Outcome is what a successful pilot run reports. A nil outcome means the
// run was a no-op tick and writes no logbook entry.
type Outcome struct {
	// Status defaults to SUCCESS when empty.
	Status  string
	Summary string
	Details map[string]any
}

// Pilot is one named automation. Category may be empty for read-only
// pilots that need no mutual exclusion.
type Pilot interface {
	Name() string
	Category() locks.Category
	Run(ctx context.Context, env *Env) (*Outcome, error)
}

// Runner executes pilots with the guarantees every automation needs: a
// configured session, a scoped lock when the pilot declares a category,
// every failure converted into exactly one logbook entry, and nothing
// escaping to the caller except a lock rejection.
type Runner struct {
	cfg      *config.Config
	logger   *logging.Logger
	sessions *session.Registry
	locks    *locks.Coordinator
	cache    *cache.Store
	client   *gameapi.Client
	events   hub.Sender
	logbook  *logbook.Store
	metrics  Telemetry
}

// NewRunner wires a runner over the shared components.
func NewRunner(
	cfg *config.Config,
	logger *logging.Logger,
	sessions *session.Registry,
	lockCoord *locks.Coordinator,
	cacheStore *cache.Store,
	client *gameapi.Client,
	events hub.Sender,
	book *logbook.Store,
	metrics Telemetry,
) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	if events == nil {
		events = hub.NopSender{}
	}
	if metrics == nil {
		metrics = NopTelemetry{}
	}
	return &Runner{
		cfg:      cfg,
		logger:   logger.With("component", "pilot"),
		sessions: sessions,
		locks:    lockCoord,
		cache:    cacheStore,
		client:   client,
		events:   events,
		logbook:  book,
		metrics:  metrics,
	}
}

// ExecuteScheduled runs a pilot on behalf of the scheduler. It skips
// silently when the session is unconfigured, the account is paused, or
// the automation is disabled. It never returns an error to the caller.
func (r *Runner) ExecuteScheduled(ctx context.Context, p Pilot) {
	account := r.client.Account()
	sess := r.sessions.Get(account)

	if r.cfg.Account.SessionCookie == "" {
		r.logger.Warn("no session configured, skipping task", "task", p.Name())
		return
	}
	if sess.Paused() {
		r.logger.Debug("account paused, skipping task", "task", p.Name())
		return
	}
	if !sess.AutomationEnabled(p.Name()) {
		r.logger.Debug("automation disabled, skipping task", "task", p.Name())
		return
	}

	if err := r.run(ctx, p, sess, locks.OwnerAutomated); errors.Is(err, locks.ErrLockHeld) {
		// Overlap or manual contention. Skip this tick; the next tick
		// retries naturally. No tight-loop retry, no logbook noise.
		r.logger.Debug("lock held, skipping task", "task", p.Name(), "category", string(p.Category()))
	}
}

// ExecuteManual runs a pilot on behalf of a user action. A lock rejection
// is returned so the HTTP surface can report the conflict; every other
// failure is absorbed into the logbook exactly like a scheduled run.
func (r *Runner) ExecuteManual(ctx context.Context, p Pilot) error {
	account := r.client.Account()
	sess := r.sessions.Get(account)

	if r.cfg.Account.SessionCookie == "" {
		return fmt.Errorf("pilot: no session configured")
	}

	err := r.run(ctx, p, sess, locks.OwnerManual)
	if errors.Is(err, locks.ErrLockHeld) {
		return err
	}
	return nil
}

// run executes the pilot body under its lock (if any) and converts the
// result into at most one logbook entry. The only error it returns is a
// lock rejection; everything else is fully absorbed here.
func (r *Runner) run(ctx context.Context, p Pilot, sess *session.Account, owner locks.Owner) (err error) {
	env := &Env{
		Account: sess,
		Client:  r.client,
		Cache:   r.cache,
		Events:  r.events,
		Logger:  r.logger.With("task", p.Name()),
		Metrics: r.metrics,
	}

	var outcome *Outcome
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panicked", "task", p.Name(), "panic", fmt.Sprint(rec))
			r.record(sess.ID(), p.Name(), logbook.StatusError,
				"internal failure, task aborted",
				map[string]any{"panic": fmt.Sprint(rec)})
			err = nil
		}
	}()

	body := func() error {
		var runErr error
		outcome, runErr = p.Run(ctx, env)
		return runErr
	}

	if category := p.Category(); category != "" {
		err = r.locks.With(sess.ID(), category, owner, body)
	} else {
		err = body()
	}

	duration := time.Since(start)

	switch {
	case err == nil:
		status := logbook.StatusSuccess
		if outcome != nil {
			if outcome.Status != "" {
				status = outcome.Status
			}
			r.record(sess.ID(), p.Name(), status, outcome.Summary, outcome.Details)
		}
		r.metrics.WriteTaskMetric(sess.ID(), p.Name(), status, duration)
		return nil

	case errors.Is(err, locks.ErrLockHeld):
		return err

	case errors.Is(err, gameapi.ErrTransient):
		// Transient upstream failures retry on the next tick. Logged,
		// no account-visible alarm.
		r.record(sess.ID(), p.Name(), logbook.StatusError,
			"upstream unreachable, will retry next cycle",
			map[string]any{"error": err.Error()})
		r.metrics.WriteTaskMetric(sess.ID(), p.Name(), logbook.StatusError, duration)
		return nil

	case errors.Is(err, gameapi.ErrDataAnomaly):
		r.record(sess.ID(), p.Name(), logbook.StatusWarning,
			"suspicious upstream data, cycle skipped",
			map[string]any{"error": err.Error()})
		r.metrics.WriteTaskMetric(sess.ID(), p.Name(), logbook.StatusWarning, duration)
		return nil

	case errors.Is(err, gameapi.ErrSession):
		r.record(sess.ID(), p.Name(), logbook.StatusError,
			"session rejected by upstream, reconfigure session cookie",
			map[string]any{"error": err.Error()})
		r.events.Send(sess.ID(), hub.EventNotification, map[string]string{
			"level":   "error",
			"message": "Session expired. Update the session cookie to resume automations.",
		})
		r.metrics.WriteTaskMetric(sess.ID(), p.Name(), logbook.StatusError, duration)
		return nil

	default:
		r.record(sess.ID(), p.Name(), logbook.StatusError,
			"task failed",
			map[string]any{"error": err.Error()})
		r.events.Send(sess.ID(), hub.EventNotification, map[string]string{
			"level":   "error",
			"message": p.Name() + " failed: " + err.Error(),
		})
		r.metrics.WriteTaskMetric(sess.ID(), p.Name(), logbook.StatusError, duration)
		return nil
	}
}

func (r *Runner) record(account, task, status, summary string, details map[string]any) {
	r.logbook.Append(account, logbook.Entry{
		Task:    task,
		Status:  status,
		Summary: summary,
		Details: details,
	})
}
