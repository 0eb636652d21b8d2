package pilot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smcopilot/copilot-core/internal/cache"
	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/logbook"
	"github.com/smcopilot/copilot-core/internal/session"
)

const testAccount = "acct-1"

type recordingSender struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSender) Send(account, eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingSender) countOf(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type recordingTelemetry struct {
	mu     sync.Mutex
	tasks  []string // "task/status"
	prices []string // commodity
	spend  map[string]float64
}

func (r *recordingTelemetry) WritePriceMetric(account, commodity, slot string, price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices = append(r.prices, commodity)
}

func (r *recordingTelemetry) WriteTaskMetric(account, task, status string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task+"/"+status)
}

func (r *recordingTelemetry) WriteSpendMetric(account, category string, amount float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spend == nil {
		r.spend = make(map[string]float64)
	}
	r.spend[category] += amount
}

func (r *recordingTelemetry) taskRuns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tasks...)
}

type stubPilot struct {
	name     string
	category locks.Category
	run      func(ctx context.Context, env *Env) (*Outcome, error)
}

func (s *stubPilot) Name() string             { return s.name }
func (s *stubPilot) Category() locks.Category { return s.category }
func (s *stubPilot) Run(ctx context.Context, env *Env) (*Outcome, error) {
	return s.run(ctx, env)
}

// testRig wires a full runner over a temp data dir and an optional fake
// upstream.
type testRig struct {
	cfg     *config.Config
	runner  *Runner
	locks   *locks.Coordinator
	book    *logbook.Store
	sender  *recordingSender
	sess    *session.Registry
	cache   *cache.Store
	metrics *recordingTelemetry
}

func newTestRig(t *testing.T, upstream http.Handler) *testRig {
	t.Helper()

	cfg := &config.Config{}
	cfg.Account.ID = testAccount
	cfg.Account.SessionCookie = "cookie"
	cfg.Storage.DataDir = t.TempDir()
	cfg.Logbook.FlushInterval = 3600
	cfg.Upstream.Timeout = 5

	if upstream != nil {
		srv := httptest.NewServer(upstream)
		t.Cleanup(srv.Close)
		cfg.Upstream.BaseURL = srv.URL
	} else {
		cfg.Upstream.BaseURL = "http://127.0.0.1:1"
	}

	sender := &recordingSender{}
	coord := locks.New(sender)
	sess := session.NewRegistry(cfg, nil)
	store := cache.New(nil, sender)
	client := gameapi.New(cfg, nil)
	book := logbook.New(cfg, nil, nil)
	metrics := &recordingTelemetry{}

	return &testRig{
		cfg:     cfg,
		runner:  NewRunner(cfg, nil, sess, coord, store, client, sender, book, metrics),
		locks:   coord,
		book:    book,
		sender:  sender,
		sess:    sess,
		cache:   store,
		metrics: metrics,
	}
}

func (r *testRig) enable(t *testing.T, task string) {
	t.Helper()
	acct := r.sess.Get(testAccount)
	s := acct.Settings()
	s.Automations[task] = true
	require.NoError(t, acct.UpdateSettings(s))
}

func (r *testRig) entries() []logbook.Entry {
	return r.book.Query(testAccount, logbook.Filter{})
}

func TestRunner_LockFreeBeforeAndAfterSuccess(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "stub")

	pilot := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			assert.True(t, rig.locks.IsHeld(testAccount, locks.CategoryRepair))
			return &Outcome{Summary: "did work"}, nil
		}}

	require.False(t, rig.locks.IsHeld(testAccount, locks.CategoryRepair))
	rig.runner.ExecuteScheduled(context.Background(), pilot)
	assert.False(t, rig.locks.IsHeld(testAccount, locks.CategoryRepair))

	entries := rig.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, logbook.StatusSuccess, entries[0].Status)
	assert.Equal(t, "did work", entries[0].Summary)
}

func TestRunner_LockFreeAfterFailure(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "stub")

	pilot := &stubPilot{name: "stub", category: locks.CategoryDepart,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			return nil, errors.New("collaborator blew up")
		}}

	rig.runner.ExecuteScheduled(context.Background(), pilot)
	assert.False(t, rig.locks.IsHeld(testAccount, locks.CategoryDepart))

	entries := rig.entries()
	require.Len(t, entries, 1, "every failure becomes exactly one entry")
	assert.Equal(t, logbook.StatusError, entries[0].Status)
}

func TestRunner_LockFreeAfterPanic(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "stub")

	pilot := &stubPilot{name: "stub", category: locks.CategoryDrydock,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			panic("boom")
		}}

	assert.NotPanics(t, func() {
		rig.runner.ExecuteScheduled(context.Background(), pilot)
	}, "nothing escapes to the scheduler")
	assert.False(t, rig.locks.IsHeld(testAccount, locks.CategoryDrydock))

	entries := rig.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, logbook.StatusError, entries[0].Status)
}

func TestRunner_TransientFailureIsLoggedWithoutAlarm(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "stub")

	pilot := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			return nil, fmt.Errorf("wrapped: %w", gameapi.ErrTransient)
		}}

	rig.runner.ExecuteScheduled(context.Background(), pilot)

	entries := rig.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, logbook.StatusError, entries[0].Status)
	assert.Zero(t, rig.sender.countOf("notification"), "transient failures raise no alarm")
}

func TestRunner_DataAnomalyIsWarning(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "stub")

	pilot := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			return nil, fmt.Errorf("slot gone: %w", gameapi.ErrDataAnomaly)
		}}

	rig.runner.ExecuteScheduled(context.Background(), pilot)

	entries := rig.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, logbook.StatusWarning, entries[0].Status)
}

func TestRunner_NilOutcomeWritesNoEntry(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "stub")

	pilot := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			return nil, nil
		}}

	rig.runner.ExecuteScheduled(context.Background(), pilot)
	assert.Empty(t, rig.entries(), "a no-op tick is not logbook noise")
}

func TestRunner_SkipsWhenPaused(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "stub")
	rig.sess.Get(testAccount).SetPaused(true)

	ran := false
	pilot := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			ran = true
			return nil, nil
		}}

	rig.runner.ExecuteScheduled(context.Background(), pilot)
	assert.False(t, ran, "paused accounts get no new automated invocations")
}

func TestRunner_SkipsWhenDisabled(t *testing.T) {
	rig := newTestRig(t, nil)

	ran := false
	pilot := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			ran = true
			return nil, nil
		}}

	rig.runner.ExecuteScheduled(context.Background(), pilot)
	assert.False(t, ran)
}

func TestRunner_SkipsWhenNoSession(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "stub")
	rig.cfg.Account.SessionCookie = ""

	ran := false
	pilot := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			ran = true
			return nil, nil
		}}

	rig.runner.ExecuteScheduled(context.Background(), pilot)
	assert.False(t, ran)
	assert.Empty(t, rig.entries())
}

func TestRunner_ManualAndAutomatedContention(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "stub")

	// The manual request holds the repair lock; the automated run must be
	// rejected once and not retried in a loop.
	require.True(t, rig.locks.TryAcquire(testAccount, locks.CategoryRepair, locks.OwnerManual))

	ran := 0
	pilot := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			ran++
			return nil, nil
		}}

	rig.runner.ExecuteScheduled(context.Background(), pilot)
	assert.Zero(t, ran)
	assert.Empty(t, rig.entries(), "a lock rejection is a skip, not a failure")
	assert.True(t, rig.locks.IsHeld(testAccount, locks.CategoryRepair), "manual holder keeps the lock")
}

func TestRunner_ManualExecutionReportsLockConflict(t *testing.T) {
	rig := newTestRig(t, nil)

	require.True(t, rig.locks.TryAcquire(testAccount, locks.CategoryDepart, locks.OwnerAutomated))

	pilot := &stubPilot{name: "stub", category: locks.CategoryDepart,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			t.Fatal("must not run under a held lock")
			return nil, nil
		}}

	err := rig.runner.ExecuteManual(context.Background(), pilot)
	assert.ErrorIs(t, err, locks.ErrLockHeld)
}

func TestRunner_ManualRunsDisabledAutomations(t *testing.T) {
	rig := newTestRig(t, nil)

	// "stub" is not enabled in settings; a manual invocation runs anyway.
	ran := false
	pilot := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			ran = true
			return &Outcome{Summary: "manual work"}, nil
		}}

	require.NoError(t, rig.runner.ExecuteManual(context.Background(), pilot))
	assert.True(t, ran)
	require.Len(t, rig.entries(), 1)
}

func TestRunner_UncategorizedPilotRunsWithoutLock(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "watch")

	pilot := &stubPilot{name: "watch", category: "",
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			flags := rig.locks.Flags(testAccount)
			for category, held := range flags {
				assert.False(t, held, "category %s unexpectedly held", category)
			}
			return nil, nil
		}}

	rig.runner.ExecuteScheduled(context.Background(), pilot)
}

func TestRunner_RecordsTaskTelemetry(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.enable(t, "stub")

	ok := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			return &Outcome{Summary: "did work"}, nil
		}}
	rig.runner.ExecuteScheduled(context.Background(), ok)
	assert.Equal(t, []string{"stub/SUCCESS"}, rig.metrics.taskRuns())

	broken := &stubPilot{name: "stub", category: locks.CategoryRepair,
		run: func(ctx context.Context, env *Env) (*Outcome, error) {
			return nil, fmt.Errorf("%w: upstream gone", gameapi.ErrTransient)
		}}
	rig.runner.ExecuteScheduled(context.Background(), broken)
	assert.Equal(t, []string{"stub/SUCCESS", "stub/ERROR"}, rig.metrics.taskRuns())
}

func TestMutatingPilotsDeclareLockCategories(t *testing.T) {
	// Every pilot that spends money or moves vessels must hold a lock
	// category so a second concurrent instance is rejected, not run.
	pilots := []Pilot{
		NewFuelPilot(),
		NewCO2Pilot(),
		NewDepartPilot(),
		NewRepairPilot(),
		NewDrydockPilot(),
		NewCoopPilot(),
		NewRansomPilot(),
		NewCampaignPilot(),
		&BulkBuyPilot{FuelTonnes: 1},
	}
	seen := make(map[locks.Category]string)
	for _, p := range pilots {
		category := p.Category()
		assert.NotEmpty(t, category, "pilot %s runs unguarded", p.Name())
		if prev, dup := seen[category]; dup {
			t.Errorf("pilots %s and %s share category %s", prev, p.Name(), category)
		}
		seen[category] = p.Name()
	}
}
