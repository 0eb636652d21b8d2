package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/pilot"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2026, 3, 1, hour, minute, second, 0, time.UTC)
}

func TestEvery_AlignedToUTC(t *testing.T) {
	every3h := Every{Interval: 3 * time.Hour}
	margin := 2 * time.Minute

	tests := []struct {
		name string
		now  time.Time
		last time.Time
		want bool
	}{
		{"never ran fires immediately", at(10, 15, 0), time.Time{}, true},
		{"ran this period", at(10, 15, 0), at(9, 0, 5), false},
		{"new period started", at(12, 0, 1), at(9, 0, 5), true},
		{"exactly on the boundary", at(12, 0, 0), at(9, 0, 5), true},
		{"just before the boundary", at(11, 59, 59), at(9, 0, 5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, every3h.Due(tt.now, tt.last, margin))
		})
	}
}

func TestSlotAligned_FiresAfterMarginOnly(t *testing.T) {
	trigger := SlotAligned{}
	margin := 2 * time.Minute

	tests := []struct {
		name string
		now  time.Time
		last time.Time
		want bool
	}{
		{"exactly at boundary waits for margin", at(14, 0, 0), at(13, 35, 0), false},
		{"inside the margin still waits", at(14, 1, 59), at(13, 35, 0), false},
		{"margin elapsed fires", at(14, 2, 0), at(13, 35, 0), true},
		{"already fired this slot", at(14, 20, 0), at(14, 2, 1), false},
		{"next half-hour slot fires again", at(14, 32, 0), at(14, 2, 1), true},
		{"never ran fires after margin", at(14, 5, 0), time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trigger.Due(tt.now, tt.last, margin))
		})
	}
}

type countingExecutor struct {
	mu    sync.Mutex
	runs  map[string]int
	block chan struct{}
}

func (c *countingExecutor) ExecuteScheduled(ctx context.Context, p pilot.Pilot) {
	c.mu.Lock()
	if c.runs == nil {
		c.runs = make(map[string]int)
	}
	c.runs[p.Name()]++
	c.mu.Unlock()
	if c.block != nil {
		<-c.block
	}
}

func (c *countingExecutor) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[name]
}

type namedPilot struct{ name string }

func (p *namedPilot) Name() string             { return p.name }
func (p *namedPilot) Category() locks.Category { return "" }
func (p *namedPilot) Run(ctx context.Context, env *pilot.Env) (*pilot.Outcome, error) {
	return nil, nil
}

func newTestScheduler(exec Executor) *Scheduler {
	cfg := &config.Config{}
	cfg.Scheduler.TickInterval = 1
	cfg.Scheduler.SlotMargin = 2
	return New(cfg, nil, exec)
}

func waitForCount(t *testing.T, exec *countingExecutor, name string, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for exec.count(name) < want {
		select {
		case <-deadline:
			t.Fatalf("task %s: got %d runs, want %d", name, exec.count(name), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunDue_DispatchesDueTasksOnce(t *testing.T) {
	exec := &countingExecutor{}
	s := newTestScheduler(exec)
	s.Register(&namedPilot{name: "fuel"}, SlotAligned{})
	s.Register(&namedPilot{name: "repair"}, Every{Interval: 3 * time.Hour})

	now := at(14, 5, 0)
	s.runDue(context.Background(), now)
	waitForCount(t, exec, "fuel", 1)
	waitForCount(t, exec, "repair", 1)

	// Same instant again: marking lastRun made both not-due.
	s.runDue(context.Background(), now.Add(time.Second))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, exec.count("fuel"))
	assert.Equal(t, 1, exec.count("repair"))

	// Next slot: only the slot-aligned task fires.
	s.runDue(context.Background(), at(14, 33, 0))
	waitForCount(t, exec, "fuel", 2)
	assert.Equal(t, 1, exec.count("repair"))
}

func TestRunDue_SkipsDisabledTasks(t *testing.T) {
	exec := &countingExecutor{}
	s := newTestScheduler(exec)
	s.Register(&namedPilot{name: "fuel"}, SlotAligned{})
	s.tasks[0].Enabled = false

	s.runDue(context.Background(), at(14, 5, 0))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, exec.count("fuel"))
}

func TestRunDue_SlowTaskDoesNotDelayOthers(t *testing.T) {
	exec := &countingExecutor{block: make(chan struct{})}
	s := newTestScheduler(exec)
	s.Register(&namedPilot{name: "slow"}, SlotAligned{})
	s.Register(&namedPilot{name: "quick"}, SlotAligned{})

	// Both dispatch even though "slow" never returns until released.
	s.runDue(context.Background(), at(14, 5, 0))
	waitForCount(t, exec, "slow", 1)
	waitForCount(t, exec, "quick", 1)
	close(exec.block)
}

func TestRun_StopsAndDrainsOnCancel(t *testing.T) {
	exec := &countingExecutor{}
	s := newTestScheduler(exec)
	s.Register(&namedPilot{name: "fuel"}, SlotAligned{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStatus_ReflectsRegistrationAndRuns(t *testing.T) {
	exec := &countingExecutor{}
	s := newTestScheduler(exec)
	s.Register(&namedPilot{name: "fuel"}, SlotAligned{})
	s.Register(&namedPilot{name: "repair"}, Every{Interval: 3 * time.Hour})

	statuses := s.Status()
	require.Len(t, statuses, 2)
	assert.Equal(t, "fuel", statuses[0].Name)
	assert.True(t, statuses[0].Enabled)
	assert.True(t, statuses[0].LastRun.IsZero())

	now := at(14, 5, 0)
	s.runDue(context.Background(), now)
	waitForCount(t, exec, "fuel", 1)

	statuses = s.Status()
	assert.Equal(t, now, statuses[0].LastRun)
}
