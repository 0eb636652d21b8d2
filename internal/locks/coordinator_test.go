package locks

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smcopilot/copilot-core/internal/hub"
)

// recordingSender captures emitted events for assertions.
type recordingSender struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	account   string
	eventType string
	data      any
}

func (r *recordingSender) Send(account, eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{account, eventType, data})
}

func (r *recordingSender) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func TestTryAcquire_ExactlyOneWinner(t *testing.T) {
	c := New(nil)

	const attempts = 64
	var wg sync.WaitGroup
	var winners int32
	results := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.TryAcquire("acct-1", CategoryRepair, OwnerAutomated)
		}()
	}
	wg.Wait()
	close(results)

	for ok := range results {
		if ok {
			winners++
		}
	}
	assert.EqualValues(t, 1, winners, "concurrent TryAcquire must yield exactly one success")
	assert.True(t, c.IsHeld("acct-1", CategoryRepair))
}

func TestTryAcquire_IndependentCategoriesAndAccounts(t *testing.T) {
	c := New(nil)

	require.True(t, c.TryAcquire("acct-1", CategoryRepair, OwnerAutomated))
	assert.True(t, c.TryAcquire("acct-1", CategoryDepart, OwnerAutomated), "different category is independent")
	assert.True(t, c.TryAcquire("acct-2", CategoryRepair, OwnerManual), "different account is independent")
}

func TestRelease_IsIdempotent(t *testing.T) {
	sender := &recordingSender{}
	c := New(sender)

	require.True(t, c.TryAcquire("acct-1", CategoryFuelPurchase, OwnerAutomated))
	c.Release("acct-1", CategoryFuelPurchase)
	c.Release("acct-1", CategoryFuelPurchase) // no-op, no event

	events := sender.all()
	require.Len(t, events, 2, "one acquire event, one release event")
	assert.Equal(t, hub.EventLockStatus, events[0].eventType)

	acquire := events[0].data.(LockStatus)
	release := events[1].data.(LockStatus)
	assert.True(t, acquire.Held)
	assert.False(t, release.Held)
	assert.Equal(t, "fuel-purchase", release.Category)
}

func TestWith_ReleasesOnError(t *testing.T) {
	c := New(nil)

	wantErr := errors.New("upstream exploded")
	err := c.With("acct-1", CategoryDepart, OwnerAutomated, func() error {
		assert.True(t, c.IsHeld("acct-1", CategoryDepart))
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.False(t, c.IsHeld("acct-1", CategoryDepart), "lock must be free after failure")
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	c := New(nil)

	func() {
		defer func() {
			require.NotNil(t, recover(), "panic must propagate to the caller")
		}()
		_ = c.With("acct-1", CategoryDrydock, OwnerAutomated, func() error {
			panic("task blew up")
		})
	}()

	assert.False(t, c.IsHeld("acct-1", CategoryDrydock), "lock must be free after panic")
}

func TestWith_RejectedWhenHeld(t *testing.T) {
	c := New(nil)

	require.True(t, c.TryAcquire("acct-1", CategoryRepair, OwnerManual))

	called := false
	err := c.With("acct-1", CategoryRepair, OwnerAutomated, func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrLockHeld)
	assert.False(t, called, "body must not run when the lock is held")
	assert.True(t, c.IsHeld("acct-1", CategoryRepair), "manual holder keeps the lock")
}

func TestFlags_Snapshot(t *testing.T) {
	c := New(nil)

	require.True(t, c.TryAcquire("acct-1", CategoryRepair, OwnerManual))
	require.True(t, c.TryAcquire("acct-1", CategoryCoopSend, OwnerAutomated))
	require.True(t, c.TryAcquire("acct-2", CategoryDepart, OwnerAutomated))

	flags := c.Flags("acct-1")
	assert.True(t, flags[CategoryRepair])
	assert.True(t, flags[CategoryCoopSend])
	assert.False(t, flags[CategoryDepart], "other account's lock must not leak in")
	assert.False(t, flags[CategoryFuelPurchase])

	// Every category appears in the snapshot even when free, so UI
	// controls can render the full flag map from one pull.
	for _, category := range []Category{
		CategoryDepart, CategoryRepair, CategoryBulkBuy, CategoryFuelPurchase,
		CategoryCO2Purchase, CategoryDrydock, CategoryCoopSend,
		CategoryRansom, CategoryCampaign,
	} {
		_, present := flags[category]
		assert.True(t, present, "category %s missing from snapshot", category)
	}
}
