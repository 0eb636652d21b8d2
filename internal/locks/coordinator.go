package locks

import (
	"fmt"
	"sync"

	"github.com/smcopilot/copilot-core/internal/hub"
)

// Category names one mutually-exclusive account resource.
type Category string

// Lock categories. Each guards one upstream resource against simultaneous
// automated and manual operations.
const (
	CategoryDepart       Category = "depart"
	CategoryRepair       Category = "repair"
	CategoryBulkBuy      Category = "bulk-buy"
	CategoryFuelPurchase Category = "fuel-purchase"
	CategoryCO2Purchase  Category = "co2-purchase"
	CategoryDrydock      Category = "drydock"
	CategoryCoopSend     Category = "coop-send"
	CategoryRansom       Category = "ransom"
	CategoryCampaign     Category = "campaign-renewal"
)

// Owner identifies who holds a lock.
type Owner string

// Lock owners.
const (
	OwnerAutomated Owner = "automated"
	OwnerManual    Owner = "manual"
)

// Coordinator enforces mutual exclusion per (account, category) pair.
//
// Acquisition is atomic: concurrent TryAcquire calls for the same pair
// yield exactly one success. A rejected acquisition never blocks; the
// caller decides whether to skip or surface the contention.
//
// Every transition emits a lock_status event so manual UI controls across
// all tabs enable/disable consistently.
type Coordinator struct {
	mu     sync.Mutex
	held   map[string]Owner // key: account + "/" + category
	events hub.Sender
}

// New creates a lock coordinator emitting transitions through the sender.
func New(events hub.Sender) *Coordinator {
	if events == nil {
		events = hub.NopSender{}
	}
	return &Coordinator{
		held:   make(map[string]Owner),
		events: events,
	}
}

// TryAcquire attempts to take the lock for (account, category).
// It returns true if the lock was free and is now held by owner.
func (c *Coordinator) TryAcquire(account string, category Category, owner Owner) bool {
	key := lockKey(account, category)

	c.mu.Lock()
	if _, taken := c.held[key]; taken {
		c.mu.Unlock()
		return false
	}
	c.held[key] = owner
	c.mu.Unlock()

	c.emit(account, category, true, owner)
	return true
}

// Release frees the lock for (account, category). Releasing a lock that is
// not held is a no-op, not an error.
func (c *Coordinator) Release(account string, category Category) {
	key := lockKey(account, category)

	c.mu.Lock()
	owner, taken := c.held[key]
	if taken {
		delete(c.held, key)
	}
	c.mu.Unlock()

	if taken {
		c.emit(account, category, false, owner)
	}
}

// IsHeld reports whether the lock for (account, category) is currently held.
func (c *Coordinator) IsHeld(account string, category Category) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, taken := c.held[lockKey(account, category)]
	return taken
}

// Flags returns a snapshot of the account's lock-flag map, keyed by
// category, for full-state pulls on reconnect.
func (c *Coordinator) Flags(account string) map[Category]bool {
	prefix := account + "/"

	c.mu.Lock()
	defer c.mu.Unlock()

	flags := map[Category]bool{
		CategoryDepart:       false,
		CategoryRepair:       false,
		CategoryBulkBuy:      false,
		CategoryFuelPurchase: false,
		CategoryCO2Purchase:  false,
		CategoryDrydock:      false,
		CategoryCoopSend:     false,
		CategoryRansom:       false,
		CategoryCampaign:     false,
	}
	for key := range c.held {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			flags[Category(key[len(prefix):])] = true
		}
	}
	return flags
}

// With runs fn while holding the lock for (account, category), releasing
// it on every exit path including panics. It returns ErrLockHeld without
// calling fn when the lock is already taken.
//
// Panics from fn are re-raised after the release so the caller's recovery
// (the pilot runner) can convert them into a log entry.
func (c *Coordinator) With(account string, category Category, owner Owner, fn func() error) error {
	if !c.TryAcquire(account, category, owner) {
		return fmt.Errorf("%w: %s", ErrLockHeld, category)
	}
	defer c.Release(account, category)
	return fn()
}

func (c *Coordinator) emit(account string, category Category, held bool, owner Owner) {
	c.events.Send(account, hub.EventLockStatus, LockStatus{
		Category: string(category),
		Held:     held,
		Owner:    string(owner),
	})
}

// LockStatus is the payload of a lock_status event.
type LockStatus struct {
	Category string `json:"category"`
	Held     bool   `json:"held"`
	Owner    string `json:"owner"`
}

func lockKey(account string, category Category) string {
	return account + "/" + string(category)
}
