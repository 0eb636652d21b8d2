package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/infrastructure/logging"
)

// Kind names one cached dataset per account.
type Kind string

const (
	KindVessels   Kind = "vessels"
	KindCampaigns Kind = "campaigns"
)

// Loader fetches a dataset from upstream on a cache miss.
type Loader func(ctx context.Context, account string) (any, error)

type entry struct {
	value   any
	fetched time.Time
}

// Store is a per-account read-through cache. Entries stay valid until an
// invalidation event arrives; there is no TTL. Concurrent misses for the
// same (account, kind) coalesce into a single upstream fetch.
type Store struct {
	logger  *logging.Logger
	events  hub.Sender
	group   singleflight.Group
	loaders map[Kind]Loader

	mu      sync.RWMutex
	entries map[string]entry
	gens    map[string]uint64
}

// New creates an empty cache. Loaders are registered per kind before use.
func New(logger *logging.Logger, events hub.Sender) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	if events == nil {
		events = hub.NopSender{}
	}
	return &Store{
		logger:  logger.With("component", "cache"),
		events:  events,
		loaders: make(map[Kind]Loader),
		entries: make(map[string]entry),
		gens:    make(map[string]uint64),
	}
}

// RegisterLoader binds an upstream fetch to a kind. Registration happens
// during wiring, before any Get; it is not safe concurrently with Get.
func (s *Store) RegisterLoader(kind Kind, loader Loader) {
	s.loaders[kind] = loader
}

// Get returns the cached value for (account, kind), fetching through the
// registered loader on a miss. A failed fetch caches nothing.
func (s *Store) Get(ctx context.Context, account string, kind Kind) (any, error) {
	key := cacheKey(account, kind)

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e.value, nil
	}

	loader, ok := s.loaders[kind]
	if !ok {
		return nil, ErrNoLoader
	}

	value, err, shared := s.group.Do(key, func() (any, error) {
		// Re-check under the flight: a Put may have landed while we
		// waited for the singleflight slot. The generation is captured
		// here so an invalidation that arrives while the loader runs
		// discards the fetched value instead of caching it.
		s.mu.RLock()
		e, ok := s.entries[key]
		gen := s.gens[key]
		s.mu.RUnlock()
		if ok {
			return e.value, nil
		}

		v, err := loader(ctx, account)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.gens[key] == gen {
			s.entries[key] = entry{value: v, fetched: time.Now().UTC()}
		}
		s.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("coalesced cache fetch", "account", account, "kind", string(kind))
	}
	return value, nil
}

// Put replaces the cached value directly, without an upstream fetch.
// It supersedes any fetch still in flight for the same key.
func (s *Store) Put(account string, kind Kind, value any) {
	key := cacheKey(account, kind)
	s.mu.Lock()
	s.gens[key]++
	s.entries[key] = entry{value: value, fetched: time.Now().UTC()}
	s.mu.Unlock()
}

// Invalidate drops the entry for (account, kind). The next Get refetches.
// A fetch in flight when the invalidation lands is discarded, not cached.
// Invalidating an absent entry emits nothing.
func (s *Store) Invalidate(account string, kind Kind) {
	key := cacheKey(account, kind)

	s.mu.Lock()
	_, existed := s.entries[key]
	delete(s.entries, key)
	s.gens[key]++
	s.mu.Unlock()

	if !existed {
		return
	}

	s.logger.Debug("cache invalidated", "account", account, "kind", string(kind))
	s.events.Send(account, hub.EventCacheInvalidated, map[string]string{
		"kind": string(kind),
	})
}

// InvalidateAccount drops every entry for one account, for events that
// change the account state wholesale.
func (s *Store) InvalidateAccount(account string) {
	for _, kind := range []Kind{KindVessels, KindCampaigns} {
		s.Invalidate(account, kind)
	}
}

func cacheKey(account string, kind Kind) string {
	return account + "/" + string(kind)
}
