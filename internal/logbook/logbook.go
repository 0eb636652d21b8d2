package logbook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/infrastructure/logging"
)

// Entry statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
	StatusWarning = "WARNING"
)

// Entry is one automation outcome. Entries are immutable once appended.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Task      string         `json:"task"`
	Status    string         `json:"status"`
	Summary   string         `json:"summary"`
	Details   map[string]any `json:"details,omitempty"`
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Status string
	Task   string

	// Since/Until bound the timestamp. The HTTP surface maps both rolling
	// windows ("24h") and calendar ranges onto these.
	Since time.Time
	Until time.Time

	// Search is a case-insensitive substring matched against the summary,
	// the task name, and every nested value in Details.
	Search string
}

// Store holds per-account logbooks in memory, newest first, and flushes
// dirty accounts to disk on a fixed interval and on shutdown. Appends are
// synchronous to memory only; disk writes are full-snapshot, temp file
// then rename.
type Store struct {
	cfg    *config.Config
	logger *logging.Logger
	events hub.Sender

	mu      sync.Mutex
	entries map[string][]Entry
	dirty   map[string]bool
	loaded  map[string]bool
}

// New creates a store rooted at the configured data directory. Existing
// per-account files are read lazily on first access.
func New(cfg *config.Config, logger *logging.Logger, events hub.Sender) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	if events == nil {
		events = hub.NopSender{}
	}
	return &Store{
		cfg:     cfg,
		logger:  logger.With("component", "logbook"),
		events:  events,
		entries: make(map[string][]Entry),
		dirty:   make(map[string]bool),
		loaded:  make(map[string]bool),
	}
}

// Append records one entry for the account. The id and timestamp are
// assigned here if unset. The entry is visible to Query immediately; disk
// persistence happens on the next flush.
func (s *Store) Append(account string, e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = StatusSuccess
	}

	s.mu.Lock()
	s.ensureLoadedLocked(account)
	s.entries[account] = append([]Entry{e}, s.entries[account]...)
	if max := s.cfg.Logbook.MaxEntries; max > 0 && len(s.entries[account]) > max {
		s.entries[account] = s.entries[account][:max]
	}
	s.dirty[account] = true
	s.mu.Unlock()

	s.events.Send(account, hub.EventLogbookEntry, e)
	return e
}

// Query returns the account's entries matching the filter, newest first.
func (s *Store) Query(account string, f Filter) []Entry {
	s.mu.Lock()
	s.ensureLoadedLocked(account)
	all := s.entries[account]
	s.mu.Unlock()

	matched := make([]Entry, 0, len(all))
	for _, e := range all {
		if f.matches(e) {
			matched = append(matched, e)
		}
	}
	return matched
}

// DeleteAll wipes the account's logbook. The empty state is flushed to
// disk on the next cycle so a restart does not resurrect deleted entries.
func (s *Store) DeleteAll(account string) {
	s.mu.Lock()
	s.ensureLoadedLocked(account)
	s.entries[account] = nil
	s.dirty[account] = true
	s.mu.Unlock()
}

// Run flushes dirty accounts on the configured interval until the context
// is cancelled, then performs a final flush.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.LogbookFlushInterval())
	defer ticker.Stop()

	s.logger.Info("logbook flusher started", "interval", s.cfg.LogbookFlushInterval().String())

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-ctx.Done():
			s.Flush()
			s.logger.Info("logbook flusher stopped")
			return
		}
	}
}

// Flush writes every dirty account's snapshot to disk.
func (s *Store) Flush() {
	s.mu.Lock()
	pending := make(map[string][]Entry, len(s.dirty))
	for account := range s.dirty {
		pending[account] = append([]Entry(nil), s.entries[account]...)
		delete(s.dirty, account)
	}
	s.mu.Unlock()

	for account, entries := range pending {
		if err := s.writeSnapshot(account, entries); err != nil {
			s.logger.Error("logbook flush failed", "account", account, "error", err.Error())
			s.mu.Lock()
			s.dirty[account] = true
			s.mu.Unlock()
		}
	}
}

type snapshot struct {
	Entries []Entry `json:"entries"`
}

// writeSnapshot persists one account's full logbook atomically: write to a
// temp file in the same directory, then rename over the target.
func (s *Store) writeSnapshot(account string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(snapshot{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	target := s.filePath(account)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".logbook-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// ensureLoadedLocked reads the account's file into memory once. Called
// with s.mu held.
func (s *Store) ensureLoadedLocked(account string) {
	if s.loaded[account] {
		return
	}
	s.loaded[account] = true

	data, err := os.ReadFile(s.filePath(account))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("logbook read failed", "account", account, "error", err.Error())
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Error("logbook file corrupt, starting empty", "account", account, "error", err.Error())
		return
	}
	s.entries[account] = snap.Entries
}

func (s *Store) filePath(account string) string {
	return filepath.Join(s.cfg.Storage.DataDir, "logbook_"+account+".json")
}

func (f Filter) matches(e Entry) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Task != "" && e.Task != f.Task {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Summary), needle) &&
			!strings.Contains(strings.ToLower(e.Task), needle) &&
			!searchValue(e.Details, needle) {
			return false
		}
	}
	return true
}

// searchValue walks arbitrarily nested detail values looking for the
// needle as a case-insensitive substring of any leaf.
func searchValue(v any, needle string) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(strings.ToLower(val), needle)
	case map[string]any:
		for k, nested := range val {
			if strings.Contains(strings.ToLower(k), needle) || searchValue(nested, needle) {
				return true
			}
		}
		return false
	case []any:
		for _, nested := range val {
			if searchValue(nested, needle) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(strings.ToLower(fmt.Sprint(val)), needle)
	}
}
