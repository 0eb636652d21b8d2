package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/infrastructure/logging"
)

// Settings is the per-account automation configuration blob. The schema
// only ever grows; new fields get zero values on old files.
type Settings struct {
	// Automations enables or disables individual tasks by name. A task
	// absent from the map is disabled.
	Automations map[string]bool `json:"automations"`

	// Purchase limits. A price of 0 disables the corresponding purchase.
	FuelMaxPrice     float64 `json:"fuel_max_price"`
	FuelTargetTonnes float64 `json:"fuel_target_tonnes"`
	CO2MaxPrice      float64 `json:"co2_max_price"`
	CO2TargetTonnes  float64 `json:"co2_target_tonnes"`

	// Price alert thresholds. 0 disables the alert.
	FuelAlertThreshold float64 `json:"fuel_alert_threshold"`
	CO2AlertThreshold  float64 `json:"co2_alert_threshold"`

	// Wear percentages that trigger repair and drydock.
	RepairWearThreshold  float64 `json:"repair_wear_threshold"`
	DrydockWearThreshold float64 `json:"drydock_wear_threshold"`

	// MaxRansomFraction caps a pirate counter-offer as a fraction of the
	// demanded cash.
	MaxRansomFraction float64 `json:"max_ransom_fraction"`

	// DepartBlockOnFeeAnomaly aborts a departure whose fee exceeds its
	// reported income instead of just logging the anomaly.
	DepartBlockOnFeeAnomaly bool `json:"depart_block_on_fee_anomaly"`
}

// Account holds all mutable per-account state: the settings blob, the
// pause flag, the latest price snapshot, and price-alert arming. Task
// code goes through these accessors only; there is no raw map access.
type Account struct {
	id       string
	registry *Registry

	mu       sync.RWMutex
	settings Settings
	paused   bool
	prices   *gameapi.PriceSnapshot
	armed    map[gameapi.Commodity]bool
}

// ID returns the account identifier.
func (a *Account) ID() string {
	return a.id
}

// Settings returns a copy of the current settings.
func (a *Account) Settings() Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// UpdateSettings replaces the settings blob and persists it to disk.
func (a *Account) UpdateSettings(s Settings) error {
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
	return a.registry.persistSettings(a.id, s)
}

// AutomationEnabled reports whether the named task is switched on.
func (a *Account) AutomationEnabled(task string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.Automations[task]
}

// Paused reports the global pause flag. Pausing prevents new automated
// invocations only; it never interrupts an in-flight one.
func (a *Account) Paused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

// SetPaused flips the pause flag and reports whether the value changed.
func (a *Account) SetPaused(paused bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	changed := a.paused != paused
	a.paused = paused
	return changed
}

// PriceSnapshot returns the latest stored price snapshot, or nil.
func (a *Account) PriceSnapshot() *gameapi.PriceSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.prices == nil {
		return nil
	}
	snap := *a.prices
	return &snap
}

// SetPriceSnapshot stores the latest price snapshot.
func (a *Account) SetPriceSnapshot(snap *gameapi.PriceSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if snap == nil {
		a.prices = nil
		return
	}
	copied := *snap
	a.prices = &copied
}

// AlertArmed reports whether the price alert for the commodity is armed.
// Alerts start armed.
func (a *Account) AlertArmed(c gameapi.Commodity) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	armed, ok := a.armed[c]
	if !ok {
		return true
	}
	return armed
}

// SetAlertArmed sets the arming state for the commodity's price alert.
func (a *Account) SetAlertArmed(c gameapi.Commodity, armed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed[c] = armed
}

// Registry is the account session registry. Sessions are created on first
// reference and live for the process lifetime.
type Registry struct {
	cfg    *config.Config
	logger *logging.Logger

	mu       sync.Mutex
	sessions map[string]*Account
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *config.Config, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger.With("component", "session"),
		sessions: make(map[string]*Account),
	}
}

// Get returns the session for the account, creating it on first
// reference. Creation loads any persisted settings file.
func (r *Registry) Get(account string) *Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[account]; ok {
		return existing
	}

	a := &Account{
		id:       account,
		registry: r,
		armed:    make(map[gameapi.Commodity]bool),
	}
	if settings, err := r.loadSettings(account); err != nil {
		r.logger.Error("settings load failed, using defaults", "account", account, "error", err.Error())
	} else if settings != nil {
		a.settings = *settings
	}
	if a.settings.Automations == nil {
		a.settings.Automations = make(map[string]bool)
	}

	r.sessions[account] = a
	return a
}

func (r *Registry) settingsPath(account string) string {
	return filepath.Join(r.cfg.Storage.DataDir, "settings_"+account+".json")
}

// loadSettings reads the persisted settings file. A missing file is not
// an error; it just means defaults.
func (r *Registry) loadSettings(account string) (*Settings, error) {
	data, err := os.ReadFile(r.settingsPath(account))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return &s, nil
}

// persistSettings writes the settings blob atomically, temp file then
// rename, same as every other durable file.
func (r *Registry) persistSettings(account string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	target := r.settingsPath(account)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".settings-*.tmp")
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
		return fmt.Errorf("rename settings: %w", err)
	}
	return nil
}
