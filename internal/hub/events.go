package hub

import "time"

// Event type tags pushed to connected tabs. The catalog is fixed: clients
// switch on these strings, so renaming a tag is a breaking protocol change.
const (
	// Lock and control state.
	EventLockStatus     = "lock_status"
	EventPauseState     = "pause_state"
	EventSettingsUpdate = "settings_update"

	// Prices and alerts.
	EventFuelPriceUpdate = "fuel_price_update"
	EventCO2PriceUpdate  = "co2_price_update"
	EventPriceSnapshot   = "price_snapshot"
	EventPriceAlert      = "price_alert"

	// Account economy.
	EventCashUpdate    = "cash_update"
	EventAccountState  = "account_state"
	EventIncomeUpdate  = "income_update"
	EventBalanceAlert  = "balance_alert"
	EventPremiumUpdate = "premium_update"

	// Fleet and vessels.
	EventFleetUpdate      = "fleet_update"
	EventVesselStatus     = "vessel_status"
	EventVesselDeparted   = "vessel_departed"
	EventVesselArrived    = "vessel_arrived"
	EventVesselAnchored   = "vessel_anchored"
	EventVesselCount      = "vessel_count_update"
	EventDepartureSummary = "departure_summary"

	// Consumable purchases.
	EventFuelPurchased       = "fuel_purchased"
	EventCO2Purchased        = "co2_purchased"
	EventBulkPurchaseResult  = "bulk_purchase_result"
	EventTankUpdate          = "tank_update"
	EventQuotaUpdate         = "co2_quota_update"
	EventPurchaseFailed      = "purchase_failed"
	EventInsufficientFunds   = "insufficient_funds"
	EventCacheInvalidated    = "cache_invalidated"
	EventResourceRefreshed   = "resource_refreshed"
	EventCampaignUpdate      = "campaign_update"
	EventCampaignRenewed     = "campaign_renewed"
	EventCampaignExpired     = "campaign_expired"
	EventMaintenanceUpdate   = "maintenance_update"
	EventRepairStarted       = "repair_started"
	EventRepairComplete      = "repair_complete"
	EventDrydockComplete     = "drydock_complete"
	EventCoopUpdate          = "coop_update"
	EventCoopBonusSent       = "coop_bonus_sent"
	EventPirateEvent         = "pirate_event"
	EventRansomNegotiated    = "ransom_negotiated"
	EventLogbookEntry        = "logbook_entry"
	EventLogbookCleared      = "logbook_cleared"
	EventTaskSummary         = "task_summary"
	EventNotification        = "notification"
)

// Event is the envelope pushed to every connected tab of an account.
// The wire format is {"type": ..., "data": ...} plus a server timestamp.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sender is the narrow interface components use to emit events without
// depending on the full Hub (and to keep tests free of real connections).
type Sender interface {
	Send(account string, eventType string, data any)
}

// NopSender discards all events. Useful for tests and optional wiring.
type NopSender struct{}

// Send implements Sender.
func (NopSender) Send(string, string, any) {}
