package gameapi

import "time"

// Commodity names a purchasable consumable.
type Commodity string

const (
	CommodityFuel Commodity = "fuel"
	CommodityCO2  Commodity = "co2"
)

// PriceSnapshot is the commodity price pair for one 30-minute slot.
// Prices are per tonne.
type PriceSnapshot struct {
	Slot      string    `json:"slot"`
	Fuel      float64   `json:"fuel"`
	CO2       float64   `json:"co2"`
	FetchedAt time.Time `json:"fetched_at"`
}

// AccountState is the account-level resource summary. Quantities are in
// tonnes; upstream transmits kilograms.
type AccountState struct {
	Cash       float64 `json:"cash"`
	FuelTonnes float64 `json:"fuel_tonnes"`
	CO2Tonnes  float64 `json:"co2_tonnes"`
	Points     int     `json:"points"`
}

// Vessel is one fleet unit as reported by upstream.
type Vessel struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Wear       float64 `json:"wear"`
	FuelTonnes float64 `json:"fuel_tonnes"`

	// Income and Fee describe the pending route. Fee exceeding Income is
	// a known upstream anomaly; it is reported, not acted on here.
	Income float64 `json:"income"`
	Fee    float64 `json:"fee"`

	ReadyToDepart bool `json:"ready_to_depart"`
}

// PurchaseResult reports one completed commodity purchase.
type PurchaseResult struct {
	Commodity Commodity `json:"commodity"`
	Tonnes    float64   `json:"tonnes"`
	Cost      float64   `json:"cost"`
	CashAfter float64   `json:"cash_after"`
}

// DepartResult reports one vessel departure.
type DepartResult struct {
	VesselID   string  `json:"vessel_id"`
	Income     float64 `json:"income"`
	Fee        float64 `json:"fee"`
	FeeAnomaly bool    `json:"fee_anomaly"`
}

// MaintenanceItem is one vessel's repair quote.
type MaintenanceItem struct {
	VesselID string  `json:"vessel_id"`
	Wear     float64 `json:"wear"`
	Cost     float64 `json:"cost"`
}

// MaintenanceReport is the per-fleet repair quote set.
type MaintenanceReport struct {
	Items     []MaintenanceItem `json:"items"`
	TotalCost float64           `json:"total_cost"`
}

// RepairResult reports a completed repair batch.
type RepairResult struct {
	VesselIDs []string `json:"vessel_ids"`
	Cost      float64  `json:"cost"`
	CashAfter float64  `json:"cash_after"`
}

// DrydockResult reports a completed drydock batch.
type DrydockResult struct {
	VesselIDs []string `json:"vessel_ids"`
	Cost      float64  `json:"cost"`
}

// Campaign is one advertising campaign as reported by upstream.
type Campaign struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	ExpiresAt time.Time `json:"expires_at"`
	Cost      float64   `json:"cost"`
}

// CoopResult reports one co-op bonus send.
type CoopResult struct {
	Sent   bool    `json:"sent"`
	Amount float64 `json:"amount"`
}

// PirateEvent is an active pirate encounter, if any.
type PirateEvent struct {
	ID            string  `json:"id"`
	VesselID      string  `json:"vessel_id"`
	DemandedCash  float64 `json:"demanded_cash"`
	MinimumOffer  float64 `json:"minimum_offer"`
	RoundsAllowed int     `json:"rounds_allowed"`
}

// NegotiationResult reports one ransom negotiation round.
type NegotiationResult struct {
	Accepted  bool    `json:"accepted"`
	FinalCash float64 `json:"final_cash"`
	Rounds    int     `json:"rounds"`
}
