package gameapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/infrastructure/logging"
)

// kg per tonne. Upstream transmits quantities in kilograms; the domain
// model works in tonnes. Conversion happens here and nowhere else.
const kgPerTonne = 1000

// Client is the typed adapter over the upstream game API. It owns unit
// conversion, list-parameter encoding, price-slot matching, and error
// classification. Callers never see raw upstream payloads.
type Client struct {
	http    *resty.Client
	logger  *logging.Logger
	account string
}

// New builds a client bound to the configured account session.
func New(cfg *config.Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}

	http := resty.New().
		SetBaseURL(cfg.Upstream.BaseURL).
		SetTimeout(cfg.UpstreamTimeout()).
		SetRetryCount(cfg.Upstream.RetryCount).
		// Retries are safe for reads only. A mutating request whose
		// connection drops may already have been applied upstream;
		// re-sending it risks a double purchase or departure, so
		// mutations fail ErrTransient and wait for the next tick.
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil || resp.Request.Method != "GET" {
				return false
			}
			return err != nil || resp.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json").
		SetHeader("Cookie", "session="+cfg.Account.SessionCookie)

	return &Client{
		http:    http,
		logger:  logger.With("component", "gameapi"),
		account: cfg.Account.ID,
	}
}

// Account returns the account id this client acts for.
func (c *Client) Account() string {
	return c.account
}

// --- price lookup ---

type priceRowWire struct {
	FuelPerKg *float64 `json:"fuel"`
	CO2PerKg  *float64 `json:"co2"`
}

type pricesWire struct {
	Prices map[string]priceRowWire `json:"prices"`
}

// FetchPrices reads the price table and returns the row for the current
// 30-minute UTC slot. A missing slot or a zero price is ErrDataAnomaly;
// there is no fallback to another row.
func (c *Client) FetchPrices(ctx context.Context) (*PriceSnapshot, error) {
	var wire pricesWire
	if err := c.get(ctx, "/api/prices/index.php", nil, &wire); err != nil {
		return nil, err
	}
	if wire.Prices == nil {
		return nil, fmt.Errorf("prices: missing price table")
	}

	slot := CurrentSlot()
	row, ok := wire.Prices[slot]
	if !ok {
		return nil, fmt.Errorf("%w: no row for slot %s", ErrDataAnomaly, slot)
	}
	if row.FuelPerKg == nil || row.CO2PerKg == nil {
		return nil, fmt.Errorf("prices: slot %s missing commodity field", slot)
	}
	if *row.FuelPerKg <= 0 || *row.CO2PerKg <= 0 {
		return nil, fmt.Errorf("%w: non-positive price in slot %s", ErrDataAnomaly, slot)
	}

	return &PriceSnapshot{
		Slot:      slot,
		Fuel:      *row.FuelPerKg * kgPerTonne,
		CO2:       *row.CO2PerKg * kgPerTonne,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// --- account state ---

type accountStateWire struct {
	Cash   *float64 `json:"cash"`
	FuelKg *float64 `json:"fuel_kg"`
	CO2Kg  *float64 `json:"co2_kg"`
	Points *int     `json:"points"`
}

// FetchAccountState reads the account resource summary.
func (c *Client) FetchAccountState(ctx context.Context) (*AccountState, error) {
	var wire accountStateWire
	if err := c.get(ctx, "/api/account/index.php", nil, &wire); err != nil {
		return nil, err
	}
	if wire.Cash == nil || wire.FuelKg == nil || wire.CO2Kg == nil || wire.Points == nil {
		return nil, fmt.Errorf("account state: missing required field")
	}

	return &AccountState{
		Cash:       *wire.Cash,
		FuelTonnes: *wire.FuelKg / kgPerTonne,
		CO2Tonnes:  *wire.CO2Kg / kgPerTonne,
		Points:     *wire.Points,
	}, nil
}

// --- fleet ---

type vesselWire struct {
	ID     *string  `json:"id"`
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Wear   *float64 `json:"wear"`
	FuelKg *float64 `json:"fuel_kg"`
	Income *float64 `json:"income"`
	Fee    *float64 `json:"fee"`
	Ready  bool     `json:"ready_to_depart"`
}

type fleetWire struct {
	Vessels []vesselWire `json:"vessels"`
}

// FetchVessels reads the full fleet state.
func (c *Client) FetchVessels(ctx context.Context) ([]Vessel, error) {
	var wire fleetWire
	if err := c.get(ctx, "/api/fleet/index.php", nil, &wire); err != nil {
		return nil, err
	}

	vessels := make([]Vessel, 0, len(wire.Vessels))
	for i, v := range wire.Vessels {
		if v.ID == nil || v.Wear == nil || v.FuelKg == nil || v.Income == nil || v.Fee == nil {
			return nil, fmt.Errorf("fleet: vessel %d missing required field", i)
		}
		vessels = append(vessels, Vessel{
			ID:            *v.ID,
			Name:          v.Name,
			Status:        v.Status,
			Wear:          *v.Wear,
			FuelTonnes:    *v.FuelKg / kgPerTonne,
			Income:        *v.Income,
			Fee:           *v.Fee,
			ReadyToDepart: v.Ready,
		})
	}
	return vessels, nil
}

// --- purchases ---

type purchaseWire struct {
	Cost      *float64 `json:"cost"`
	CashAfter *float64 `json:"cash_after"`
}

// PurchaseCommodity buys the given number of tonnes of fuel or CO2 quota.
// The amount is transmitted upstream in kilograms.
func (c *Client) PurchaseCommodity(ctx context.Context, commodity Commodity, tonnes float64) (*PurchaseResult, error) {
	if tonnes <= 0 {
		return nil, fmt.Errorf("purchase: non-positive amount %v", tonnes)
	}

	form := url.Values{
		"commodity": {string(commodity)},
		"amount_kg": {strconv.FormatFloat(tonnes*kgPerTonne, 'f', 0, 64)},
	}

	var wire purchaseWire
	if err := c.post(ctx, "/api/purchase/index.php", form, &wire); err != nil {
		return nil, err
	}
	if wire.Cost == nil || wire.CashAfter == nil {
		return nil, fmt.Errorf("purchase: missing required field")
	}

	return &PurchaseResult{
		Commodity: commodity,
		Tonnes:    tonnes,
		Cost:      *wire.Cost,
		CashAfter: *wire.CashAfter,
	}, nil
}

// --- departures ---

type departWire struct {
	Income *float64 `json:"income"`
	Fee    *float64 `json:"fee"`
}

// DepartVessel sends one vessel on its pending route. A fee exceeding the
// reported income is a known upstream anomaly: it is flagged in the result
// and logged, but the departure is not blocked here.
func (c *Client) DepartVessel(ctx context.Context, vesselID string) (*DepartResult, error) {
	form := url.Values{"vessel_id": {vesselID}}

	var wire departWire
	if err := c.post(ctx, "/api/fleet/depart.php", form, &wire); err != nil {
		return nil, err
	}
	if wire.Income == nil || wire.Fee == nil {
		return nil, fmt.Errorf("depart: missing required field")
	}

	result := &DepartResult{
		VesselID: vesselID,
		Income:   *wire.Income,
		Fee:      *wire.Fee,
	}
	if result.Fee > result.Income {
		result.FeeAnomaly = true
		c.logger.Warn("departure fee exceeds income",
			"vessel_id", vesselID, "fee", result.Fee, "income", result.Income)
	}
	return result, nil
}

// --- maintenance ---

type maintenanceItemWire struct {
	VesselID *string  `json:"vessel_id"`
	Wear     *float64 `json:"wear"`
	Cost     *float64 `json:"cost"`
}

type maintenanceWire struct {
	Items []maintenanceItemWire `json:"items"`
}

// FetchMaintenance reads the per-vessel repair quotes. A zero cost on an
// otherwise valid item is tolerated and passed through; the caller decides
// whether to attempt the repair anyway.
func (c *Client) FetchMaintenance(ctx context.Context) (*MaintenanceReport, error) {
	var wire maintenanceWire
	if err := c.get(ctx, "/api/maintenance/index.php", nil, &wire); err != nil {
		return nil, err
	}

	report := &MaintenanceReport{Items: make([]MaintenanceItem, 0, len(wire.Items))}
	for i, item := range wire.Items {
		if item.VesselID == nil || item.Wear == nil || item.Cost == nil {
			return nil, fmt.Errorf("maintenance: item %d missing required field", i)
		}
		if *item.Cost == 0 {
			c.logger.Warn("zero repair cost reported, attempting anyway",
				"vessel_id", *item.VesselID, "wear", *item.Wear)
		}
		report.Items = append(report.Items, MaintenanceItem{
			VesselID: *item.VesselID,
			Wear:     *item.Wear,
			Cost:     *item.Cost,
		})
		report.TotalCost += *item.Cost
	}
	return report, nil
}

type repairWire struct {
	Cost      *float64 `json:"cost"`
	CashAfter *float64 `json:"cash_after"`
}

// RepairVessels repairs the given vessels in one batch. Upstream takes the
// id list as a single comma-joined string parameter.
func (c *Client) RepairVessels(ctx context.Context, vesselIDs []string) (*RepairResult, error) {
	if len(vesselIDs) == 0 {
		return &RepairResult{}, nil
	}

	form := url.Values{"vessel_ids": {encodeIDList(vesselIDs)}}

	var wire repairWire
	if err := c.post(ctx, "/api/maintenance/repair.php", form, &wire); err != nil {
		return nil, err
	}
	if wire.Cost == nil || wire.CashAfter == nil {
		return nil, fmt.Errorf("repair: missing required field")
	}

	return &RepairResult{
		VesselIDs: vesselIDs,
		Cost:      *wire.Cost,
		CashAfter: *wire.CashAfter,
	}, nil
}

type drydockWire struct {
	Cost *float64 `json:"cost"`
}

// DrydockVessels sends the given vessels to drydock in one batch.
func (c *Client) DrydockVessels(ctx context.Context, vesselIDs []string) (*DrydockResult, error) {
	if len(vesselIDs) == 0 {
		return &DrydockResult{}, nil
	}

	form := url.Values{"vessel_ids": {encodeIDList(vesselIDs)}}

	var wire drydockWire
	if err := c.post(ctx, "/api/maintenance/drydock.php", form, &wire); err != nil {
		return nil, err
	}
	if wire.Cost == nil {
		return nil, fmt.Errorf("drydock: missing required field")
	}

	return &DrydockResult{VesselIDs: vesselIDs, Cost: *wire.Cost}, nil
}

// --- campaigns ---

type campaignWire struct {
	ID        *int     `json:"id"`
	Name      string   `json:"name"`
	Active    bool     `json:"active"`
	ExpiresAt string   `json:"expires_at"`
	Cost      *float64 `json:"cost"`
}

type campaignsWire struct {
	Campaigns []campaignWire `json:"campaigns"`
}

// FetchCampaigns reads the advertising campaign catalog with activation state.
func (c *Client) FetchCampaigns(ctx context.Context) ([]Campaign, error) {
	var wire campaignsWire
	if err := c.get(ctx, "/api/campaigns/index.php", nil, &wire); err != nil {
		return nil, err
	}

	campaigns := make([]Campaign, 0, len(wire.Campaigns))
	for i, cw := range wire.Campaigns {
		if cw.ID == nil || cw.Cost == nil {
			return nil, fmt.Errorf("campaigns: entry %d missing required field", i)
		}
		campaign := Campaign{
			ID:     *cw.ID,
			Name:   cw.Name,
			Active: cw.Active,
			Cost:   *cw.Cost,
		}
		if cw.ExpiresAt != "" {
			expires, err := time.Parse(time.RFC3339, cw.ExpiresAt)
			if err != nil {
				return nil, fmt.Errorf("campaigns: entry %d bad expires_at %q: %w", i, cw.ExpiresAt, err)
			}
			campaign.ExpiresAt = expires
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, nil
}

// ActivateCampaign activates (or renews) one advertising campaign.
func (c *Client) ActivateCampaign(ctx context.Context, campaignID int) error {
	form := url.Values{"campaign_id": {strconv.Itoa(campaignID)}}
	return c.post(ctx, "/api/campaigns/activate.php", form, nil)
}

// --- co-op ---

type coopWire struct {
	Sent   *bool    `json:"sent"`
	Amount *float64 `json:"amount"`
}

// SendCoopBonus sends the daily co-op bonus if one is available. Sent false
// means the bonus was already claimed this period; that is an outcome, not
// an error.
func (c *Client) SendCoopBonus(ctx context.Context) (*CoopResult, error) {
	var wire coopWire
	if err := c.post(ctx, "/api/coop/send.php", nil, &wire); err != nil {
		return nil, err
	}
	if wire.Sent == nil || wire.Amount == nil {
		return nil, fmt.Errorf("coop: missing required field")
	}
	return &CoopResult{Sent: *wire.Sent, Amount: *wire.Amount}, nil
}

// --- pirates ---

type pirateWire struct {
	Active        bool     `json:"active"`
	ID            string   `json:"id"`
	VesselID      string   `json:"vessel_id"`
	DemandedCash  *float64 `json:"demanded_cash"`
	MinimumOffer  *float64 `json:"minimum_offer"`
	RoundsAllowed *int     `json:"rounds_allowed"`
}

// FetchPirateEvent returns the active pirate encounter, or nil if none.
func (c *Client) FetchPirateEvent(ctx context.Context) (*PirateEvent, error) {
	var wire pirateWire
	if err := c.get(ctx, "/api/pirates/index.php", nil, &wire); err != nil {
		return nil, err
	}
	if !wire.Active {
		return nil, nil
	}
	if wire.ID == "" || wire.DemandedCash == nil || wire.MinimumOffer == nil || wire.RoundsAllowed == nil {
		return nil, fmt.Errorf("pirates: active event missing required field")
	}

	return &PirateEvent{
		ID:            wire.ID,
		VesselID:      wire.VesselID,
		DemandedCash:  *wire.DemandedCash,
		MinimumOffer:  *wire.MinimumOffer,
		RoundsAllowed: *wire.RoundsAllowed,
	}, nil
}

type negotiateWire struct {
	Accepted  *bool    `json:"accepted"`
	FinalCash *float64 `json:"final_cash"`
	Rounds    *int     `json:"rounds"`
}

// NegotiateRansom submits one counter-offer for an active pirate event.
func (c *Client) NegotiateRansom(ctx context.Context, eventID string, offer float64) (*NegotiationResult, error) {
	form := url.Values{
		"event_id": {eventID},
		"offer":    {strconv.FormatFloat(offer, 'f', 2, 64)},
	}

	var wire negotiateWire
	if err := c.post(ctx, "/api/pirates/negotiate.php", form, &wire); err != nil {
		return nil, err
	}
	if wire.Accepted == nil || wire.FinalCash == nil || wire.Rounds == nil {
		return nil, fmt.Errorf("negotiate: missing required field")
	}

	return &NegotiationResult{
		Accepted:  *wire.Accepted,
		FinalCash: *wire.FinalCash,
		Rounds:    *wire.Rounds,
	}, nil
}

// --- transport helpers ---

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	resp, err := req.Get(path)
	return c.finish(path, resp, err, out)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	req := c.http.R().SetContext(ctx)
	if form != nil {
		req.SetFormDataFromValues(form)
	}
	resp, err := req.Post(path)
	return c.finish(path, resp, err, out)
}

// finish classifies the outcome of a request and decodes the body into out.
func (c *Client) finish(path string, resp *resty.Response, err error, out any) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransient, path, err)
	}

	code := resp.StatusCode()
	switch {
	case code == 401 || code == 403:
		return fmt.Errorf("%w: %s returned %d", ErrSession, path, code)
	case code >= 500:
		return fmt.Errorf("%w: %s returned %d", ErrTransient, path, code)
	case code != 200:
		return fmt.Errorf("gameapi: %s returned unexpected status %d", path, code)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("gameapi: %s returned malformed body: %w", path, err)
	}
	return nil
}

// encodeIDList joins vessel ids into the comma-separated string form the
// upstream expects for list parameters.
func encodeIDList(ids []string) string {
	return strings.Join(ids, ",")
}
