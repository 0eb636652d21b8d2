package pilot

import (
	"context"

	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/locks"
)

const TaskPriceWatch = "price_watch"

// PriceWatchPilot reads the current slot's prices shortly after each
// :00/:30 UTC boundary, pushes them to connected tabs, and fires the
// configured price alerts.
//
// Alert semantics: an alert is armed by default and fires once when the
// price drops below its threshold. It stays silent while the price
// remains below, and re-arms only when the price comes back up to or
// above the threshold. One broadcast per crossing, not per tick.
type PriceWatchPilot struct{}

func NewPriceWatchPilot() *PriceWatchPilot { return &PriceWatchPilot{} }

func (p *PriceWatchPilot) Name() string             { return TaskPriceWatch }
func (p *PriceWatchPilot) Category() locks.Category { return "" }

func (p *PriceWatchPilot) Run(ctx context.Context, env *Env) (*Outcome, error) {
	prices, err := env.Client.FetchPrices(ctx)
	if err != nil {
		return nil, err
	}
	env.Account.SetPriceSnapshot(prices)

	account := env.Account.ID()
	env.Events.Send(account, hub.EventFuelPriceUpdate, map[string]any{
		"slot": prices.Slot, "price": prices.Fuel,
	})
	env.Events.Send(account, hub.EventCO2PriceUpdate, map[string]any{
		"slot": prices.Slot, "price": prices.CO2,
	})
	env.Events.Send(account, hub.EventPriceSnapshot, prices)

	env.Metrics.WritePriceMetric(account, string(gameapi.CommodityFuel), prices.Slot, prices.Fuel)
	env.Metrics.WritePriceMetric(account, string(gameapi.CommodityCO2), prices.Slot, prices.CO2)

	settings := env.Account.Settings()
	p.checkAlert(env, gameapi.CommodityFuel, prices.Fuel, settings.FuelAlertThreshold, prices.Slot)
	p.checkAlert(env, gameapi.CommodityCO2, prices.CO2, settings.CO2AlertThreshold, prices.Slot)

	// Price ticks happen 48 times a day; they report through events, not
	// logbook entries.
	return nil, nil
}

func (p *PriceWatchPilot) checkAlert(env *Env, commodity gameapi.Commodity, price, threshold float64, slot string) {
	if threshold <= 0 {
		return
	}

	switch {
	case price < threshold && env.Account.AlertArmed(commodity):
		env.Account.SetAlertArmed(commodity, false)
		env.Events.Send(env.Account.ID(), hub.EventPriceAlert, map[string]any{
			"commodity": string(commodity),
			"price":     price,
			"threshold": threshold,
			"slot":      slot,
		})
		env.Logger.Info("price alert fired",
			"commodity", string(commodity), "price", price, "threshold", threshold)

	case price >= threshold && !env.Account.AlertArmed(commodity):
		env.Account.SetAlertArmed(commodity, true)
		env.Logger.Debug("price alert re-armed",
			"commodity", string(commodity), "price", price, "threshold", threshold)
	}
}
