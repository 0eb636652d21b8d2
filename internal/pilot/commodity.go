package pilot

import (
	"context"
	"fmt"

	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/logbook"
)

// Task names as they appear in settings, the logbook, and the scheduler.
const (
	TaskFuelPurchase = "fuel_purchase"
	TaskCO2Purchase  = "co2_purchase"
)

// CommodityPilot tops up one commodity when the current slot price is at
// or under the configured limit. One pilot instance per commodity.
type CommodityPilot struct {
	commodity gameapi.Commodity
}

// NewFuelPilot buys fuel up to the configured target tonnage.
func NewFuelPilot() *CommodityPilot {
	return &CommodityPilot{commodity: gameapi.CommodityFuel}
}

// NewCO2Pilot buys CO2 quota up to the configured target tonnage.
func NewCO2Pilot() *CommodityPilot {
	return &CommodityPilot{commodity: gameapi.CommodityCO2}
}

func (p *CommodityPilot) Name() string {
	if p.commodity == gameapi.CommodityFuel {
		return TaskFuelPurchase
	}
	return TaskCO2Purchase
}

func (p *CommodityPilot) Category() locks.Category {
	if p.commodity == gameapi.CommodityFuel {
		return locks.CategoryFuelPurchase
	}
	return locks.CategoryCO2Purchase
}

func (p *CommodityPilot) limits(env *Env) (maxPrice, target float64) {
	s := env.Account.Settings()
	if p.commodity == gameapi.CommodityFuel {
		return s.FuelMaxPrice, s.FuelTargetTonnes
	}
	return s.CO2MaxPrice, s.CO2TargetTonnes
}

func (p *CommodityPilot) Run(ctx context.Context, env *Env) (*Outcome, error) {
	maxPrice, target := p.limits(env)
	if maxPrice <= 0 || target <= 0 {
		env.Logger.Debug("purchase limits unset, nothing to do", "commodity", string(p.commodity))
		return nil, nil
	}

	prices, err := env.Client.FetchPrices(ctx)
	if err != nil {
		return nil, err
	}
	env.Account.SetPriceSnapshot(prices)

	price := prices.Fuel
	if p.commodity == gameapi.CommodityCO2 {
		price = prices.CO2
	}
	if price > maxPrice {
		env.Logger.Debug("price above limit", "commodity", string(p.commodity),
			"price", price, "limit", maxPrice)
		return nil, nil
	}

	state, err := env.Client.FetchAccountState(ctx)
	if err != nil {
		return nil, err
	}

	held := state.FuelTonnes
	if p.commodity == gameapi.CommodityCO2 {
		held = state.CO2Tonnes
	}
	need := target - held
	if need <= 0 {
		return nil, nil
	}

	// Not enough cash is an expected outcome, never an error. Buy what
	// the balance covers; below one tonne, report and stop.
	affordable := need
	if cost := need * price; cost > state.Cash {
		affordable = state.Cash / price
	}
	if affordable < 1 {
		return &Outcome{
			Summary: fmt.Sprintf("wanted %.0ft of %s at $%.2f but balance is too low", need, p.commodity, price),
			Details: map[string]any{
				"commodity": string(p.commodity),
				"price":     price,
				"cash":      state.Cash,
				"needed":    need,
			},
		}, nil
	}

	result, err := env.Client.PurchaseCommodity(ctx, p.commodity, affordable)
	if err != nil {
		return nil, err
	}

	event := hub.EventFuelPurchased
	if p.commodity == gameapi.CommodityCO2 {
		event = hub.EventCO2Purchased
	}
	env.Events.Send(env.Account.ID(), event, result)
	env.Events.Send(env.Account.ID(), hub.EventCashUpdate, map[string]float64{
		"cash": result.CashAfter,
	})
	env.Metrics.WriteSpendMetric(env.Account.ID(), string(p.commodity), result.Cost)

	return &Outcome{
		Status: logbook.StatusSuccess,
		Summary: fmt.Sprintf("bought %.0ft of %s at $%.2f/t for $%.2f",
			result.Tonnes, p.commodity, price, result.Cost),
		Details: map[string]any{
			"commodity":  string(p.commodity),
			"tonnes":     result.Tonnes,
			"price":      price,
			"cost":       result.Cost,
			"cash_after": result.CashAfter,
		},
	}, nil
}
