package pilot

import (
	"context"
	"fmt"

	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/locks"
)

const TaskBulkBuy = "bulk_buy"

// BulkBuyPilot is the manual "fill both tanks now" action. Unlike the
// scheduled commodity pilots it ignores the price limits; the user asked
// for the purchase at whatever the current slot costs.
type BulkBuyPilot struct {
	FuelTonnes float64
	CO2Tonnes  float64
}

func (p *BulkBuyPilot) Name() string             { return TaskBulkBuy }
func (p *BulkBuyPilot) Category() locks.Category { return locks.CategoryBulkBuy }

func (p *BulkBuyPilot) Run(ctx context.Context, env *Env) (*Outcome, error) {
	if p.FuelTonnes <= 0 && p.CO2Tonnes <= 0 {
		return nil, fmt.Errorf("bulk buy: no amounts requested")
	}

	var results []*gameapi.PurchaseResult
	var totalCost float64

	buy := func(commodity gameapi.Commodity, tonnes float64) error {
		if tonnes <= 0 {
			return nil
		}
		result, err := env.Client.PurchaseCommodity(ctx, commodity, tonnes)
		if err != nil {
			return err
		}
		results = append(results, result)
		totalCost += result.Cost
		return nil
	}

	if err := buy(gameapi.CommodityFuel, p.FuelTonnes); err != nil {
		return nil, err
	}
	if err := buy(gameapi.CommodityCO2, p.CO2Tonnes); err != nil {
		// The fuel leg may already have gone through; report what
		// happened so the partial purchase is visible.
		env.Events.Send(env.Account.ID(), hub.EventBulkPurchaseResult, map[string]any{
			"completed": results, "failed": string(gameapi.CommodityCO2),
		})
		return nil, err
	}

	env.Events.Send(env.Account.ID(), hub.EventBulkPurchaseResult, map[string]any{
		"completed": results,
	})
	if n := len(results); n > 0 {
		env.Events.Send(env.Account.ID(), hub.EventCashUpdate, map[string]float64{
			"cash": results[n-1].CashAfter,
		})
		env.Metrics.WriteSpendMetric(env.Account.ID(), TaskBulkBuy, totalCost)
	}

	return &Outcome{
		Summary: fmt.Sprintf("bulk purchase of %d commodity lot(s) for $%.2f", len(results), totalCost),
		Details: map[string]any{
			"fuel_tonnes": p.FuelTonnes,
			"co2_tonnes":  p.CO2Tonnes,
			"cost":        totalCost,
		},
	}, nil
}
