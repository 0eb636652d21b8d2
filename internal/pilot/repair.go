package pilot

import (
	"context"
	"fmt"

	"github.com/smcopilot/copilot-core/internal/cache"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/logbook"
)

const TaskRepair = "repair"

// RepairPilot repairs vessels whose wear is at or above the configured
// threshold, as one upstream batch.
type RepairPilot struct{}

func NewRepairPilot() *RepairPilot { return &RepairPilot{} }

func (p *RepairPilot) Name() string             { return TaskRepair }
func (p *RepairPilot) Category() locks.Category { return locks.CategoryRepair }

func (p *RepairPilot) Run(ctx context.Context, env *Env) (*Outcome, error) {
	threshold := env.Account.Settings().RepairWearThreshold
	if threshold <= 0 {
		env.Logger.Debug("repair threshold unset, nothing to do")
		return nil, nil
	}

	report, err := env.Client.FetchMaintenance(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	var quoted float64
	var zeroCost int
	for _, item := range report.Items {
		if item.Wear < threshold {
			continue
		}
		// A zero quote is a known upstream oddity. Attempt the repair
		// anyway; the quote is informational, the charge is authoritative.
		if item.Cost == 0 {
			zeroCost++
		}
		ids = append(ids, item.VesselID)
		quoted += item.Cost
	}
	if len(ids) == 0 {
		return nil, nil
	}

	state, err := env.Client.FetchAccountState(ctx)
	if err != nil {
		return nil, err
	}
	if quoted > state.Cash {
		// Expected outcome, not an error. Report and wait for funds.
		return &Outcome{
			Summary: fmt.Sprintf("%d vessel(s) need repair ($%.2f quoted) but balance is $%.2f", len(ids), quoted, state.Cash),
			Details: map[string]any{
				"vessel_ids": ids,
				"quoted":     quoted,
				"cash":       state.Cash,
			},
		}, nil
	}

	result, err := env.Client.RepairVessels(ctx, ids)
	if err != nil {
		return nil, err
	}

	env.Cache.Invalidate(env.Account.ID(), cache.KindVessels)
	env.Events.Send(env.Account.ID(), hub.EventRepairComplete, result)
	env.Events.Send(env.Account.ID(), hub.EventCashUpdate, map[string]float64{
		"cash": result.CashAfter,
	})
	env.Metrics.WriteSpendMetric(env.Account.ID(), "repair", result.Cost)

	outcome := &Outcome{
		Summary: fmt.Sprintf("repaired %d vessel(s) for $%.2f", len(ids), result.Cost),
		Details: map[string]any{
			"vessel_ids": ids,
			"cost":       result.Cost,
			"cash_after": result.CashAfter,
		},
	}
	if zeroCost > 0 {
		// The repair went through, but the anomalous quote deserves a
		// reviewed entry rather than a quiet success.
		outcome.Status = logbook.StatusWarning
		outcome.Summary += fmt.Sprintf(", %d zero-cost quote(s)", zeroCost)
		outcome.Details["zero_cost_quotes"] = zeroCost
	}
	return outcome, nil
}
