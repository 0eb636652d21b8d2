package pilot

import (
	"context"
	"fmt"

	"github.com/smcopilot/copilot-core/internal/cache"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/locks"
)

const TaskDrydock = "drydock"

// DrydockPilot sends heavily worn vessels to drydock. Drydock is the
// deep-overhaul counterpart to repair, so its wear threshold sits well
// above the repair one.
type DrydockPilot struct{}

func NewDrydockPilot() *DrydockPilot { return &DrydockPilot{} }

func (p *DrydockPilot) Name() string             { return TaskDrydock }
func (p *DrydockPilot) Category() locks.Category { return locks.CategoryDrydock }

func (p *DrydockPilot) Run(ctx context.Context, env *Env) (*Outcome, error) {
	threshold := env.Account.Settings().DrydockWearThreshold
	if threshold <= 0 {
		env.Logger.Debug("drydock threshold unset, nothing to do")
		return nil, nil
	}

	fleet, err := fetchVessels(ctx, env)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, v := range fleet {
		// Only idle vessels can enter drydock; en-route ones wait for
		// the next cycle.
		if v.Wear >= threshold && !v.ReadyToDepart && v.Status == "idle" {
			ids = append(ids, v.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	result, err := env.Client.DrydockVessels(ctx, ids)
	if err != nil {
		return nil, err
	}

	env.Cache.Invalidate(env.Account.ID(), cache.KindVessels)
	env.Events.Send(env.Account.ID(), hub.EventDrydockComplete, result)

	return &Outcome{
		Summary: fmt.Sprintf("sent %d vessel(s) to drydock for $%.2f", len(ids), result.Cost),
		Details: map[string]any{
			"vessel_ids": ids,
			"cost":       result.Cost,
		},
	}, nil
}
