package pilot

import (
	"context"
	"fmt"

	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/locks"
)

const TaskCoopBonus = "coop_bonus"

// CoopPilot sends the co-op bonus once per period. Upstream tracks the
// period; an already-claimed bonus is a quiet no-op here.
type CoopPilot struct{}

func NewCoopPilot() *CoopPilot { return &CoopPilot{} }

func (p *CoopPilot) Name() string             { return TaskCoopBonus }
func (p *CoopPilot) Category() locks.Category { return locks.CategoryCoopSend }

func (p *CoopPilot) Run(ctx context.Context, env *Env) (*Outcome, error) {
	result, err := env.Client.SendCoopBonus(ctx)
	if err != nil {
		return nil, err
	}
	if !result.Sent {
		env.Logger.Debug("co-op bonus already claimed this period")
		return nil, nil
	}

	env.Events.Send(env.Account.ID(), hub.EventCoopBonusSent, result)

	return &Outcome{
		Summary: fmt.Sprintf("sent co-op bonus of $%.2f", result.Amount),
		Details: map[string]any{"amount": result.Amount},
	}, nil
}
