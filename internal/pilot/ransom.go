package pilot

import (
	"context"
	"fmt"

	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/logbook"
)

const TaskPirateRansom = "pirate_ransom"

// RansomPilot negotiates active pirate encounters down from the demanded
// cash. Offers start at the pirates' minimum and step toward the
// configured cap; if every round is rejected the encounter is left for
// the next cycle and flagged as a WARNING.
type RansomPilot struct{}

func NewRansomPilot() *RansomPilot { return &RansomPilot{} }

func (p *RansomPilot) Name() string             { return TaskPirateRansom }
func (p *RansomPilot) Category() locks.Category { return locks.CategoryRansom }

func (p *RansomPilot) Run(ctx context.Context, env *Env) (*Outcome, error) {
	event, err := env.Client.FetchPirateEvent(ctx)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, nil
	}

	env.Events.Send(env.Account.ID(), hub.EventPirateEvent, event)

	fraction := env.Account.Settings().MaxRansomFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 0.5
	}
	maxOffer := event.DemandedCash * fraction
	if maxOffer < event.MinimumOffer {
		maxOffer = event.MinimumOffer
	}

	rounds := event.RoundsAllowed
	if rounds < 1 {
		rounds = 1
	}

	// Step the offer from the minimum toward the cap across the allowed
	// rounds. The final round offers the cap itself.
	var result *gameapi.NegotiationResult
	for round := 1; round <= rounds; round++ {
		offer := event.MinimumOffer
		if rounds > 1 {
			offer += (maxOffer - event.MinimumOffer) * float64(round-1) / float64(rounds-1)
		}

		result, err = env.Client.NegotiateRansom(ctx, event.ID, offer)
		if err != nil {
			return nil, err
		}
		if result.Accepted {
			break
		}
	}

	if !result.Accepted {
		return &Outcome{
			Status: logbook.StatusWarning,
			Summary: fmt.Sprintf("pirates rejected all offers up to $%.2f for vessel %s, demand stands at $%.2f",
				maxOffer, event.VesselID, event.DemandedCash),
			Details: map[string]any{
				"event_id":  event.ID,
				"vessel_id": event.VesselID,
				"demanded":  event.DemandedCash,
				"max_offer": maxOffer,
			},
		}, nil
	}

	env.Events.Send(env.Account.ID(), hub.EventRansomNegotiated, result)

	saved := event.DemandedCash - result.FinalCash
	return &Outcome{
		Summary: fmt.Sprintf("settled ransom for vessel %s at $%.2f, saved $%.2f over %d round(s)",
			event.VesselID, result.FinalCash, saved, result.Rounds),
		Details: map[string]any{
			"event_id":   event.ID,
			"vessel_id":  event.VesselID,
			"demanded":   event.DemandedCash,
			"final_cash": result.FinalCash,
			"saved":      saved,
			"rounds":     result.Rounds,
		},
	}, nil
}
