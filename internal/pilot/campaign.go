package pilot

import (
	"context"
	"fmt"
	"time"

	"github.com/smcopilot/copilot-core/internal/cache"
	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/locks"
)

const TaskCampaignRenewal = "campaign_renewal"

// campaignRenewalWindow is how close to expiry an active campaign must be
// before it gets renewed. The renewal task runs on a multi-hour cadence,
// so the window has to cover at least one full cycle.
const campaignRenewalWindow = 4 * time.Hour

// CampaignPilot renews active advertising campaigns before they expire.
// It never activates campaigns the account has not already chosen.
type CampaignPilot struct{}

func NewCampaignPilot() *CampaignPilot { return &CampaignPilot{} }

func (p *CampaignPilot) Name() string             { return TaskCampaignRenewal }
func (p *CampaignPilot) Category() locks.Category { return locks.CategoryCampaign }

func (p *CampaignPilot) Run(ctx context.Context, env *Env) (*Outcome, error) {
	data, err := env.Cache.Get(ctx, env.Account.ID(), cache.KindCampaigns)
	if err != nil {
		return nil, err
	}
	campaigns, ok := data.([]gameapi.Campaign)
	if !ok {
		return nil, fmt.Errorf("pilot: unexpected campaigns cache type %T", data)
	}

	deadline := time.Now().UTC().Add(campaignRenewalWindow)

	var renewed []string
	var totalCost float64
	for _, c := range campaigns {
		if !c.Active || c.ExpiresAt.IsZero() || c.ExpiresAt.After(deadline) {
			continue
		}

		if err := env.Client.ActivateCampaign(ctx, c.ID); err != nil {
			if len(renewed) > 0 {
				env.Cache.Invalidate(env.Account.ID(), cache.KindCampaigns)
			}
			return nil, fmt.Errorf("campaign %d: %w", c.ID, err)
		}
		renewed = append(renewed, c.Name)
		totalCost += c.Cost
		env.Events.Send(env.Account.ID(), hub.EventCampaignRenewed, c)
	}
	if len(renewed) == 0 {
		return nil, nil
	}

	env.Cache.Invalidate(env.Account.ID(), cache.KindCampaigns)
	env.Events.Send(env.Account.ID(), hub.EventCampaignUpdate, nil)

	return &Outcome{
		Summary: fmt.Sprintf("renewed %d campaign(s) for $%.2f", len(renewed), totalCost),
		Details: map[string]any{
			"campaigns": renewed,
			"cost":      totalCost,
		},
	}, nil
}
