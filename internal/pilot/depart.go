package pilot

import (
	"context"
	"fmt"

	"github.com/smcopilot/copilot-core/internal/cache"
	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/logbook"
)

const TaskDepart = "depart"

// DepartPilot sends every ready vessel on its pending route.
type DepartPilot struct{}

func NewDepartPilot() *DepartPilot { return &DepartPilot{} }

func (p *DepartPilot) Name() string             { return TaskDepart }
func (p *DepartPilot) Category() locks.Category { return locks.CategoryDepart }

func (p *DepartPilot) Run(ctx context.Context, env *Env) (*Outcome, error) {
	fleet, err := fetchVessels(ctx, env)
	if err != nil {
		return nil, err
	}

	ready := make([]gameapi.Vessel, 0, len(fleet))
	for _, v := range fleet {
		if v.ReadyToDepart {
			ready = append(ready, v)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}

	blockOnAnomaly := env.Account.Settings().DepartBlockOnFeeAnomaly

	var departed, blocked, anomalies int
	var totalIncome, totalFees float64
	details := make([]map[string]any, 0, len(ready))

	for _, v := range ready {
		if blockOnAnomaly && v.Fee > v.Income {
			blocked++
			env.Logger.Warn("departure blocked, fee exceeds income",
				"vessel_id", v.ID, "fee", v.Fee, "income", v.Income)
			details = append(details, map[string]any{
				"vessel_id": v.ID, "blocked": true, "fee": v.Fee, "income": v.Income,
			})
			continue
		}

		result, err := env.Client.DepartVessel(ctx, v.ID)
		if err != nil {
			// Departures already made are real. Invalidate so nobody
			// reads the stale fleet, then surface the failure.
			if departed > 0 {
				env.Cache.Invalidate(env.Account.ID(), cache.KindVessels)
			}
			return nil, fmt.Errorf("vessel %s: %w", v.ID, err)
		}

		departed++
		totalIncome += result.Income
		totalFees += result.Fee
		if result.FeeAnomaly {
			anomalies++
		}
		details = append(details, map[string]any{
			"vessel_id": v.ID, "income": result.Income, "fee": result.Fee,
			"fee_anomaly": result.FeeAnomaly,
		})
		env.Events.Send(env.Account.ID(), hub.EventVesselDeparted, result)
	}

	if departed > 0 {
		env.Cache.Invalidate(env.Account.ID(), cache.KindVessels)
		env.Events.Send(env.Account.ID(), hub.EventDepartureSummary, map[string]any{
			"departed": departed,
			"income":   totalIncome,
			"fees":     totalFees,
		})
		env.Events.Send(env.Account.ID(), hub.EventFleetUpdate, nil)
	}

	status := logbook.StatusSuccess
	if anomalies > 0 {
		status = logbook.StatusWarning
	}
	summary := fmt.Sprintf("departed %d vessel(s), income $%.2f, fees $%.2f", departed, totalIncome, totalFees)
	if blocked > 0 {
		summary += fmt.Sprintf(", %d blocked on fee anomaly", blocked)
	}

	return &Outcome{
		Status:  status,
		Summary: summary,
		Details: map[string]any{"vessels": details},
	}, nil
}

// fetchVessels reads the fleet through the cache; the registered loader
// hits upstream only on a miss.
func fetchVessels(ctx context.Context, env *Env) ([]gameapi.Vessel, error) {
	data, err := env.Cache.Get(ctx, env.Account.ID(), cache.KindVessels)
	if err != nil {
		return nil, err
	}
	fleet, ok := data.([]gameapi.Vessel)
	if !ok {
		return nil, fmt.Errorf("pilot: unexpected vessels cache type %T", data)
	}
	return fleet, nil
}
