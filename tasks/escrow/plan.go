package escrow

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/events"
	"github.com/subscription-escrow/escrowdex/model"
	escrowmodel "github.com/subscription-escrow/escrowdex/model/escrow"
)

// HandlePlanCreated creates a Plan and counts it against its provider.
func HandlePlanCreated(ctx context.Context, tx model.EntityTx, ev events.Event, r *Report) error {
	e := ev.(*events.PlanCreated)
	id := events.NumberID(e.PlanID)
	providerID := events.AddressID(e.Provider)
	ts := e.Timestamp()

	existing := &escrowmodel.Plan{}
	found, err := tx.Load(ctx, existing, id)
	if err != nil {
		return xerrors.Errorf("load plan: %w", err)
	}
	if found {
		log.Warnw("plan created twice, keeping original", "plan", id, "block", e.BlockNumber)
		r.Infof("plan %s already exists", id)
		return nil
	}

	var interval int64
	if e.Interval.IsInt64() {
		interval = e.Interval.Int64()
	} else {
		r.Infof("plan %s interval %s out of range", id, e.Interval)
	}

	plan := &escrowmodel.Plan{
		ID:               id,
		PlanID:           id,
		Provider:         providerID,
		Price:            escrowmodel.FromWei(e.Price),
		Interval:         interval,
		CreatedAt:        ts,
		TotalRevenue:     escrowmodel.ZeroDecimal(),
		SubscriptionRate: escrowmodel.ZeroDecimal(),
		ChurnRate:        escrowmodel.ZeroDecimal(),
	}
	if err := tx.Save(ctx, plan); err != nil {
		return xerrors.Errorf("save plan: %w", err)
	}

	provider := &escrowmodel.Provider{}
	found, err = tx.Load(ctx, provider, providerID)
	if err != nil {
		return xerrors.Errorf("load provider: %w", err)
	}
	if found {
		provider.TotalPlans++
		provider.LastActivityAt = ts
		if err := tx.Save(ctx, provider); err != nil {
			return xerrors.Errorf("save provider: %w", err)
		}
	} else {
		missing(ctx, r, ev, "provider", providerID)
	}

	return updateStats(ctx, tx, ts, func(g *escrowmodel.GlobalStats, d *escrowmodel.DailyMetric) {
		g.TotalPlans++
		d.NewPlans++
	})
}
