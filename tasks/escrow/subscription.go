package escrow

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/events"
	"github.com/subscription-escrow/escrowdex/model"
	escrowmodel "github.com/subscription-escrow/escrowdex/model/escrow"
)

// HandleSubscriptionCreated creates an active UserSubscription and counts it against its plan and provider.
func HandleSubscriptionCreated(ctx context.Context, tx model.EntityTx, ev events.Event, r *Report) error {
	e := ev.(*events.SubscriptionCreated)
	id := events.NumberID(e.SubscriptionID)
	planID := events.NumberID(e.PlanID)
	ts := e.Timestamp()

	existing := &escrowmodel.UserSubscription{}
	found, err := tx.Load(ctx, existing, id)
	if err != nil {
		return xerrors.Errorf("load subscription: %w", err)
	}
	if found {
		log.Warnw("subscription created twice, keeping original", "subscription", id, "block", e.BlockNumber)
		r.Infof("subscription %s already exists", id)
		return nil
	}

	sub := &escrowmodel.UserSubscription{
		ID:               id,
		SubscriptionID:   id,
		Plan:             planID,
		Subscriber:       events.AddressID(e.User),
		CreatedAt:        ts,
		IsActive:         true,
		LastPaymentAt:    ts,
		NextPaymentDue:   ts + escrowmodel.GracePeriod,
		TotalPaid:        escrowmodel.ZeroDecimal(),
		AvgPaymentAmount: escrowmodel.ZeroDecimal(),
		Status:           escrowmodel.SubscriptionStatusActive,
	}
	if err := tx.Save(ctx, sub); err != nil {
		return xerrors.Errorf("save subscription: %w", err)
	}

	plan := &escrowmodel.Plan{}
	found, err = tx.Load(ctx, plan, planID)
	if err != nil {
		return xerrors.Errorf("load plan: %w", err)
	}
	if found {
		plan.TotalSubscriptions++
		plan.ActiveSubscriptions++
		if err := tx.Save(ctx, plan); err != nil {
			return xerrors.Errorf("save plan: %w", err)
		}

		provider := &escrowmodel.Provider{}
		found, err = tx.Load(ctx, provider, plan.Provider)
		if err != nil {
			return xerrors.Errorf("load provider: %w", err)
		}
		if found {
			provider.TotalSubscriptions++
			provider.LastActivityAt = ts
			refreshAverages(provider)
			if err := tx.Save(ctx, provider); err != nil {
				return xerrors.Errorf("save provider: %w", err)
			}
		} else {
			missing(ctx, r, ev, "provider", plan.Provider)
		}
	} else {
		missing(ctx, r, ev, "plan", planID)
	}

	return updateStats(ctx, tx, ts, func(g *escrowmodel.GlobalStats, d *escrowmodel.DailyMetric) {
		g.TotalSubscriptions++
		d.NewSubscriptions++
	})
}
