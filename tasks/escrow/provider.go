package escrow

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/events"
	"github.com/subscription-escrow/escrowdex/model"
	escrowmodel "github.com/subscription-escrow/escrowdex/model/escrow"
)

// HandleProviderRegistered creates a Provider. A provider that is already registered is left untouched.
func HandleProviderRegistered(ctx context.Context, tx model.EntityTx, ev events.Event, r *Report) error {
	e := ev.(*events.ProviderRegistered)
	id := events.AddressID(e.Provider)
	ts := e.Timestamp()

	existing := &escrowmodel.Provider{}
	found, err := tx.Load(ctx, existing, id)
	if err != nil {
		return xerrors.Errorf("load provider: %w", err)
	}
	if found {
		log.Warnw("provider registered twice, keeping original registration", "provider", id, "block", e.BlockNumber)
		r.Infof("provider %s already registered at %d", id, existing.RegisteredAt)
		return nil
	}

	p := &escrowmodel.Provider{
		ID:                        id,
		Address:                   id,
		Name:                      sanitizeName(e.Name),
		RegisteredAt:              ts,
		TotalRevenue:              escrowmodel.ZeroDecimal(),
		TotalEarnings:             escrowmodel.ZeroDecimal(),
		LastActivityAt:            ts,
		IsActive:                  true,
		MonthlyRevenue:            escrowmodel.ZeroDecimal(),
		WeeklyRevenue:             escrowmodel.ZeroDecimal(),
		AvgRevenuePerSubscription: escrowmodel.ZeroDecimal(),
	}
	if err := tx.Save(ctx, p); err != nil {
		return xerrors.Errorf("save provider: %w", err)
	}

	return updateStats(ctx, tx, ts, func(g *escrowmodel.GlobalStats, d *escrowmodel.DailyMetric) {
		g.TotalProviders++
		d.NewProviders++
	})
}

// refreshAverages recomputes the per subscription revenue of a provider.
func refreshAverages(p *escrowmodel.Provider) {
	p.AvgRevenuePerSubscription = p.TotalRevenue.QuoInt64(p.TotalSubscriptions)
}
