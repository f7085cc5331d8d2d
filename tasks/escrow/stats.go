package escrow

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/model"
	escrowmodel "github.com/subscription-escrow/escrowdex/model/escrow"
)

// updateStats applies fn to the global statistics and the daily metric for the day containing ts.
func updateStats(ctx context.Context, tx model.EntityTx, ts int64, fn func(g *escrowmodel.GlobalStats, d *escrowmodel.DailyMetric)) error {
	g := &escrowmodel.GlobalStats{}
	found, err := tx.Load(ctx, g, escrowmodel.GlobalStatsID)
	if err != nil {
		return xerrors.Errorf("load global stats: %w", err)
	}
	if !found {
		g = newGlobalStats()
	}

	dayID, dayStart := escrowmodel.DayID(ts)
	d := &escrowmodel.DailyMetric{}
	found, err = tx.Load(ctx, d, dayID)
	if err != nil {
		return xerrors.Errorf("load daily metric: %w", err)
	}
	if !found {
		d = newDailyMetric(dayID, dayStart)
	}

	fn(g, d)
	g.LastUpdatedAt = ts

	if err := tx.Save(ctx, g); err != nil {
		return xerrors.Errorf("save global stats: %w", err)
	}
	if err := tx.Save(ctx, d); err != nil {
		return xerrors.Errorf("save daily metric: %w", err)
	}
	return nil
}

func newGlobalStats() *escrowmodel.GlobalStats {
	return &escrowmodel.GlobalStats{
		ID:            escrowmodel.GlobalStatsID,
		TotalVolume:   escrowmodel.ZeroDecimal(),
		TotalEarnings: escrowmodel.ZeroDecimal(),
		TotalEscrowed: escrowmodel.ZeroDecimal(),
	}
}

func newDailyMetric(id string, dayStart int64) *escrowmodel.DailyMetric {
	return &escrowmodel.DailyMetric{
		ID:       id,
		Date:     dayStart,
		Volume:   escrowmodel.ZeroDecimal(),
		Earnings: escrowmodel.ZeroDecimal(),
	}
}
