package escrow

import (
	"context"
	"strconv"

	"go.opencensus.io/tag"

	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
)

// GlobalStatsID is the id of the single GlobalStats row.
const GlobalStatsID = "global"

const secondsPerDay = 86400

type GlobalStats struct {
	tableName struct{} `pg:"global_stats"` // nolint: structcheck

	ID                 string  `pg:",pk,notnull"`
	TotalProviders     int64   `pg:",notnull,use_zero"`
	TotalPlans         int64   `pg:",notnull,use_zero"`
	TotalSubscriptions int64   `pg:",notnull,use_zero"`
	TotalPayments      int64   `pg:",notnull,use_zero"`
	TotalVolume        Decimal `pg:",type:numeric,notnull,use_zero"`
	TotalEarnings      Decimal `pg:",type:numeric,notnull,use_zero"`
	TotalEscrowed      Decimal `pg:",type:numeric,notnull,use_zero"`
	LastUpdatedAt      int64   `pg:",notnull,use_zero"`
}

func (g *GlobalStats) EntityID() string {
	return g.ID
}

func (g *GlobalStats) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "global_stats"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, g)
}

type GlobalStatsList []*GlobalStats

func (gl GlobalStatsList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(gl) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "global_stats"))
	metrics.RecordCount(ctx, metrics.PersistModel, len(gl))
	return s.PersistModel(ctx, gl)
}

// DailyMetric aggregates activity over one UTC day.
type DailyMetric struct {
	tableName struct{} `pg:"daily_metrics"` // nolint: structcheck

	// Days since the unix epoch, as a decimal string.
	ID string `pg:",pk,notnull"`
	// Unix timestamp of the start of the day.
	Date             int64   `pg:",notnull,use_zero"`
	NewProviders     int64   `pg:",notnull,use_zero"`
	NewPlans         int64   `pg:",notnull,use_zero"`
	NewSubscriptions int64   `pg:",notnull,use_zero"`
	Payments         int64   `pg:",notnull,use_zero"`
	Volume           Decimal `pg:",type:numeric,notnull,use_zero"`
	Earnings         Decimal `pg:",type:numeric,notnull,use_zero"`
}

// DayID returns the DailyMetric id and day start for a block timestamp.
func DayID(timestamp int64) (string, int64) {
	day := timestamp / secondsPerDay
	return strconv.FormatInt(day, 10), day * secondsPerDay
}

func (d *DailyMetric) EntityID() string {
	return d.ID
}

func (d *DailyMetric) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "daily_metrics"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, d)
}

type DailyMetricList []*DailyMetric

func (dl DailyMetricList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(dl) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "daily_metrics"))
	metrics.RecordCount(ctx, metrics.PersistModel, len(dl))
	return s.PersistModel(ctx, dl)
}
