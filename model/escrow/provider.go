package escrow

import (
	"context"

	"go.opencensus.io/tag"

	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
)

type Provider struct {
	tableName struct{} `pg:"providers"` // nolint: structcheck

	// Lowercase hex address of the provider.
	ID      string `pg:",pk,notnull"`
	Address string `pg:",notnull"`
	// Display name given at registration.
	Name         string `pg:",notnull"`
	RegisteredAt int64  `pg:",notnull,use_zero"`

	TotalPlans         int64   `pg:",notnull,use_zero"`
	TotalSubscriptions int64   `pg:",notnull,use_zero"`
	TotalRevenue       Decimal `pg:",type:numeric,notnull,use_zero"`
	TotalEarnings      Decimal `pg:",type:numeric,notnull,use_zero"`
	LastActivityAt     int64   `pg:",notnull,use_zero"`
	IsActive           bool    `pg:",notnull,use_zero"`

	MonthlyRevenue            Decimal `pg:",type:numeric,notnull,use_zero"`
	WeeklyRevenue             Decimal `pg:",type:numeric,notnull,use_zero"`
	AvgRevenuePerSubscription Decimal `pg:",type:numeric,notnull,use_zero"`
}

func (p *Provider) EntityID() string {
	return p.ID
}

func (p *Provider) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "providers"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, p)
}

type ProviderList []*Provider

func (pl ProviderList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(pl) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "providers"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	metrics.RecordCount(ctx, metrics.PersistModel, len(pl))
	return s.PersistModel(ctx, pl)
}
