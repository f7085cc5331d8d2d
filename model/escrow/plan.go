package escrow

import (
	"context"

	"go.opencensus.io/tag"

	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
)

type Plan struct {
	tableName struct{} `pg:"plans"` // nolint: structcheck

	// Decimal form of the on-chain plan id.
	ID     string `pg:",pk,notnull"`
	PlanID string `pg:",notnull"`
	// ID of the Provider offering the plan.
	Provider string `pg:",notnull"`
	// Price per interval in whole tokens.
	Price Decimal `pg:",type:numeric,notnull,use_zero"`
	// Billing interval in seconds.
	Interval  int64 `pg:",notnull,use_zero"`
	CreatedAt int64 `pg:",notnull,use_zero"`

	TotalSubscriptions    int64   `pg:",notnull,use_zero"`
	ActiveSubscriptions   int64   `pg:",notnull,use_zero"`
	TotalRevenue          Decimal `pg:",type:numeric,notnull,use_zero"`
	SubscriptionRate      Decimal `pg:",type:numeric,notnull,use_zero"`
	AvgSubscriptionLength int64   `pg:",notnull,use_zero"`
	ChurnRate             Decimal `pg:",type:numeric,notnull,use_zero"`
	IsPopular             bool    `pg:",notnull,use_zero"`
}

func (p *Plan) EntityID() string {
	return p.ID
}

func (p *Plan) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "plans"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, p)
}

type PlanList []*Plan

func (pl PlanList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(pl) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "plans"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	metrics.RecordCount(ctx, metrics.PersistModel, len(pl))
	return s.PersistModel(ctx, pl)
}
