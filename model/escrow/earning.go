package escrow

import (
	"context"

	"go.opencensus.io/tag"

	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
)

const EarningTypeRecurringPayment = "RECURRING_PAYMENT"

// ProviderEarning is an immutable record of a single ProviderEarnings event.
type ProviderEarning struct {
	tableName struct{} `pg:"provider_earnings"` // nolint: structcheck

	// Provider address, plan id and transaction hash joined by dashes.
	ID              string  `pg:",pk,notnull"`
	Provider        string  `pg:",notnull"`
	Plan            string  `pg:",notnull"`
	Amount          Decimal `pg:",type:numeric,notnull,use_zero"`
	Timestamp       int64   `pg:",notnull,use_zero"`
	TransactionHash string  `pg:",notnull"`
	BlockNumber     int64   `pg:",notnull,use_zero"`
	// Provider's total earnings including this event.
	CumulativeEarnings Decimal `pg:",type:numeric,notnull,use_zero"`
	EarningType        string  `pg:",notnull"`
}

func (p *ProviderEarning) EntityID() string {
	return p.ID
}

func (p *ProviderEarning) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "provider_earnings"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, p)
}

type ProviderEarningList []*ProviderEarning

func (pl ProviderEarningList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(pl) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "provider_earnings"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	metrics.RecordCount(ctx, metrics.PersistModel, len(pl))
	return s.PersistModel(ctx, pl)
}
