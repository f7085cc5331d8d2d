package escrow

import (
	"context"

	"go.opencensus.io/tag"

	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
)

// Payment is an immutable record of a single PaymentProcessed event.
type Payment struct {
	tableName struct{} `pg:"payments"` // nolint: structcheck

	// Transaction hash and log index joined by a dash.
	ID string `pg:",pk,notnull"`
	// ID of the UserSubscription paid for.
	Subscription string `pg:",notnull"`
	// Lowercase hex address of the payer.
	From string `pg:",notnull"`
	// Lowercase hex address of the payee.
	To              string  `pg:",notnull"`
	Amount          Decimal `pg:",type:numeric,notnull,use_zero"`
	Timestamp       int64   `pg:",notnull,use_zero"`
	TransactionHash string  `pg:",notnull"`
	BlockNumber     int64   `pg:",notnull,use_zero"`
	// True when this is not the first payment recorded against the subscription.
	IsRecurring bool `pg:",notnull,use_zero"`
	// One-based position of this payment in the subscription's payment history.
	PaymentIndex   int64   `pg:",notnull,use_zero"`
	ProtocolFee    Decimal `pg:",type:numeric,notnull,use_zero"`
	ProviderAmount Decimal `pg:",type:numeric,notnull,use_zero"`
}

func (p *Payment) EntityID() string {
	return p.ID
}

func (p *Payment) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "payments"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, p)
}

type PaymentList []*Payment

func (pl PaymentList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(pl) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "payments"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	metrics.RecordCount(ctx, metrics.PersistModel, len(pl))
	return s.PersistModel(ctx, pl)
}
