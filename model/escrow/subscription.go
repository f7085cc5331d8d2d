package escrow

import (
	"context"

	"go.opencensus.io/tag"

	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
)

const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusPastDue   = "PAST_DUE"
	SubscriptionStatusCancelled = "CANCELLED"
	SubscriptionStatusExpired   = "EXPIRED"
)

// GracePeriod is the number of seconds after creation before the first payment is due.
const GracePeriod int64 = 86400

type UserSubscription struct {
	tableName struct{} `pg:"user_subscriptions"` // nolint: structcheck

	// Decimal form of the on-chain subscription id.
	ID             string `pg:",pk,notnull"`
	SubscriptionID string `pg:",notnull"`
	// ID of the subscribed Plan.
	Plan string `pg:",notnull"`
	// Lowercase hex address of the subscriber.
	Subscriber string `pg:",notnull"`
	CreatedAt  int64  `pg:",notnull,use_zero"`
	IsActive   bool   `pg:",notnull,use_zero"`

	LastPaymentAt      int64   `pg:",notnull,use_zero"`
	NextPaymentDue     int64   `pg:",notnull,use_zero"`
	TotalPaid          Decimal `pg:",type:numeric,notnull,use_zero"`
	PaymentCount       int64   `pg:",notnull,use_zero"`
	SubscriptionLength int64   `pg:",notnull,use_zero"`
	AvgPaymentAmount   Decimal `pg:",type:numeric,notnull,use_zero"`
	// One of the SubscriptionStatus constants.
	Status string `pg:",notnull"`
}

func (u *UserSubscription) EntityID() string {
	return u.ID
}

func (u *UserSubscription) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "user_subscriptions"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, u)
}

type UserSubscriptionList []*UserSubscription

func (ul UserSubscriptionList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(ul) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "user_subscriptions"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	metrics.RecordCount(ctx, metrics.PersistModel, len(ul))
	return s.PersistModel(ctx, ul)
}
