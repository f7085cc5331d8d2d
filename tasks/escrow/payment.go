package escrow

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/events"
	"github.com/subscription-escrow/escrowdex/model"
	escrowmodel "github.com/subscription-escrow/escrowdex/model/escrow"
)

// HandlePaymentProcessed records a Payment and credits it to the payee and the paid subscription. A payment with a
// non-positive amount is recorded without touching any counter.
func HandlePaymentProcessed(ctx context.Context, tx model.EntityTx, ev events.Event, r *Report) error {
	e := ev.(*events.PaymentProcessed)
	subID := events.NumberID(e.SubscriptionID)
	payee := events.AddressID(e.To)
	amount := escrowmodel.FromWei(e.Amount)
	ts := e.Timestamp()

	payment := &escrowmodel.Payment{
		ID:              e.LogID(),
		Subscription:    subID,
		From:            events.AddressID(e.From),
		To:              payee,
		Amount:          amount,
		Timestamp:       ts,
		TransactionHash: events.TxHashID(e.TxHash),
		BlockNumber:     int64(e.BlockNumber),
		ProtocolFee:     escrowmodel.ZeroDecimal(),
		ProviderAmount:  amount,
	}

	if !amount.IsPositive() {
		r.Infof("payment amount %s is not positive, counters not updated", amount)
		if err := tx.Save(ctx, payment); err != nil {
			return xerrors.Errorf("save payment: %w", err)
		}
		return nil
	}

	sub := &escrowmodel.UserSubscription{}
	found, err := tx.Load(ctx, sub, subID)
	if err != nil {
		return xerrors.Errorf("load subscription: %w", err)
	}
	if found {
		nextDue, err := nextPaymentDue(ctx, tx, sub.Plan, ts)
		if err != nil {
			return err
		}

		sub.TotalPaid = sub.TotalPaid.Add(amount)
		sub.PaymentCount++
		sub.LastPaymentAt = ts
		sub.NextPaymentDue = nextDue
		sub.SubscriptionLength = ts - sub.CreatedAt
		sub.AvgPaymentAmount = sub.TotalPaid.QuoInt64(sub.PaymentCount)
		if err := tx.Save(ctx, sub); err != nil {
			return xerrors.Errorf("save subscription: %w", err)
		}

		payment.PaymentIndex = sub.PaymentCount
		payment.IsRecurring = sub.PaymentCount > 1
	} else {
		missing(ctx, r, ev, "subscription", subID)
	}

	provider := &escrowmodel.Provider{}
	found, err = tx.Load(ctx, provider, payee)
	if err != nil {
		return xerrors.Errorf("load provider: %w", err)
	}
	if found {
		provider.TotalRevenue = provider.TotalRevenue.Add(amount)
		provider.LastActivityAt = ts
		refreshAverages(provider)
		if err := tx.Save(ctx, provider); err != nil {
			return xerrors.Errorf("save provider: %w", err)
		}
	} else {
		missing(ctx, r, ev, "provider", payee)
	}

	if err := tx.Save(ctx, payment); err != nil {
		return xerrors.Errorf("save payment: %w", err)
	}

	return updateStats(ctx, tx, ts, func(g *escrowmodel.GlobalStats, d *escrowmodel.DailyMetric) {
		g.TotalPayments++
		g.TotalVolume = g.TotalVolume.Add(amount)
		d.Payments++
		d.Volume = d.Volume.Add(amount)
	})
}

// nextPaymentDue returns when the payment after one made at ts is due, using the plan's billing interval. The grace
// period applies when the plan is unknown or has no interval.
func nextPaymentDue(ctx context.Context, tx model.EntityTx, planID string, ts int64) (int64, error) {
	plan := &escrowmodel.Plan{}
	found, err := tx.Load(ctx, plan, planID)
	if err != nil {
		return 0, xerrors.Errorf("load plan: %w", err)
	}
	if !found || plan.Interval <= 0 {
		return ts + escrowmodel.GracePeriod, nil
	}
	return ts + plan.Interval, nil
}
