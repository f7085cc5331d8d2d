package escrow

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/events"
	"github.com/subscription-escrow/escrowdex/model"
	escrowmodel "github.com/subscription-escrow/escrowdex/model/escrow"
)

// EarningID returns the id of the earning paid to provider for plan in the transaction txHash.
func EarningID(provider, plan, txHash string) string {
	return provider + "-" + plan + "-" + txHash
}

// HandleProviderEarnings records a ProviderEarning and credits it to the provider and plan.
func HandleProviderEarnings(ctx context.Context, tx model.EntityTx, ev events.Event, r *Report) error {
	e := ev.(*events.ProviderEarnings)
	providerID := events.AddressID(e.Provider)
	planID := events.NumberID(e.PlanID)
	txHash := events.TxHashID(e.TxHash)
	amount := escrowmodel.FromWei(e.Amount)
	ts := e.Timestamp()

	earning := &escrowmodel.ProviderEarning{
		ID:                 EarningID(providerID, planID, txHash),
		Provider:           providerID,
		Plan:               planID,
		Amount:             amount,
		Timestamp:          ts,
		TransactionHash:    txHash,
		BlockNumber:        int64(e.BlockNumber),
		CumulativeEarnings: amount,
		EarningType:        escrowmodel.EarningTypeRecurringPayment,
	}

	if !amount.IsPositive() {
		r.Infof("earning amount %s is not positive, counters not updated", amount)
		if err := tx.Save(ctx, earning); err != nil {
			return xerrors.Errorf("save earning: %w", err)
		}
		return nil
	}

	provider := &escrowmodel.Provider{}
	found, err := tx.Load(ctx, provider, providerID)
	if err != nil {
		return xerrors.Errorf("load provider: %w", err)
	}
	if found {
		provider.TotalEarnings = provider.TotalEarnings.Add(amount)
		provider.LastActivityAt = ts
		if err := tx.Save(ctx, provider); err != nil {
			return xerrors.Errorf("save provider: %w", err)
		}
		earning.CumulativeEarnings = provider.TotalEarnings
	} else {
		missing(ctx, r, ev, "provider", providerID)
	}

	plan := &escrowmodel.Plan{}
	found, err = tx.Load(ctx, plan, planID)
	if err != nil {
		return xerrors.Errorf("load plan: %w", err)
	}
	if found {
		plan.TotalRevenue = plan.TotalRevenue.Add(amount)
		if err := tx.Save(ctx, plan); err != nil {
			return xerrors.Errorf("save plan: %w", err)
		}
	} else {
		missing(ctx, r, ev, "plan", planID)
	}

	if err := tx.Save(ctx, earning); err != nil {
		return xerrors.Errorf("save earning: %w", err)
	}

	return updateStats(ctx, tx, ts, func(g *escrowmodel.GlobalStats, d *escrowmodel.DailyMetric) {
		g.TotalEarnings = g.TotalEarnings.Add(amount)
		d.Earnings = d.Earnings.Add(amount)
	})
}
