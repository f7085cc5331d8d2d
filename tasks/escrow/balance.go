package escrow

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/events"
	"github.com/subscription-escrow/escrowdex/model"
	escrowmodel "github.com/subscription-escrow/escrowdex/model/escrow"
)

// HandleEscrowDeposit records a deposit and updates the depositor's account.
func HandleEscrowDeposit(ctx context.Context, tx model.EntityTx, ev events.Event, r *Report) error {
	e := ev.(*events.EscrowDeposit)
	userID := events.AddressID(e.User)
	amount := escrowmodel.FromWei(e.Amount)
	balance := escrowmodel.FromWei(e.NewBalance)
	ts := e.Timestamp()

	deposit := &escrowmodel.EscrowDeposit{
		ID:              e.LogID(),
		User:            userID,
		Amount:          amount,
		NewBalance:      balance,
		BlockNumber:     int64(e.BlockNumber),
		BlockTimestamp:  ts,
		TransactionHash: events.TxHashID(e.TxHash),
	}
	if err := tx.Save(ctx, deposit); err != nil {
		return xerrors.Errorf("save deposit: %w", err)
	}

	if !amount.IsPositive() {
		r.Infof("deposit amount %s is not positive, account not updated", amount)
		return nil
	}

	acct, err := loadAccount(ctx, tx, userID)
	if err != nil {
		return err
	}
	acct.Balance = balance
	acct.TotalDeposited = acct.TotalDeposited.Add(amount)
	acct.DepositCount++
	acct.LastActivityAt = ts
	if err := tx.Save(ctx, acct); err != nil {
		return xerrors.Errorf("save account: %w", err)
	}

	return updateStats(ctx, tx, ts, func(g *escrowmodel.GlobalStats, d *escrowmodel.DailyMetric) {
		g.TotalEscrowed = g.TotalEscrowed.Add(amount)
	})
}

// HandleEscrowWithdrawal records a withdrawal and updates the withdrawer's account.
func HandleEscrowWithdrawal(ctx context.Context, tx model.EntityTx, ev events.Event, r *Report) error {
	e := ev.(*events.EscrowWithdrawal)
	userID := events.AddressID(e.User)
	amount := escrowmodel.FromWei(e.Amount)
	balance := escrowmodel.FromWei(e.NewBalance)
	ts := e.Timestamp()

	withdrawal := &escrowmodel.EscrowWithdrawal{
		ID:              e.LogID(),
		User:            userID,
		Amount:          amount,
		NewBalance:      balance,
		BlockNumber:     int64(e.BlockNumber),
		BlockTimestamp:  ts,
		TransactionHash: events.TxHashID(e.TxHash),
	}
	if err := tx.Save(ctx, withdrawal); err != nil {
		return xerrors.Errorf("save withdrawal: %w", err)
	}

	if !amount.IsPositive() {
		r.Infof("withdrawal amount %s is not positive, account not updated", amount)
		return nil
	}

	acct, err := loadAccount(ctx, tx, userID)
	if err != nil {
		return err
	}
	acct.Balance = balance
	acct.TotalWithdrawn = acct.TotalWithdrawn.Add(amount)
	acct.WithdrawalCount++
	acct.LastActivityAt = ts
	if err := tx.Save(ctx, acct); err != nil {
		return xerrors.Errorf("save account: %w", err)
	}

	return updateStats(ctx, tx, ts, func(g *escrowmodel.GlobalStats, d *escrowmodel.DailyMetric) {
		g.TotalEscrowed = g.TotalEscrowed.Sub(amount)
	})
}

func loadAccount(ctx context.Context, tx model.EntityTx, id string) (*escrowmodel.EscrowAccount, error) {
	acct := &escrowmodel.EscrowAccount{}
	found, err := tx.Load(ctx, acct, id)
	if err != nil {
		return nil, xerrors.Errorf("load account: %w", err)
	}
	if !found {
		acct = &escrowmodel.EscrowAccount{
			ID:             id,
			Balance:        escrowmodel.ZeroDecimal(),
			TotalDeposited: escrowmodel.ZeroDecimal(),
			TotalWithdrawn: escrowmodel.ZeroDecimal(),
		}
	}
	return acct, nil
}
