package escrow

import (
	"context"

	"go.opencensus.io/tag"

	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
)

type EscrowDeposit struct {
	tableName struct{} `pg:"escrow_deposits"` // nolint: structcheck

	// Transaction hash and log index joined by a dash.
	ID              string  `pg:",pk,notnull"`
	User            string  `pg:",notnull"`
	Amount          Decimal `pg:",type:numeric,notnull,use_zero"`
	NewBalance      Decimal `pg:",type:numeric,notnull,use_zero"`
	BlockNumber     int64   `pg:",notnull,use_zero"`
	BlockTimestamp  int64   `pg:",notnull,use_zero"`
	TransactionHash string  `pg:",notnull"`
}

func (e *EscrowDeposit) EntityID() string {
	return e.ID
}

func (e *EscrowDeposit) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "escrow_deposits"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, e)
}

type EscrowDepositList []*EscrowDeposit

func (el EscrowDepositList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(el) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "escrow_deposits"))
	metrics.RecordCount(ctx, metrics.PersistModel, len(el))
	return s.PersistModel(ctx, el)
}

type EscrowWithdrawal struct {
	tableName struct{} `pg:"escrow_withdrawals"` // nolint: structcheck

	// Transaction hash and log index joined by a dash.
	ID              string  `pg:",pk,notnull"`
	User            string  `pg:",notnull"`
	Amount          Decimal `pg:",type:numeric,notnull,use_zero"`
	NewBalance      Decimal `pg:",type:numeric,notnull,use_zero"`
	BlockNumber     int64   `pg:",notnull,use_zero"`
	BlockTimestamp  int64   `pg:",notnull,use_zero"`
	TransactionHash string  `pg:",notnull"`
}

func (e *EscrowWithdrawal) EntityID() string {
	return e.ID
}

func (e *EscrowWithdrawal) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "escrow_withdrawals"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, e)
}

type EscrowWithdrawalList []*EscrowWithdrawal

func (el EscrowWithdrawalList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(el) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "escrow_withdrawals"))
	metrics.RecordCount(ctx, metrics.PersistModel, len(el))
	return s.PersistModel(ctx, el)
}

// EscrowAccount tracks the escrowed balance of a single user.
type EscrowAccount struct {
	tableName struct{} `pg:"escrow_accounts"` // nolint: structcheck

	// Lowercase hex address of the user.
	ID string `pg:",pk,notnull"`
	// Balance reported by the most recent deposit or withdrawal event.
	Balance         Decimal `pg:",type:numeric,notnull,use_zero"`
	TotalDeposited  Decimal `pg:",type:numeric,notnull,use_zero"`
	TotalWithdrawn  Decimal `pg:",type:numeric,notnull,use_zero"`
	DepositCount    int64   `pg:",notnull,use_zero"`
	WithdrawalCount int64   `pg:",notnull,use_zero"`
	LastActivityAt  int64   `pg:",notnull,use_zero"`
}

func (e *EscrowAccount) EntityID() string {
	return e.ID
}

func (e *EscrowAccount) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "escrow_accounts"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, e)
}

type EscrowAccountList []*EscrowAccount

func (el EscrowAccountList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(el) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "escrow_accounts"))
	metrics.RecordCount(ctx, metrics.PersistModel, len(el))
	return s.PersistModel(ctx, el)
}
