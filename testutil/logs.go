package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/subscription-escrow/escrowdex/chain/events"
)

// ContractAddress is the escrow contract address used throughout tests.
var ContractAddress = common.HexToAddress("0x00000000000000000000000000000000000e5c70")

// LogPosition places a fake log within the chain.
type LogPosition struct {
	Block    uint64
	TxHash   common.Hash
	LogIndex uint
}

// Pos is a shorthand for building a LogPosition with a transaction hash derived from the block and log index.
func Pos(block uint64, logIndex uint) LogPosition {
	return LogPosition{
		Block:    block,
		TxHash:   common.BigToHash(new(big.Int).SetUint64(block*1_000_000 + uint64(logIndex))),
		LogIndex: logIndex,
	}
}

// EncodeLog builds a contract log for the named event with the given argument values, in ABI input order.
func EncodeLog(tb testing.TB, kind events.Kind, pos LogPosition, args ...interface{}) types.Log {
	tb.Helper()

	ev, ok := events.ContractABI.Events[string(kind)]
	require.True(tb, ok, "unknown event %s", kind)
	require.Len(tb, args, len(ev.Inputs), "argument count for %s", kind)

	topics := []common.Hash{ev.ID}
	var data []interface{}
	for i, in := range ev.Inputs {
		if !in.Indexed {
			data = append(data, args[i])
			continue
		}
		hashes, err := abi.MakeTopics([]interface{}{args[i]})
		require.NoError(tb, err, "make topic for %s.%s", kind, in.Name)
		topics = append(topics, hashes[0][0])
	}

	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(tb, err, "pack data for %s", kind)

	return types.Log{
		Address:     ContractAddress,
		Topics:      topics,
		Data:        packed,
		BlockNumber: pos.Block,
		TxHash:      pos.TxHash,
		Index:       pos.LogIndex,
	}
}

func ProviderRegisteredLog(tb testing.TB, pos LogPosition, provider common.Address, name string) types.Log {
	return EncodeLog(tb, events.ProviderRegisteredKind, pos, provider, name)
}

func PlanCreatedLog(tb testing.TB, pos LogPosition, planID int64, provider common.Address, price *big.Int, interval int64) types.Log {
	return EncodeLog(tb, events.PlanCreatedKind, pos, big.NewInt(planID), provider, price, big.NewInt(interval))
}

func SubscriptionCreatedLog(tb testing.TB, pos LogPosition, subID int64, user common.Address, planID int64) types.Log {
	return EncodeLog(tb, events.SubscriptionCreatedKind, pos, big.NewInt(subID), user, big.NewInt(planID))
}

func PaymentProcessedLog(tb testing.TB, pos LogPosition, from, to common.Address, amount *big.Int, subID int64) types.Log {
	return EncodeLog(tb, events.PaymentProcessedKind, pos, from, to, amount, big.NewInt(subID))
}

func ProviderEarningsLog(tb testing.TB, pos LogPosition, provider common.Address, planID int64, amount *big.Int) types.Log {
	return EncodeLog(tb, events.ProviderEarningsKind, pos, provider, big.NewInt(planID), amount)
}

// Wei returns n * 10^18, i.e. n whole tokens in fixed-point form.
func Wei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}
