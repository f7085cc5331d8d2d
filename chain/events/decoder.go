package events

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/xerrors"
)

var (
	// ErrUnknownEvent is returned for logs whose first topic is not an event of the contract.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformedEvent is returned for logs whose topics or data do not match the event signature.
	ErrMalformedEvent = errors.New("malformed event")
)

// A Decoder turns raw contract logs into typed events using the contract ABI.
type Decoder struct {
	abi abi.ABI
}

func NewDecoder() *Decoder {
	return &Decoder{abi: ContractABI}
}

// Topics returns the signature hashes of every known event, suitable for use as topic 0 of a log filter.
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(AllKinds))
	for _, k := range AllKinds {
		out = append(out, d.abi.Events[string(k)].ID)
	}
	return out
}

// Decode decodes lg, which was included in a block with the given timestamp.
func (d *Decoder) Decode(lg types.Log, blockTime uint64) (Event, error) {
	if len(lg.Topics) == 0 {
		return nil, xerrors.Errorf("log %d in tx %s has no topics: %w", lg.Index, lg.TxHash.Hex(), ErrUnknownEvent)
	}

	ev, err := d.abi.EventByID(lg.Topics[0])
	if err != nil {
		return nil, xerrors.Errorf("topic %s: %w", lg.Topics[0].Hex(), ErrUnknownEvent)
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(lg.Topics)-1 != len(indexed) {
		return nil, xerrors.Errorf("%s: expected %d indexed topics, got %d: %w", ev.Name, len(indexed), len(lg.Topics)-1, ErrMalformedEvent)
	}

	fields := map[string]interface{}{}
	if err := d.abi.UnpackIntoMap(fields, ev.Name, lg.Data); err != nil {
		return nil, xerrors.Errorf("%s: unpack data: %v: %w", ev.Name, err, ErrMalformedEvent)
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
		return nil, xerrors.Errorf("%s: parse topics: %v: %w", ev.Name, err, ErrMalformedEvent)
	}

	meta := Meta{
		Contract:       lg.Address,
		BlockNumber:    lg.BlockNumber,
		BlockTimestamp: blockTime,
		TxHash:         lg.TxHash,
		LogIndex:       lg.Index,
	}
	r := &fieldReader{event: ev.Name, fields: fields}

	var out Event
	switch Kind(ev.Name) {
	case ProviderRegisteredKind:
		out = &ProviderRegistered{
			Meta:     meta,
			Provider: r.address("provider"),
			Name:     r.str("name"),
		}
	case PlanCreatedKind:
		out = &PlanCreated{
			Meta:     meta,
			PlanID:   r.bigInt("planId"),
			Provider: r.address("provider"),
			Price:    r.bigInt("price"),
			Interval: r.bigInt("interval"),
		}
	case SubscriptionCreatedKind:
		out = &SubscriptionCreated{
			Meta:           meta,
			SubscriptionID: r.bigInt("subscriptionId"),
			User:           r.address("user"),
			PlanID:         r.bigInt("planId"),
		}
	case PaymentProcessedKind:
		out = &PaymentProcessed{
			Meta:           meta,
			From:           r.address("from"),
			To:             r.address("to"),
			Amount:         r.bigInt("amount"),
			SubscriptionID: r.bigInt("subscriptionId"),
		}
	case ProviderEarningsKind:
		out = &ProviderEarnings{
			Meta:     meta,
			Provider: r.address("provider"),
			PlanID:   r.bigInt("planId"),
			Amount:   r.bigInt("amount"),
		}
	case EscrowDepositKind:
		out = &EscrowDeposit{
			Meta:       meta,
			User:       r.address("user"),
			Amount:     r.bigInt("amount"),
			NewBalance: r.bigInt("newBalance"),
		}
	case EscrowWithdrawalKind:
		out = &EscrowWithdrawal{
			Meta:       meta,
			User:       r.address("user"),
			Amount:     r.bigInt("amount"),
			NewBalance: r.bigInt("newBalance"),
		}
	default:
		return nil, xerrors.Errorf("no decoder for %s: %w", ev.Name, ErrUnknownEvent)
	}

	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

// fieldReader extracts typed values from an unpacked ABI map, remembering the first failure.
type fieldReader struct {
	event  string
	fields map[string]interface{}
	err    error
}

func (r *fieldReader) fail(key, want string) {
	if r.err == nil {
		r.err = xerrors.Errorf("%s: field %q missing or not %s: %w", r.event, key, want, ErrMalformedEvent)
	}
}

func (r *fieldReader) address(key string) common.Address {
	v, ok := r.fields[key].(common.Address)
	if !ok {
		r.fail(key, "an address")
	}
	return v
}

func (r *fieldReader) bigInt(key string) *big.Int {
	v, ok := r.fields[key].(*big.Int)
	if !ok || v == nil {
		r.fail(key, "an integer")
		return new(big.Int)
	}
	return v
}

func (r *fieldReader) str(key string) string {
	v, ok := r.fields[key].(string)
	if !ok {
		r.fail(key, "a string")
	}
	return v
}
