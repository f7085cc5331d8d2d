package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Kind names a contract event. Values match the event names in the contract ABI.
type Kind string

const (
	ProviderRegisteredKind  Kind = "ProviderRegistered"
	PlanCreatedKind         Kind = "PlanCreated"
	SubscriptionCreatedKind Kind = "SubscriptionCreated"
	PaymentProcessedKind    Kind = "PaymentProcessed"
	ProviderEarningsKind    Kind = "ProviderEarnings"
	EscrowDepositKind       Kind = "EscrowDeposit"
	EscrowWithdrawalKind    Kind = "EscrowWithdrawal"
)

// AllKinds lists every event kind the decoder understands.
var AllKinds = []Kind{
	ProviderRegisteredKind,
	PlanCreatedKind,
	SubscriptionCreatedKind,
	PaymentProcessedKind,
	ProviderEarningsKind,
	EscrowDepositKind,
	EscrowWithdrawalKind,
}

// Meta is the block and transaction context of an event.
type Meta struct {
	Contract       common.Address
	BlockNumber    uint64
	BlockTimestamp uint64
	TxHash         common.Hash
	LogIndex       uint
}

// Timestamp returns the block timestamp as unix seconds.
func (m Meta) Timestamp() int64 {
	return int64(m.BlockTimestamp)
}

// LogID identifies the log within the chain as "<txHash>-<logIndex>".
func (m Meta) LogID() string {
	return TxHashID(m.TxHash) + "-" + strconv.FormatUint(uint64(m.LogIndex), 10)
}

// Event is a decoded contract event. The concrete type is determined by Kind.
type Event interface {
	Kind() Kind
	Metadata() Meta
}

// AddressID returns the canonical entity id of an address: lowercase hex with 0x prefix.
func AddressID(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// TxHashID returns the canonical lowercase hex form of a transaction hash.
func TxHashID(h common.Hash) string {
	return strings.ToLower(h.Hex())
}

// NumberID returns the decimal string form of an on-chain integer id.
func NumberID(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

type ProviderRegistered struct {
	Meta
	Provider common.Address
	Name     string
}

func (*ProviderRegistered) Kind() Kind { return ProviderRegisteredKind }
func (e *ProviderRegistered) Metadata() Meta { return e.Meta }

type PlanCreated struct {
	Meta
	PlanID   *big.Int
	Provider common.Address
	Price    *big.Int
	Interval *big.Int
}

func (*PlanCreated) Kind() Kind { return PlanCreatedKind }
func (e *PlanCreated) Metadata() Meta { return e.Meta }

type SubscriptionCreated struct {
	Meta
	SubscriptionID *big.Int
	User           common.Address
	PlanID         *big.Int
}

func (*SubscriptionCreated) Kind() Kind { return SubscriptionCreatedKind }
func (e *SubscriptionCreated) Metadata() Meta { return e.Meta }

type PaymentProcessed struct {
	Meta
	From           common.Address
	To             common.Address
	Amount         *big.Int
	SubscriptionID *big.Int
}

func (*PaymentProcessed) Kind() Kind { return PaymentProcessedKind }
func (e *PaymentProcessed) Metadata() Meta { return e.Meta }

type ProviderEarnings struct {
	Meta
	Provider common.Address
	PlanID   *big.Int
	Amount   *big.Int
}

func (*ProviderEarnings) Kind() Kind { return ProviderEarningsKind }
func (e *ProviderEarnings) Metadata() Meta { return e.Meta }

type EscrowDeposit struct {
	Meta
	User       common.Address
	Amount     *big.Int
	NewBalance *big.Int
}

func (*EscrowDeposit) Kind() Kind { return EscrowDepositKind }
func (e *EscrowDeposit) Metadata() Meta { return e.Meta }

type EscrowWithdrawal struct {
	Meta
	User       common.Address
	Amount     *big.Int
	NewBalance *big.Int
}

func (*EscrowWithdrawal) Kind() Kind { return EscrowWithdrawalKind }
func (e *EscrowWithdrawal) Metadata() Meta { return e.Meta }
