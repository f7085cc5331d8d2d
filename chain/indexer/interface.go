package indexer

import (
	"context"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/lens/evm"
	"github.com/subscription-escrow/escrowdex/model"
)

// A Source supplies contract logs in chain order.
type Source interface {
	Head(ctx context.Context) (uint64, error)
	Logs(ctx context.Context, from, to uint64) ([]evm.Log, error)
}

// Option specifies the indexing behavior.
type Option interface {
	// String returns a string representation of the option.
	String() string

	// Type describes the type of the option.
	Type() OptionType

	// Value returns a value used to create this option.
	Value() interface{}
}

type OptionType int

const (
	IndexTypeOpt OptionType = iota
	ReporterOpt
	StartBlockOpt
	ReportStorageOpt
)

type (
	indexTypeOption     int
	reporterOption      string
	startBlockOption    uint64
	reportStorageOption struct{ s model.Storage }
)

type IndexerType int

func (i IndexerType) String() string {
	switch i {
	case Undefined:
		return "undefined"
	case Watch:
		return "watch"
	case Walk:
		return "walk"
	default:
		panic(fmt.Sprintf("developer error unknown indexer type: %d", i))
	}
}

const (
	Undefined IndexerType = iota
	Watch
	Walk
)

func WithIndexerType(it IndexerType) Option {
	return indexTypeOption(it)
}

func (o indexTypeOption) String() string     { return fmt.Sprintf("IndexerType(%d)", o) }
func (o indexTypeOption) Type() OptionType   { return IndexTypeOpt }
func (o indexTypeOption) Value() interface{} { return IndexerType(o) }

// WithReporter sets the name recorded as the reporter of processing reports.
func WithReporter(name string) Option {
	return reporterOption(name)
}

func (o reporterOption) String() string     { return fmt.Sprintf("Reporter(%s)", string(o)) }
func (o reporterOption) Type() OptionType   { return ReporterOpt }
func (o reporterOption) Value() interface{} { return string(o) }

// WithStartBlock sets the block indexing starts from when no cursor has been saved.
func WithStartBlock(b uint64) Option {
	return startBlockOption(b)
}

func (o startBlockOption) String() string     { return fmt.Sprintf("StartBlock(%d)", uint64(o)) }
func (o startBlockOption) Type() OptionType   { return StartBlockOpt }
func (o startBlockOption) Value() interface{} { return uint64(o) }

// WithReportStorage sets where processing reports are written.
func WithReportStorage(s model.Storage) Option {
	return reportStorageOption{s: s}
}

func (o reportStorageOption) String() string     { return fmt.Sprintf("ReportStorage(%T)", o.s) }
func (o reportStorageOption) Type() OptionType   { return ReportStorageOpt }
func (o reportStorageOption) Value() interface{} { return o.s }

type IndexerOptions struct {
	IndexType     IndexerType
	Reporter      string
	StartBlock    uint64
	ReportStorage model.Storage
}

func ConstructOptions(opts ...Option) (IndexerOptions, error) {
	res := IndexerOptions{
		IndexType: Undefined,
		Reporter:  "escrowdex",
	}

	for _, opt := range opts {
		switch o := opt.(type) {
		case indexTypeOption:
			res.IndexType = IndexerType(o)
		case reporterOption:
			if o == "" {
				return IndexerOptions{}, xerrors.Errorf("reporter name cannot be empty")
			}
			res.Reporter = string(o)
		case startBlockOption:
			res.StartBlock = uint64(o)
		case reportStorageOption:
			res.ReportStorage = o.s
		default:
		}
	}
	return res, nil
}

// A RangeIndexer applies the contract events in a range of blocks.
type RangeIndexer interface {
	Head(ctx context.Context) (uint64, error)
	Resume(ctx context.Context) (uint64, error)
	IndexRange(ctx context.Context, from, to uint64) error
}

var _ RangeIndexer = (*Indexer)(nil)
