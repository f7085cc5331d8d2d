package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/events"
	"github.com/subscription-escrow/escrowdex/lens/evm"
	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
	visormodel "github.com/subscription-escrow/escrowdex/model/visor"
	"github.com/subscription-escrow/escrowdex/tasks/escrow"
)

var log = logging.Logger("escrowdex/chain/indexer")

// An EventError is recorded in the ErrorsDetected column of a processing report.
type EventError struct {
	Error string `json:"error"`
	Stack string `json:"stack,omitempty"`
}

// An Indexer applies contract events to an entity store in chain order. Each event's entity writes are committed
// in the same transaction as the cursor, so a restarted indexer continues with the first event not yet applied.
type Indexer struct {
	store      model.EntityStore
	source     Source
	decoder    *events.Decoder
	dispatcher *escrow.Dispatcher
	cursorID   string
	opts       IndexerOptions
}

func NewIndexer(store model.EntityStore, source Source, decoder *events.Decoder, dispatcher *escrow.Dispatcher, contract common.Address, opts ...Option) (*Indexer, error) {
	o, err := ConstructOptions(opts...)
	if err != nil {
		return nil, xerrors.Errorf("indexer options: %w", err)
	}
	return &Indexer{
		store:      store,
		source:     source,
		decoder:    decoder,
		dispatcher: dispatcher,
		cursorID:   events.AddressID(contract),
		opts:       o,
	}, nil
}

// Head returns the latest block number reported by the source.
func (i *Indexer) Head(ctx context.Context) (uint64, error) {
	return i.source.Head(ctx)
}

// Cursor returns the position of the last applied event, or nil if no event has been applied.
func (i *Indexer) Cursor(ctx context.Context) (*visormodel.Cursor, error) {
	var (
		cur   visormodel.Cursor
		found bool
	)
	if err := i.store.Transact(ctx, func(ctx context.Context, tx model.EntityTx) error {
		var err error
		found, err = tx.Load(ctx, &cur, i.cursorID)
		return err
	}); err != nil {
		return nil, xerrors.Errorf("load cursor: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &cur, nil
}

// Resume returns the block indexing should continue from: the block of the cursor, or the configured start block
// when nothing has been applied yet. Events in the cursor's block at or before the cursor are skipped by IndexRange.
func (i *Indexer) Resume(ctx context.Context) (uint64, error) {
	cur, err := i.Cursor(ctx)
	if err != nil {
		return 0, err
	}
	if cur == nil {
		return i.opts.StartBlock, nil
	}
	return uint64(cur.BlockNumber), nil
}

// IndexRange applies every event in blocks from..to that comes after the cursor. It stops at the first store
// failure, leaving the cursor on the last event that was applied.
func (i *Indexer) IndexRange(ctx context.Context, from, to uint64) error {
	ctx, span := otel.Tracer("").Start(ctx, "Indexer.IndexRange")
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Int64("from", int64(from)),
			attribute.Int64("to", int64(to)),
			attribute.String("type", i.opts.IndexType.String()),
		)
	}
	defer span.End()

	ll := log.With("from", from, "to", to, "reporter", i.opts.Reporter)

	logs, err := i.source.Logs(ctx, from, to)
	if err != nil {
		return xerrors.Errorf("fetch logs: %w", err)
	}

	cur, err := i.Cursor(ctx)
	if err != nil {
		return err
	}

	var reports visormodel.ProcessingReportList
	var indexErr error
	for _, lg := range logs {
		if !cur.After(int64(lg.BlockNumber), int64(lg.Index)) {
			continue
		}

		next, report, err := i.apply(ctx, lg)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			indexErr = err
			break
		}
		cur = next
		metrics.RecordValue(ctx, metrics.CursorHeight, cur.BlockNumber)
	}

	if err := i.persistReports(ctx, reports); err != nil {
		ll.Errorw("failed to persist processing reports", "error", err)
		if indexErr == nil {
			indexErr = err
		}
	}

	if indexErr != nil {
		return indexErr
	}

	counts := reports.Counts()
	ll.Infow("indexed range", "logs", len(logs), "applied", len(reports), "ok", counts[visormodel.ProcessingStatusOK],
		"info", counts[visormodel.ProcessingStatusInfo], "errors", counts[visormodel.ProcessingStatusError], "skipped", counts[visormodel.ProcessingStatusSkip])
	return nil
}

// apply decodes and dispatches a single log, returning the new cursor position and a report of the outcome.
// An error is returned only when the store failed and the cursor could not be advanced.
func (i *Indexer) apply(ctx context.Context, lg evm.Log) (*visormodel.Cursor, *visormodel.ProcessingReport, error) {
	next := &visormodel.Cursor{
		ID:             i.cursorID,
		BlockNumber:    int64(lg.BlockNumber),
		LogIndex:       int64(lg.Index),
		BlockTimestamp: int64(lg.BlockTime),
	}
	report := &visormodel.ProcessingReport{
		BlockNumber:     int64(lg.BlockNumber),
		LogIndex:        int64(lg.Index),
		TransactionHash: events.TxHashID(lg.TxHash),
		Reporter:        i.opts.Reporter,
		StartedAt:       time.Now(),
	}
	ll := log.With("block", lg.BlockNumber, "log_index", lg.Index, "tx", report.TransactionHash)

	ev, err := i.decoder.Decode(lg.Log, lg.BlockTime)
	if err != nil {
		ll.Errorw("failed to decode log", "error", err)
		report.Status = visormodel.ProcessingStatusError
		report.ErrorsDetected = EventError{Error: err.Error()}
		return i.finish(ctx, next, report)
	}
	report.EventKind = string(ev.Kind())

	var rep *escrow.Report
	err = i.store.Transact(ctx, func(ctx context.Context, tx model.EntityTx) error {
		var err error
		rep, err = i.dispatcher.Dispatch(ctx, tx, ev)
		if err != nil {
			return err
		}
		return tx.Save(ctx, next)
	})

	var fault *escrow.HandlerFault
	switch {
	case err == nil:
		report.CompletedAt = time.Now()
		if rep.HasInfo() {
			report.Status = visormodel.ProcessingStatusInfo
			report.StatusInformation = rep.String()
		} else {
			report.Status = visormodel.ProcessingStatusOK
		}
		return next, report, nil

	case errors.As(err, &fault):
		metrics.RecordInc(metrics.WithTagValue(ctx, metrics.EventKind, string(ev.Kind())), metrics.ProcessingFailure)
		report.Status = visormodel.ProcessingStatusError
		report.ErrorsDetected = EventError{Error: fault.Error(), Stack: string(fault.Stack)}
		return i.finish(ctx, next, report)

	case errors.Is(err, escrow.ErrNoHandler):
		report.Status = visormodel.ProcessingStatusSkip
		report.StatusInformation = err.Error()
		return i.finish(ctx, next, report)

	default:
		metrics.RecordInc(metrics.WithTagValue(ctx, metrics.EventKind, string(ev.Kind())), metrics.PersistFailure)
		ll.Errorw("failed to apply event", "kind", ev.Kind(), "error", err)
		report.Status = visormodel.ProcessingStatusError
		report.ErrorsDetected = EventError{Error: err.Error()}
		report.CompletedAt = time.Now()
		return nil, report, xerrors.Errorf("apply %s at block %d log %d: %w", ev.Kind(), lg.BlockNumber, lg.Index, err)
	}
}

// finish advances the cursor past an event whose entity writes were not applied.
func (i *Indexer) finish(ctx context.Context, next *visormodel.Cursor, report *visormodel.ProcessingReport) (*visormodel.Cursor, *visormodel.ProcessingReport, error) {
	err := i.store.Transact(ctx, func(ctx context.Context, tx model.EntityTx) error {
		return tx.Save(ctx, next)
	})
	report.CompletedAt = time.Now()
	if err != nil {
		return nil, report, xerrors.Errorf("advance cursor to block %d log %d: %w", next.BlockNumber, next.LogIndex, err)
	}
	return next, report, nil
}

func (i *Indexer) persistReports(ctx context.Context, reports visormodel.ProcessingReportList) error {
	if i.opts.ReportStorage == nil || len(reports) == 0 {
		return nil
	}
	return i.opts.ReportStorage.PersistBatch(ctx, reports)
}
