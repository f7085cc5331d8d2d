// Package escrow projects escrow contract events into entities.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/events"
	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
)

var log = logging.Logger("escrowdex/tasks/escrow")

// ErrNoHandler is returned when no handler is registered for an event kind.
var ErrNoHandler = errors.New("no handler registered for event")

// A HandlerFunc applies a single event to the entities visible through tx. Any error it returns is treated as a
// store failure. Anomalies that do not prevent the event from being applied are recorded in the report.
type HandlerFunc func(ctx context.Context, tx model.EntityTx, ev events.Event, r *Report) error

// A Report collects the non-fatal anomalies found while handling one event.
type Report struct {
	Info []string
}

func (r *Report) Infof(format string, args ...interface{}) {
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}

// HasInfo reports whether any anomaly was recorded.
func (r *Report) HasInfo() bool {
	return r != nil && len(r.Info) > 0
}

func (r *Report) String() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Info, "; ")
}

// A HandlerFault is returned when a handler panics. The writes made by the handler must be discarded.
type HandlerFault struct {
	Kind  events.Kind
	Value interface{}
	Stack []byte
}

func (f *HandlerFault) Error() string {
	return fmt.Sprintf("handler for %s panicked: %v", f.Kind, f.Value)
}

// Dispatcher routes events to the handler registered for their kind. It is not safe for concurrent use by
// multiple transactions; events are applied one at a time.
type Dispatcher struct {
	handlers map[events.Kind]HandlerFunc
}

// NewDispatcher returns a dispatcher with a handler registered for every contract event.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: map[events.Kind]HandlerFunc{
			events.ProviderRegisteredKind:  HandleProviderRegistered,
			events.PlanCreatedKind:         HandlePlanCreated,
			events.SubscriptionCreatedKind: HandleSubscriptionCreated,
			events.PaymentProcessedKind:    HandlePaymentProcessed,
			events.ProviderEarningsKind:    HandleProviderEarnings,
			events.EscrowDepositKind:       HandleEscrowDeposit,
			events.EscrowWithdrawalKind:    HandleEscrowWithdrawal,
		},
	}
}

// Register replaces the handler for kind. A nil handler removes it.
func (d *Dispatcher) Register(kind events.Kind, fn HandlerFunc) {
	if fn == nil {
		delete(d.handlers, kind)
		return
	}
	d.handlers[kind] = fn
}

// Kinds returns the event kinds that have a handler, sorted by name.
func (d *Dispatcher) Kinds() []events.Kind {
	out := make([]events.Kind, 0, len(d.handlers))
	for k := range d.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch applies ev using the handler registered for its kind. A panicking handler is reported as a *HandlerFault.
func (d *Dispatcher) Dispatch(ctx context.Context, tx model.EntityTx, ev events.Event) (rep *Report, err error) {
	kind := ev.Kind()
	fn, ok := d.handlers[kind]
	if !ok {
		log.Debugw("no handler for event", "kind", kind, "block", ev.Metadata().BlockNumber)
		return nil, xerrors.Errorf("%s: %w", kind, ErrNoHandler)
	}

	meta := ev.Metadata()
	ctx, span := otel.Tracer("").Start(ctx, "Dispatcher.Dispatch")
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("kind", string(kind)),
			attribute.Int64("block", int64(meta.BlockNumber)),
			attribute.Int64("log_index", int64(meta.LogIndex)),
		)
	}
	defer span.End()

	ctx = metrics.WithTagValue(ctx, metrics.EventKind, string(kind))
	stop := metrics.Timer(ctx, metrics.ProcessingDuration)
	defer stop()

	rep = &Report{}
	defer func() {
		if v := recover(); v != nil {
			err = &HandlerFault{
				Kind:  kind,
				Value: v,
				Stack: debug.Stack(),
			}
			log.Errorw("handler panicked", "kind", kind, "block", meta.BlockNumber, "log_index", meta.LogIndex, "panic", v)
		}
	}()

	if err := fn(ctx, tx, ev, rep); err != nil {
		return rep, err
	}
	metrics.RecordInc(ctx, metrics.EventsProcessed)
	return rep, nil
}

// missing records a reference to an entity that does not exist yet.
func missing(ctx context.Context, r *Report, ev events.Event, entity, id string) {
	meta := ev.Metadata()
	log.Warnw("referenced entity not found", "kind", ev.Kind(), "entity", entity, "id", id, "block", meta.BlockNumber, "log_index", meta.LogIndex)
	metrics.RecordInc(metrics.WithTagValue(ctx, metrics.Table, entity), metrics.MissingReference)
	r.Infof("%s %s not found", entity, id)
}
