package watch

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/indexer"
	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/wait"
)

var log = logging.Logger("escrowdex/chain/watch")

type WatcherOpt func(w *Watcher)

// WithConfidence sets the number of blocks behind the head that the watcher stays, so that events are only
// applied once they are unlikely to be reorganized away.
func WithConfidence(c int) WatcherOpt {
	return func(w *Watcher) {
		w.confidence = c
	}
}

func WithPollInterval(d time.Duration) WatcherOpt {
	return func(w *Watcher) {
		w.interval = d
	}
}

func WithBatchSize(n uint64) WatcherOpt {
	return func(w *Watcher) {
		w.batchSize = n
	}
}

func WithClock(clk clock.Clock) WatcherOpt {
	return func(w *Watcher) {
		w.clock = clk
	}
}

// Watcher is a job that indexes contract events by following the chain head.
type Watcher struct {
	// required
	obs  indexer.RangeIndexer
	name string

	// options with defaults
	confidence int
	interval   time.Duration
	batchSize  uint64
	clock      clock.Clock

	// created internally
	done chan struct{}
	next uint64 // next block to index
}

var (
	WatcherDefaultConfidence   = 12
	WatcherDefaultPollInterval = 12 * time.Second
	WatcherDefaultBatchSize    = uint64(2000)
)

// NewWatcher creates a new Watcher. Blocks are indexed once they are confidence blocks behind the head.
func NewWatcher(obs indexer.RangeIndexer, name string, opts ...WatcherOpt) *Watcher {
	w := &Watcher{
		obs:  obs,
		name: name,

		confidence: WatcherDefaultConfidence,
		interval:   WatcherDefaultPollInterval,
		batchSize:  WatcherDefaultBatchSize,
		clock:      clock.New(),
	}

	for _, opt := range opts {
		opt(w)
	}
	if w.confidence < 0 {
		w.confidence = 0
	}
	if w.batchSize == 0 {
		w.batchSize = WatcherDefaultBatchSize
	}
	return w
}

// Run starts following the chain head and blocks until the context is done or an error occurs. The starting block
// is read from the indexer each time Run is called so a restarted watcher continues where it stopped.
func (c *Watcher) Run(ctx context.Context) error {
	c.done = make(chan struct{})
	defer close(c.done)

	next, err := c.obs.Resume(ctx)
	if err != nil {
		return xerrors.Errorf("resume: %w", err)
	}
	c.next = next
	log.Infow("watching chain head", "from", next, "confidence", c.confidence, "interval", c.interval, "reporter", c.name)

	return wait.RepeatUntil(ctx, c.clock, c.interval, func(ctx context.Context) (bool, error) {
		if err := c.poll(ctx); err != nil {
			return false, xerrors.Errorf("index: %w", err)
		}
		return false, nil
	})
}

func (c *Watcher) Done() <-chan struct{} {
	return c.done
}

// poll indexes every block between the next unindexed block and the confidence window behind the head.
func (c *Watcher) poll(ctx context.Context) error {
	head, err := c.obs.Head(ctx)
	if err != nil {
		return xerrors.Errorf("get chain head: %w", err)
	}
	metrics.RecordValue(ctx, metrics.WatchHeight, int64(head))

	if head < uint64(c.confidence) {
		return nil
	}
	target := head - uint64(c.confidence)
	if target < c.next {
		log.Debugw("no new blocks outside confidence window", "head", head, "next", c.next, "reporter", c.name)
		return nil
	}

	ctx, span := otel.Tracer("").Start(ctx, "Watcher.poll")
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Int64("head", int64(head)),
			attribute.Int64("from", int64(c.next)),
			attribute.Int64("to", int64(target)),
		)
	}
	defer span.End()

	for c.next <= target {
		end := c.next + c.batchSize - 1
		if end > target || end < c.next {
			end = target
		}
		log.Infow("index blocks", "from", c.next, "to", end, "head", head, "reporter", c.name)
		if err := c.obs.IndexRange(ctx, c.next, end); err != nil {
			span.RecordError(err)
			return err
		}
		c.next = end + 1
	}
	return nil
}

func (c *Watcher) Params() map[string]interface{} {
	return map[string]interface{}{
		"confidence":   c.confidence,
		"pollInterval": c.interval.String(),
		"batchSize":    c.batchSize,
	}
}
