package walk

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/indexer"
)

var log = logging.Logger("escrowdex/chain/walk")

const DefaultBatchSize = 2000

// A ProgressFunc is called after each batch with the number of blocks walked so far and the total to walk.
type ProgressFunc func(done, total uint64)

func NewWalker(obs indexer.RangeIndexer, name string, minHeight, maxHeight, batchSize uint64, progress ProgressFunc) *Walker {
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	return &Walker{
		obs:       obs,
		name:      name,
		minHeight: minHeight,
		maxHeight: maxHeight,
		batchSize: batchSize,
		progress:  progress,
	}
}

// Walker is a job that indexes the contract events in a fixed range of blocks.
type Walker struct {
	obs       indexer.RangeIndexer
	name      string
	minHeight uint64 // first block to index
	maxHeight uint64 // last block to index
	batchSize uint64
	progress  ProgressFunc
	done      chan struct{}
}

// Run walks the range in ascending batches and returns when the range is complete or the context is done.
func (c *Walker) Run(ctx context.Context) error {
	c.done = make(chan struct{})
	defer func() {
		close(c.done)
	}()

	if c.minHeight > c.maxHeight {
		return xerrors.Errorf("invalid walk range: minimum height (%d) is after maximum height (%d)", c.minHeight, c.maxHeight)
	}

	head, err := c.obs.Head(ctx)
	if err != nil {
		return xerrors.Errorf("get chain head: %w", err)
	}

	if head < c.minHeight {
		return xerrors.Errorf("cannot walk history, chain head (%d) is earlier than minimum height (%d)", head, c.minHeight)
	}

	to := c.maxHeight
	if to > head {
		log.Warnw("maximum height is beyond chain head, stopping at head", "max_height", c.maxHeight, "head", head, "reporter", c.name)
		to = head
	}

	if err := c.WalkRange(ctx, c.minHeight, to); err != nil {
		return xerrors.Errorf("walk range: %w", err)
	}
	return nil
}

func (c *Walker) Done() <-chan struct{} {
	return c.done
}

// WalkRange indexes blocks from..to inclusive in batches of at most batchSize blocks.
func (c *Walker) WalkRange(ctx context.Context, from, to uint64) error {
	ctx, span := otel.Tracer("").Start(ctx, "Walker.WalkRange")
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Int64("min_height", int64(from)),
			attribute.Int64("max_height", int64(to)),
			attribute.Int64("batch_size", int64(c.batchSize)),
		)
	}
	defer span.End()

	total := to - from + 1
	for start := from; start <= to; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := start + c.batchSize - 1
		if end > to || end < start {
			end = to
		}

		log.Infow("walk blocks", "from", start, "to", end, "reporter", c.name)
		if err := c.obs.IndexRange(ctx, start, end); err != nil {
			span.RecordError(err)
			return xerrors.Errorf("index blocks %d-%d: %w", start, end, err)
		}

		if c.progress != nil {
			c.progress(end-from+1, total)
		}

		if end == to {
			break
		}
		start = end + 1
	}

	return nil
}

func (c *Walker) Params() map[string]interface{} {
	return map[string]interface{}{
		"minHeight": c.minHeight,
		"maxHeight": c.maxHeight,
		"batchSize": c.batchSize,
	}
}
