package visor

import (
	"context"

	"go.opencensus.io/tag"

	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/model"
)

// A Cursor is the position of the last contract event applied to the entity store. It is saved in the same
// transaction as the event's entity writes so a restarted indexer resumes exactly after it.
type Cursor struct {
	tableName struct{} `pg:"visor_cursors"` // nolint: structcheck

	// Lowercase hex address of the indexed contract.
	ID             string `pg:",pk,notnull"`
	BlockNumber    int64  `pg:",notnull,use_zero"`
	LogIndex       int64  `pg:",notnull,use_zero"`
	BlockTimestamp int64  `pg:",notnull,use_zero"`
}

func (c *Cursor) EntityID() string {
	return c.ID
}

// After reports whether the log at (block, logIndex) comes after the cursor position.
func (c *Cursor) After(block, logIndex int64) bool {
	if c == nil {
		return true
	}
	if block != c.BlockNumber {
		return block > c.BlockNumber
	}
	return logIndex > c.LogIndex
}

func (c *Cursor) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "visor_cursors"))
	metrics.RecordCount(ctx, metrics.PersistModel, 1)
	return s.PersistModel(ctx, c)
}

type CursorList []*Cursor

func (cl CursorList) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	if len(cl) == 0 {
		return nil
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "visor_cursors"))
	metrics.RecordCount(ctx, metrics.PersistModel, len(cl))
	return s.PersistModel(ctx, cl)
}
