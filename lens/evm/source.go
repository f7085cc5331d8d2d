package evm

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gammazero/workerpool"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/lens"
	"github.com/subscription-escrow/escrowdex/metrics"
)

const (
	DefaultHeaderWorkers = 8
	DefaultHeaderCache   = 4096
)

// Log is a contract log together with the timestamp of the block that contains it.
type Log struct {
	types.Log
	BlockTime uint64
}

// LogSource reads the logs emitted by a single contract.
type LogSource struct {
	api      lens.API
	contract common.Address
	topics   []common.Hash
	workers  int
	cache    *lru.ARCCache
}

type SourceOpt func(*sourceOptions)

type sourceOptions struct {
	workers   int
	cacheSize int
}

// WithHeaderWorkers sets the number of block headers fetched concurrently.
func WithHeaderWorkers(n int) SourceOpt {
	return func(o *sourceOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithHeaderCache sets the number of block timestamps kept in memory.
func WithHeaderCache(n int) SourceOpt {
	return func(o *sourceOptions) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// NewLogSource returns a source for logs emitted by contract whose first topic is one of topics.
func NewLogSource(api lens.API, contract common.Address, topics []common.Hash, opts ...SourceOpt) (*LogSource, error) {
	o := sourceOptions{
		workers:   DefaultHeaderWorkers,
		cacheSize: DefaultHeaderCache,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cache, err := lru.NewARC(o.cacheSize)
	if err != nil {
		return nil, xerrors.Errorf("new arc cache: %w", err)
	}

	return &LogSource{
		api:      api,
		contract: contract,
		topics:   topics,
		workers:  o.workers,
		cache:    cache,
	}, nil
}

func (s *LogSource) Contract() common.Address {
	return s.contract
}

// Head returns the number of the most recent block known to the endpoint.
func (s *LogSource) Head(ctx context.Context) (uint64, error) {
	return s.api.BlockNumber(ctx)
}

// Logs returns the logs in blocks from..to inclusive, ordered by block number and log index. Logs marked as
// removed by a reorg are dropped.
func (s *LogSource) Logs(ctx context.Context, from, to uint64) ([]Log, error) {
	if from > to {
		return nil, xerrors.Errorf("invalid block range %d-%d", from, to)
	}

	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.contract},
	}
	if len(s.topics) > 0 {
		q.Topics = [][]common.Hash{s.topics}
	}

	raw, err := s.api.FilterLogs(ctx, q)
	if err != nil {
		return nil, xerrors.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	kept := make([]types.Log, 0, len(raw))
	for _, lg := range raw {
		if lg.Removed {
			log.Debugw("dropping removed log", "block", lg.BlockNumber, "tx", lg.TxHash.Hex(), "index", lg.Index)
			continue
		}
		kept = append(kept, lg)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].BlockNumber != kept[j].BlockNumber {
			return kept[i].BlockNumber < kept[j].BlockNumber
		}
		return kept[i].Index < kept[j].Index
	})

	var heights []uint64
	for i, lg := range kept {
		if i == 0 || kept[i-1].BlockNumber != lg.BlockNumber {
			heights = append(heights, lg.BlockNumber)
		}
	}

	times, err := s.blockTimes(ctx, heights)
	if err != nil {
		return nil, err
	}

	out := make([]Log, len(kept))
	for i, lg := range kept {
		out[i] = Log{Log: lg, BlockTime: times[lg.BlockNumber]}
	}
	return out, nil
}

// blockTimes returns the timestamp of each block, fetching headers not already cached.
func (s *LogSource) blockTimes(ctx context.Context, heights []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64, len(heights))
	var missing []uint64
	for _, h := range heights {
		if v, ok := s.cache.Get(h); ok {
			out[h] = v.(uint64)
			continue
		}
		missing = append(missing, h)
	}
	if hits := len(heights) - len(missing); hits > 0 {
		metrics.RecordCount(ctx, metrics.HeaderCacheHit, hits)
	}
	if len(missing) == 0 {
		return out, nil
	}

	var (
		mu   sync.Mutex
		errs error
	)
	pool := workerpool.New(s.workers)
	for _, h := range missing {
		pool.Submit(func() {
			hdr, err := s.api.HeaderByNumber(ctx, new(big.Int).SetUint64(h))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, xerrors.Errorf("header %d: %w", h, err))
				return
			}
			if hdr == nil {
				errs = multierr.Append(errs, xerrors.Errorf("header %d: not found", h))
				return
			}
			out[h] = hdr.Time
		})
	}
	pool.StopWait()

	if errs != nil {
		return nil, xerrors.Errorf("fetch block timestamps: %w", errs)
	}

	for _, h := range missing {
		s.cache.Add(h, out[h])
	}
	return out, nil
}
