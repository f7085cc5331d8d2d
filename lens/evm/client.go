package evm

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/lens"
	"github.com/subscription-escrow/escrowdex/metrics"
)

var log = logging.Logger("escrowdex/lens/evm")

var _ lens.API = (*FailoverClient)(nil)

// FailoverClient spreads requests over several endpoints in round robin order, moving on to the next endpoint
// when a request fails.
type FailoverClient struct {
	clients []lens.API
	urls    []string
	closers []func()
	index   uint64
	timeout time.Duration
}

// NewFailoverClient wraps already connected clients. urls is used only for logging and may be nil.
func NewFailoverClient(clients []lens.API, urls []string, timeout time.Duration) *FailoverClient {
	return &FailoverClient{
		clients: clients,
		urls:    urls,
		timeout: timeout,
	}
}

// Dial connects to every url. Endpoints that cannot be dialed are skipped; at least one must succeed.
func Dial(ctx context.Context, urls []string, timeout time.Duration) (*FailoverClient, error) {
	if len(urls) == 0 {
		return nil, xerrors.Errorf("no rpc endpoints configured")
	}

	fc := &FailoverClient{timeout: timeout}
	for _, url := range urls {
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			log.Warnw("failed to connect to rpc endpoint, skipping", "url", url, "error", err)
			continue
		}
		fc.clients = append(fc.clients, c)
		fc.urls = append(fc.urls, url)
		fc.closers = append(fc.closers, c.Close)
		log.Infow("connected to rpc endpoint", "url", url)
	}

	if len(fc.clients) == 0 {
		return nil, xerrors.Errorf("failed to connect to any of %d rpc endpoints", len(urls))
	}
	return fc, nil
}

func (fc *FailoverClient) Close() {
	for _, c := range fc.closers {
		c()
	}
	fc.closers = nil
}

func (fc *FailoverClient) call(ctx context.Context, api string, fn func(ctx context.Context, c lens.API) error) error {
	if len(fc.clients) == 0 {
		return xerrors.Errorf("%s: no rpc clients available", api)
	}

	ctx, _ = tag.New(ctx, tag.Upsert(metrics.API, api))
	defer metrics.Timer(ctx, metrics.LensRequestDuration)()

	var lastErr error
	for attempt := 0; attempt < len(fc.clients); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		i := (atomic.AddUint64(&fc.index, 1) - 1) % uint64(len(fc.clients))
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if fc.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, fc.timeout)
		}
		lastErr = fn(callCtx, fc.clients[i])
		cancel()
		if lastErr == nil {
			return nil
		}

		log.Warnw("rpc request failed, trying next endpoint", "api", api, "attempt", attempt+1, "endpoint", fc.endpoint(i), "error", lastErr)
	}

	return xerrors.Errorf("%s failed after trying %d endpoints: %w", api, len(fc.clients), lastErr)
}

func (fc *FailoverClient) endpoint(i uint64) string {
	if int(i) < len(fc.urls) {
		return fc.urls[i]
	}
	return ""
}

func (fc *FailoverClient) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := fc.call(ctx, "BlockNumber", func(ctx context.Context, c lens.API) error {
		var err error
		n, err = c.BlockNumber(ctx)
		return err
	})
	return n, err
}

func (fc *FailoverClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := fc.call(ctx, "FilterLogs", func(ctx context.Context, c lens.API) error {
		var err error
		logs, err = c.FilterLogs(ctx, q)
		return err
	})
	return logs, err
}

func (fc *FailoverClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var h *types.Header
	err := fc.call(ctx, "HeaderByNumber", func(ctx context.Context, c lens.API) error {
		var err error
		h, err = c.HeaderByNumber(ctx, number)
		return err
	})
	return h, err
}

// APIOpener dials the configured endpoints each time Open is called.
type APIOpener struct {
	urls    []string
	timeout time.Duration
}

var _ lens.APIOpener = (*APIOpener)(nil)

func NewAPIOpener(urls []string, timeout time.Duration) *APIOpener {
	return &APIOpener{urls: urls, timeout: timeout}
}

func (o *APIOpener) Open(ctx context.Context) (lens.API, lens.APICloser, error) {
	fc, err := Dial(ctx, o.urls, o.timeout)
	if err != nil {
		return nil, nil, xerrors.Errorf("dial: %w", err)
	}
	return fc, lens.APICloser(fc.Close), nil
}
