package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockRange struct{ from, to uint64 }

// scriptedIndexer hands out chain heads supplied by the test, one per poll.
type scriptedIndexer struct {
	heads  chan uint64
	resume uint64

	mu     sync.Mutex
	ranges []blockRange
	fail   error
}

func (s *scriptedIndexer) Head(ctx context.Context) (uint64, error) {
	select {
	case h := <-s.heads:
		return h, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *scriptedIndexer) Resume(ctx context.Context) (uint64, error) {
	return s.resume, nil
}

func (s *scriptedIndexer) IndexRange(ctx context.Context, from, to uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.ranges = append(s.ranges, blockRange{from, to})
	return nil
}

const interval = 12 * time.Second

// feed delivers head to the watcher, advancing the mock clock until the watcher polls for it.
func feed(ctx context.Context, t *testing.T, clk *clock.Mock, heads chan<- uint64, head uint64) {
	t.Helper()
	for {
		select {
		case heads <- head:
			return
		case <-time.After(5 * time.Millisecond):
			clk.Add(interval)
		case <-ctx.Done():
			t.Fatalf("timed out feeding head %d", head)
		}
	}
}

func TestWatcherStaysBehindConfidence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clk := clock.NewMock()
	obs := &scriptedIndexer{heads: make(chan uint64), resume: 3}
	w := NewWatcher(obs, t.Name(), WithConfidence(5), WithBatchSize(10), WithPollInterval(interval), WithClock(clk))

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	feed(ctx, t, clk, obs.heads, 4)  // inside the confidence window
	feed(ctx, t, clk, obs.heads, 25) // index 3..20
	feed(ctx, t, clk, obs.heads, 25) // nothing new
	feed(ctx, t, clk, obs.heads, 27) // index 21..22
	feed(ctx, t, clk, obs.heads, 27)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	<-w.Done()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []blockRange{{3, 12}, {13, 20}, {21, 22}}, obs.ranges)
}

func TestWatcherZeroConfidenceIndexesHead(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clk := clock.NewMock()
	obs := &scriptedIndexer{heads: make(chan uint64)}
	w := NewWatcher(obs, t.Name(), WithConfidence(0), WithClock(clk), WithPollInterval(interval))

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	feed(ctx, t, clk, obs.heads, 7)
	feed(ctx, t, clk, obs.heads, 7)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []blockRange{{0, 7}}, obs.ranges)
}

func TestWatcherStopsOnIndexError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	boom := errors.New("store unavailable")
	clk := clock.NewMock()
	obs := &scriptedIndexer{heads: make(chan uint64), fail: boom}
	w := NewWatcher(obs, t.Name(), WithConfidence(1), WithClock(clk), WithPollInterval(interval))

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	feed(ctx, t, clk, obs.heads, 50)
	require.ErrorIs(t, <-errCh, boom)
}
