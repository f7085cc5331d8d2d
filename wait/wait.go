package wait

import (
	"context"
	"math/rand"
	"time"

	"github.com/raulk/clock"
)

// A CheckFunc returns true when the check has been passed and false if it has not.
type CheckFunc func(context.Context) (bool, error)

// RepeatUntil runs c every period, measured by clk, until the context is done, c returns an error or c returns
// true to indicate completion.
func RepeatUntil(ctx context.Context, clk clock.Clock, period time.Duration, c CheckFunc) error {
	timer := clk.Timer(period)

	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Perform the check
		done, err := c(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		// Shortcut the timer if there is no wait period
		if period == 0 {
			continue
		}

		// Wait for the next check
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(period)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Jitter returns a random duration ranging from base to base+base*factor
func Jitter(base time.Duration, factor float64) time.Duration {
	//nolint:gosec
	return base + time.Duration(float64(base)*factor*rand.Float64())
}

// SleepWithJitter waits on clk for a random duration ranging from base to base+base*factor, returning early
// with the context's error if it is done first.
func SleepWithJitter(ctx context.Context, clk clock.Clock, base time.Duration, factor float64) error {
	return Sleep(ctx, clk, Jitter(base, factor))
}

// Sleep waits on clk for d, returning early with the context's error if it is done first.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clk.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
