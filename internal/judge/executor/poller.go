package executor

import (
	"context"
	"errors"
	"time"

	pkgerrors "codearena/pkg/errors"
)

// Poller is a bounded, cancellable fixed-interval retry loop.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	// Sleep waits for d or until ctx is done. Tests replace it with a fast clock.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller returns a poller backed by real timers.
func NewPoller(interval time.Duration, maxAttempts int) Poller {
	return Poller{Interval: interval, MaxAttempts: maxAttempts, Sleep: sleepContext}
}

// Poll waits Interval before each check and stops when check reports done,
// returns an error, or the attempt budget runs out. Exhausting the budget
// yields ExecutionTimeout.
func (p Poller) Poll(ctx context.Context, check func(ctx context.Context, attempt int) (bool, error)) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := sleep(ctx, p.Interval); err != nil {
			return contextError(err)
		}
		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return pkgerrors.Newf(pkgerrors.ExecutionTimeout, "execution did not finish after %d polls", p.MaxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// contextError maps an expired deadline to ExecutionTimeout and keeps
// cancellation as is.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrapf(err, pkgerrors.ExecutionTimeout, "execution wait exceeded request deadline")
	}
	return err
}
