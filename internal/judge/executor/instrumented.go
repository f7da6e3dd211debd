package executor

import (
	"context"
	"errors"
	"time"

	"codearena/internal/common/metrics"
	pkgerrors "codearena/pkg/errors"
)

type instrumented struct {
	next    Executor
	metrics *metrics.Metrics
}

// Instrument counts and times every call made through next.
func Instrument(next Executor, m *metrics.Metrics) Executor {
	if m == nil {
		return next
	}
	return &instrumented{next: next, metrics: m}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Execute(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	out, err := i.next.Execute(ctx, req)
	i.metrics.ObserveExecution(i.next.Name(), outcomeLabel(err), time.Since(start))
	return out, err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case pkgerrors.Is(err, pkgerrors.ExecutionTimeout):
		return "timeout"
	default:
		return "backend_error"
	}
}
