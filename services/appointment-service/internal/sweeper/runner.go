// Package sweeper drives the reminder lifecycle sweeps on a fixed tick.
// Each sweep is idempotent set arithmetic, so a second instance running
// the same tick is safe.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/traindesk/traindesk/services/appointment-service/internal/reminder"
)

type Runner struct {
	lifecycle *reminder.Lifecycle
	logger    *slog.Logger
	interval  time.Duration
}

func NewRunner(lifecycle *reminder.Lifecycle, logger *slog.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{lifecycle: lifecycle, logger: logger, interval: interval}
}

func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes the four sweeps in order. A failing sweep is logged
// and does not block the ones after it; they scope their own work.
func (r *Runner) RunOnce(ctx context.Context) {
	sweeps := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{"prepare_ready", r.lifecycle.PrepareReady},
		{"mark_missed", r.lifecycle.MarkMissed},
		{"retry_failed", r.lifecycle.RetryFailed},
		{"escalate_stale", r.lifecycle.EscalateStale},
	}

	for _, sweep := range sweeps {
		sweepCtx, span := otel.Tracer("sweeper").Start(ctx, "sweep."+sweep.name,
			trace.WithSpanKind(trace.SpanKindInternal))
		n, err := sweep.run(sweepCtx)
		span.SetAttributes(attribute.Int("sweep.affected", n))
		if err != nil {
			span.RecordError(err)
			r.logger.Error("sweep failed", "sweep", sweep.name, "affected", n, "err", err)
		} else if n > 0 {
			r.logger.Info("sweep done", "sweep", sweep.name, "affected", n)
		}
		span.End()
	}
}
