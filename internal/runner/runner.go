// Package runner resolves every step of a plan against the catalog and merges
// the batches into one order-preserving aggregate.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/eventbus"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/filter"
)

const source = "runner.Run"

// Runner implements shopscale.Runner.
type Runner struct {
	resolver       shopscale.Resolver
	filter         *filter.Filter
	bus            eventbus.EventBus
	logger         *zap.Logger
	maxConcurrency int           // Max steps resolved at once
	maxRetries     int           // Extra attempts for transient catalog failures
	retryDelay     time.Duration // Delay between attempts
	stepTimeout    time.Duration // Per-attempt bound, zero disables

	metrics Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxConcurrency bounds how many steps are resolved at once.
func WithMaxConcurrency(n int) Option {
	return func(r *Runner) { r.maxConcurrency = n }
}

// WithMaxRetries sets how many times a transport or upstream 5xx/429 failure is retried.
func WithMaxRetries(n int) Option {
	return func(r *Runner) { r.maxRetries = n }
}

// WithRetryDelay sets the delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) { r.retryDelay = d }
}

// WithStepTimeout bounds each resolver call.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Runner) { r.stepTimeout = d }
}

// WithFilter applies directive filters to every resolved batch.
func WithFilter(f *filter.Filter) Option {
	return func(r *Runner) { r.filter = f }
}

// WithEventBus publishes step and run events to bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(r *Runner) { r.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner over resolver.
func New(resolver shopscale.Resolver, opts ...Option) (*Runner, error) {
	if resolver == nil {
		return nil, shopscale.NewConfigurationError("runner requires a resolver", nil)
	}
	r := &Runner{
		resolver:       resolver,
		logger:         zap.NewNop(),
		maxConcurrency: 5,
		retryDelay:     500 * time.Millisecond,
		stepTimeout:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxConcurrency < 1 {
		r.maxConcurrency = 1
	}
	if r.maxRetries < 0 {
		r.maxRetries = 0
	}
	return r, nil
}

// Metrics returns a snapshot of the runner's counters.
func (r *Runner) Metrics() Metrics {
	return r.metrics.Copy()
}

// Run resolves every step of plan. Products keep plan order and, within a
// step, catalog order. A failing step never affects its siblings; it is
// reported in the aggregate instead. The only error is cancellation of ctx, in
// which case partial results are discarded.
func (r *Runner) Run(ctx context.Context, plan *shopscale.Plan) (*shopscale.Aggregate, error) {
	if err := shopscale.ContextError(ctx, shopscale.StageRun); err != nil {
		return nil, err
	}
	agg := &shopscale.Aggregate{
		Products: []shopscale.ProductRecord{},
		Steps:    []shopscale.StepReport{},
	}
	if plan.Empty() {
		return agg, nil
	}

	start := time.Now()
	steps := plan.Steps
	r.logger.Info("starting plan run",
		zap.String("intent", string(plan.Intent)),
		zap.Int("total_steps", len(steps)),
	)
	eventbus.Emit(ctx, r.bus, eventbus.EventRunStarted, plan, source, map[string]interface{}{
		"step_count": len(steps),
	})

	reports := make([]shopscale.StepReport, len(steps))
	batches := make([][]shopscale.ProductRecord, len(steps))

	// Each worker writes only its own slot, so completion order never leaks into the result.
	workers := pool.New().WithMaxGoroutines(r.maxConcurrency)
	for i, directive := range steps {
		workers.Go(func() {
			reports[i], batches[i] = r.runStep(ctx, i, directive)
		})
	}
	workers.Wait()

	if err := shopscale.ContextError(ctx, shopscale.StageRun); err != nil {
		r.metrics.recordRun(0, time.Since(start), true)
		r.logger.Info("plan run cancelled", zap.Error(err))
		eventbus.Emit(context.WithoutCancel(ctx), r.bus, eventbus.EventRunCancelled, nil, source, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	for i := range steps {
		agg.Products = append(agg.Products, batches[i]...)
	}
	agg.Steps = reports

	took := time.Since(start)
	r.metrics.recordRun(len(agg.Products), took, false)
	r.logger.Info("plan run finished",
		zap.Int("products", len(agg.Products)),
		zap.Int("failed_steps", len(agg.Failures())),
		zap.Int("empty_steps", len(agg.EmptySteps())),
		zap.String("outcome", string(agg.Outcome())),
		zap.Duration("took", took),
	)
	eventbus.Emit(ctx, r.bus, eventbus.EventRunCompleted, agg, source, map[string]interface{}{
		"outcome":     string(agg.Outcome()),
		"products":    len(agg.Products),
		"duration_ms": took.Milliseconds(),
	})
	return agg, nil
}

func (r *Runner) runStep(ctx context.Context, index int, directive shopscale.SearchDirective) (shopscale.StepReport, []shopscale.ProductRecord) {
	report := shopscale.StepReport{Index: index, Directive: directive}
	meta := map[string]interface{}{"index": index, "search_text": directive.SearchText}

	if directive.SearchText == "" {
		report.Status = shopscale.StepSkipped
		report.Err = shopscale.NewInvalidDirectiveError(index, "blank search text")
		r.metrics.recordStep(report, 0)
		r.logger.Warn("skipping invalid directive", zap.Int("index", index))
		eventbus.Emit(ctx, r.bus, eventbus.EventStepResolutionSkipped, directive, source, meta)
		return report, nil
	}

	eventbus.Emit(ctx, r.bus, eventbus.EventStepResolutionStarted, directive, source, meta)
	start := time.Now()
	records, err := r.resolve(ctx, index, directive, &report)
	report.Duration = time.Since(start)

	var filtered int
	switch {
	case err != nil && shopscale.IsCode(err, shopscale.ErrCodeInvalidDirective):
		report.Status = shopscale.StepSkipped
		report.Err = err
	case err != nil:
		report.Status = shopscale.StepFailed
		report.Err = err
		report.Reason, _ = shopscale.CatalogReason(err)
	default:
		for i := range records {
			records[i].SourceDirective = index
		}
		if r.filter != nil {
			records, filtered = r.filter.Apply(directive, records)
		}
		report.Count = len(records)
		report.Status = shopscale.StepResolved
		if len(records) == 0 {
			report.Status = shopscale.StepEmpty
		}
	}
	r.metrics.recordStep(report, filtered)

	switch report.Status {
	case shopscale.StepFailed:
		meta["reason"] = string(report.Reason)
		meta["error"] = report.Err.Error()
		r.logger.Warn("step resolution failed",
			zap.Int("index", index),
			zap.String("search_text", directive.SearchText),
			zap.Int("attempts", report.Attempts),
			zap.Error(report.Err),
		)
		eventbus.Emit(ctx, r.bus, eventbus.EventStepResolutionFailure, report, source, meta)
	case shopscale.StepEmpty:
		meta["filtered"] = filtered
		eventbus.Emit(ctx, r.bus, eventbus.EventStepResolutionEmpty, report, source, meta)
	case shopscale.StepSkipped:
		eventbus.Emit(ctx, r.bus, eventbus.EventStepResolutionSkipped, directive, source, meta)
	default:
		meta["count"] = report.Count
		meta["duration_ms"] = report.Duration.Milliseconds()
		eventbus.Emit(ctx, r.bus, eventbus.EventStepResolutionSuccess, report, source, meta)
	}
	return report, records
}

// resolve runs the attempt loop for one step.
func (r *Runner) resolve(ctx context.Context, index int, directive shopscale.SearchDirective, report *shopscale.StepReport) ([]shopscale.ProductRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := shopscale.ContextError(ctx, shopscale.StageResolution); err != nil {
			return nil, err
		}
		report.Attempts++

		records, err := r.attempt(ctx, index, directive)
		if err == nil {
			return records, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) || attempt == r.maxRetries {
			break
		}

		r.logger.Info("step resolution failed, retrying",
			zap.Int("index", index),
			zap.Int("retry", attempt+1),
			zap.Int("max_retries", r.maxRetries),
			zap.Error(err),
		)
		eventbus.Emit(ctx, r.bus, eventbus.EventStepResolutionRetry, directive, source, map[string]interface{}{
			"index": index,
			"retry": attempt + 1,
			"error": err.Error(),
		})
		select {
		case <-ctx.Done():
			return nil, shopscale.ContextError(ctx, shopscale.StageResolution)
		case <-time.After(r.retryDelay):
		}
	}
	return nil, lastErr
}

func (r *Runner) attempt(ctx context.Context, index int, directive shopscale.SearchDirective) ([]shopscale.ProductRecord, error) {
	stepCtx := ctx
	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}

	records, err := r.resolver.Resolve(stepCtx, directive, index)
	if err == nil {
		return records, nil
	}
	if shopscale.IsCode(err, shopscale.ErrCodeCatalog) || shopscale.IsCode(err, shopscale.ErrCodeInvalidDirective) {
		return nil, err
	}
	if ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return nil, shopscale.NewCatalogError(shopscale.ReasonTransport, 0, "catalog lookup timed out", err)
	}
	return nil, shopscale.NewCatalogError(shopscale.ReasonTransport, 0, "catalog lookup failed", err)
}

// retryable reports whether a failure is worth another attempt: transport
// errors and upstream 5xx or 429 responses.
func retryable(err error) bool {
	var e *shopscale.Error
	if !errors.As(err, &e) || e.Code != shopscale.ErrCodeCatalog {
		return false
	}
	switch e.Reason {
	case shopscale.ReasonTransport:
		return true
	case shopscale.ReasonStatus:
		return e.Status >= 500 || e.Status == 429
	}
	return false
}
