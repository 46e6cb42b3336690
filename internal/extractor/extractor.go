// Package extractor turns free-text shopping requests into search plans by
// prompting a text generator and parsing its reply.
package extractor

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/cache"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/eventbus"
)

const source = "extractor.Extract"

// Extractor implements shopscale.Extractor.
type Extractor struct {
	generator shopscale.Generator
	parser    *Parser
	cache     shopscale.PlanCache
	bus       eventbus.EventBus
	logger    *zap.Logger
	timeout   time.Duration
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCache enables plan reuse for repeated queries.
func WithCache(c shopscale.PlanCache) Option {
	return func(e *Extractor) { e.cache = c }
}

// WithEventBus publishes extraction events to bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(e *Extractor) { e.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTimeout bounds a single generator call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) { e.timeout = d }
}

// New creates an Extractor backed by generator.
func New(generator shopscale.Generator, opts ...Option) (*Extractor, error) {
	if generator == nil {
		return nil, shopscale.NewConfigurationError("extractor requires a generator", nil)
	}
	e := &Extractor{
		generator: generator,
		logger:    zap.NewNop(),
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.parser = NewParser(e.logger)
	return e, nil
}

// Extract builds the instruction for query, submits it, and parses the reply.
// Generator errors, timeouts and replies without an intent label are
// ExtractionFailures; caller cancellation is reported as such.
func (e *Extractor) Extract(ctx context.Context, query string) (*shopscale.Plan, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, shopscale.NewExtractionError("query is blank", nil)
	}

	key := cache.PlanKey(query, PromptVersion)
	if plan, ok := e.cached(ctx, key); ok {
		eventbus.Emit(ctx, e.bus, eventbus.EventPlanCacheHit, plan, source, map[string]interface{}{
			"step_count": len(plan.Steps),
		})
		return plan, nil
	}

	eventbus.Emit(ctx, e.bus, eventbus.EventPlanExtractionStarted, query, source, map[string]interface{}{
		"prompt_version": PromptVersion,
	})
	start := time.Now()

	plan, err := e.extract(ctx, query)
	if err != nil {
		e.logger.Warn("plan extraction failed", zap.String("query", query), zap.Error(err))
		eventbus.Emit(ctx, e.bus, eventbus.EventPlanExtractionFailure, query, source, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	e.logger.Info("plan extracted",
		zap.String("intent", string(plan.Intent)),
		zap.Int("steps", len(plan.Steps)),
		zap.Duration("took", time.Since(start)),
	)
	eventbus.Emit(ctx, e.bus, eventbus.EventPlanExtractionSuccess, plan, source, map[string]interface{}{
		"intent":      string(plan.Intent),
		"step_count":  len(plan.Steps),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	// Empty plans are not cached; the generator may do better on a retry.
	if e.cache != nil && !plan.Empty() {
		if err := e.cache.Set(ctx, key, plan); err != nil {
			e.logger.Warn("plan cache write failed", zap.Error(err))
		}
	}
	return plan, nil
}

func (e *Extractor) extract(ctx context.Context, query string) (*shopscale.Plan, error) {
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.generator.Generate(callCtx, BuildPrompt(query))
	if err != nil {
		if cerr := shopscale.ContextError(ctx, shopscale.StageExtraction); cerr != nil {
			return nil, cerr
		}
		if callCtx.Err() != nil {
			return nil, shopscale.NewExtractionError("text generation timed out", err)
		}
		return nil, shopscale.NewExtractionError("text generation failed", err)
	}

	return e.parser.Parse(strings.TrimSpace(raw))
}

// cached treats every cache error as a miss.
func (e *Extractor) cached(ctx context.Context, key string) (*shopscale.Plan, bool) {
	if e.cache == nil {
		return nil, false
	}
	plan, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("plan cache read failed", zap.Error(shopscale.NewCacheError(shopscale.StageExtraction, "get", err)))
		return nil, false
	}
	return plan, ok && plan != nil
}
