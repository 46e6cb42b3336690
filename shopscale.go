// Package shopscale turns free-text shopping requests into ordered catalog
// searches and aggregates the results. The ShopScale runtime sequences plan
// extraction and plan resolution through a small pushdown state machine.
package shopscale

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/shopscale-genkit/internal/eventbus"
)

// ShopScale is the main entry point into the runtime.
type ShopScale struct {
	extractor Extractor
	runner    Runner
	eventBus  eventbus.EventBus
	ownsBus   bool
	logger    *zap.Logger

	config Config

	asyncExecutions      map[string]*ProcessContext
	asyncExecutionsMutex sync.RWMutex

	sessions *gocache.Cache
}

// Config holds the configuration options for the runtime.
type Config struct {
	// Upper bound on one query, extraction and resolution together. Zero disables it.
	ProcessTimeout time.Duration

	// Sessions idle longer than this are forgotten.
	SessionTTL time.Duration

	// Event bus configuration, used when no bus is supplied.
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProcessTimeout:      2 * time.Minute,
		SessionTTL:          30 * time.Minute,
		EnableEventBus:      true,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 5,
	}
}

// Option is a function that configures a ShopScale instance.
type Option func(*ShopScale)

// WithConfig sets the configuration.
func WithConfig(config Config) Option {
	return func(s *ShopScale) {
		s.config = config
	}
}

// WithExtractor sets the plan extractor.
func WithExtractor(extractor Extractor) Option {
	return func(s *ShopScale) {
		s.extractor = extractor
	}
}

// WithRunner sets the plan runner.
func WithRunner(runner Runner) Option {
	return func(s *ShopScale) {
		s.runner = runner
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *ShopScale) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a ShopScale instance. An extractor and a runner are required.
func New(options ...Option) (*ShopScale, error) {
	s := &ShopScale{
		config:          DefaultConfig(),
		logger:          zap.NewNop(),
		asyncExecutions: make(map[string]*ProcessContext),
	}
	for _, option := range options {
		option(s)
	}

	if s.extractor == nil {
		return nil, NewConfigurationError("extractor is required", nil)
	}
	if s.runner == nil {
		return nil, NewConfigurationError("runner is required", nil)
	}

	if s.config.EnableEventBus && s.eventBus == nil {
		s.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(s.config.EventBusBufferSize),
			eventbus.WithWorkerCount(s.config.EventBusWorkerCount),
			eventbus.WithLogger(s.logger),
		)
		s.ownsBus = true
		s.logger.Debug("initialized default channel-based event bus")
	}

	ttl := s.config.SessionTTL
	if ttl <= 0 {
		ttl = DefaultConfig().SessionTTL
	}
	s.sessions = gocache.New(ttl, ttl)
	s.sessions.OnEvicted(func(_ string, v interface{}) {
		if session, ok := v.(*Session); ok {
			session.Cancel()
		}
	})

	return s, nil
}

// EventBus returns the bus events are published to, or nil when disabled.
func (s *ShopScale) EventBus() eventbus.EventBus {
	if !s.config.EnableEventBus {
		return nil
	}
	return s.eventBus
}

// Close cancels running async executions and stops a bus created by New.
func (s *ShopScale) Close() error {
	s.asyncExecutionsMutex.RLock()
	for _, pCtx := range s.asyncExecutions {
		if cancel, ok := pCtx.StateData["cancel"].(context.CancelFunc); ok {
			cancel()
		}
	}
	s.asyncExecutionsMutex.RUnlock()

	for _, item := range s.sessions.Items() {
		if session, ok := item.Object.(*Session); ok {
			session.Cancel()
		}
	}

	if s.ownsBus {
		if closer, ok := s.eventBus.(interface{ Close() error }); ok {
			return closer.Close()
		}
	}
	return nil
}

// Process extracts a plan from query and resolves it. Per-step catalog
// failures are reported inside the result; the error is an ExtractionFailure,
// a cancellation, or a timeout.
func (s *ShopScale) Process(ctx context.Context, query string) (*Result, error) {
	return s.execute(ctx, NewProcessContext(query))
}

// ResolvePlan resolves a supplied plan without calling the extractor.
func (s *ShopScale) ResolvePlan(ctx context.Context, plan *Plan) (*Result, error) {
	if plan == nil {
		return nil, NewValidationError(StageRun, "plan is required", nil)
	}
	if !plan.Intent.Valid() {
		return nil, NewValidationError(StageRun, "plan has unknown intent "+string(plan.Intent), nil)
	}
	pCtx := NewProcessContext("")
	pCtx.Plan = plan
	return s.execute(ctx, pCtx)
}

// ExtractPlan runs only the extraction stage.
func (s *ShopScale) ExtractPlan(ctx context.Context, query string) (*Plan, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.extractor.Extract(ctx, query)
}

func (s *ShopScale) execute(ctx context.Context, pCtx *ProcessContext) (*Result, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.createStateMachine().Execute(ctx, pCtx)
	if err != nil {
		s.logger.Info("query processing ended without a result",
			zap.String("query", pCtx.Query),
			zap.String("state", string(pCtx.State())),
			zap.Error(err),
		)
		return nil, err
	}
	s.logger.Info("query processed",
		zap.String("query", pCtx.Query),
		zap.String("outcome", string(result.Aggregate.Outcome())),
		zap.Int("products", len(result.Aggregate.Products)),
		zap.Duration("took", pCtx.GetTotalDuration()),
	)
	return result, nil
}

func (s *ShopScale) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.ProcessTimeout > 0 {
		return context.WithTimeout(ctx, s.config.ProcessTimeout)
	}
	return context.WithCancel(ctx)
}

// createStateMachine builds a state machine over the configured components.
func (s *ShopScale) createStateMachine() *StateMachine {
	return CreateProcessStateMachine(Components{
		Extractor: s.extractor,
		Runner:    s.runner,
		Logger:    s.logger,
	}, s.EventBus())
}
