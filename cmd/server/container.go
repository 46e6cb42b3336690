package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/cache"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/catalog"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/config"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/eventbus"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/extractor"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/filter"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/generator"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/runner"
)

// container owns every long-lived component built from the configuration.
type container struct {
	app    *shopscale.ShopScale
	bus    *eventbus.ChannelEventBus
	runner *runner.Runner
	closer []func() error
}

func newContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*container, error) {
	c := &container{}

	c.bus = eventbus.NewChannelEventBus(
		eventbus.WithLogger(logger),
		eventbus.WithBufferSize(cfg.App.EventBusBufferLen),
		eventbus.WithWorkerCount(cfg.App.EventBusWorkers),
	)
	c.closer = append(c.closer, c.bus.Close)
	if _, err := c.bus.SubscribeAll(func(ctx context.Context, event eventbus.Event) error {
		logger.Debug("event", zap.String("type", string(event.Type())), zap.String("source", event.Source()))
		return nil
	}); err != nil {
		return nil, err
	}

	gen, err := newGenerator(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	planCache, err := c.newPlanCache(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	extractorOpts := []extractor.Option{
		extractor.WithEventBus(c.bus),
		extractor.WithLogger(logger.Named("extractor")),
		extractor.WithTimeout(cfg.LLM.Timeout),
	}
	if planCache != nil {
		extractorOpts = append(extractorOpts, extractor.WithCache(planCache))
	}
	ext, err := extractor.New(gen, extractorOpts...)
	if err != nil {
		return nil, err
	}

	resolver, err := newResolver(cfg.Catalog, logger.Named("catalog"))
	if err != nil {
		return nil, err
	}

	runnerOpts := []runner.Option{
		runner.WithMaxConcurrency(cfg.Runner.MaxConcurrency),
		runner.WithMaxRetries(cfg.Runner.MaxRetries),
		runner.WithRetryDelay(cfg.Runner.RetryDelay),
		runner.WithStepTimeout(cfg.Runner.StepTimeout),
		runner.WithEventBus(c.bus),
		runner.WithLogger(logger.Named("runner")),
	}
	if cfg.Runner.ApplyFilters {
		f, err := filter.New(filter.DefaultRules(), filter.NewRegistry())
		if err != nil {
			return nil, err
		}
		runnerOpts = append(runnerOpts, runner.WithFilter(f))
	}
	c.runner, err = runner.New(resolver, runnerOpts...)
	if err != nil {
		return nil, err
	}

	appCfg := shopscale.DefaultConfig()
	appCfg.ProcessTimeout = cfg.App.ProcessTimeout
	appCfg.SessionTTL = cfg.App.SessionTTL
	c.app, err = shopscale.New(
		shopscale.WithConfig(appCfg),
		shopscale.WithExtractor(ext),
		shopscale.WithRunner(c.runner),
		shopscale.WithEventBus(c.bus),
		shopscale.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	// The app closes before the bus it publishes to.
	c.closer = append([]func() error{c.app.Close}, c.closer...)
	return c, nil
}

func newGenerator(ctx context.Context, cfg config.LLMConfig) (shopscale.Generator, error) {
	switch cfg.Provider {
	case "openai":
		return generator.NewOpenAIGenerator(generator.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.Model,
			Temperature: &cfg.Temperature,
			MaxRetries:  cfg.MaxRetries,
		}), nil
	case "googleai":
		gcfg := generator.GenkitConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.Model, Temperature: &cfg.Temperature}
		return generator.NewGenkitGenerator(generator.InitGenkit(ctx, gcfg), gcfg), nil
	}
	return nil, shopscale.NewConfigurationError(fmt.Sprintf("unknown LLM provider %q", cfg.Provider), nil)
}

// newPlanCache returns nil when caching is disabled.
func (c *container) newPlanCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (shopscale.PlanCache, error) {
	logger = logger.Named("plan-cache")
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "memory":
		return cache.NewInMemoryCache(cfg.TTL, logger), nil
	case "file":
		return cache.NewFilePersistentCache(cfg.TTL, cfg.FilePath, logger)
	case "redis":
		rc := cache.NewRedisCache(cache.NewRedisClient(cfg.RedisURL), cfg.TTL, cfg.RedisPrefix, logger)
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return nil, shopscale.NewConfigurationError("redis plan cache unreachable", err)
		}
		c.closer = append(c.closer, rc.Close)
		return rc, nil
	}
	return nil, shopscale.NewConfigurationError(fmt.Sprintf("unknown plan cache backend %q", cfg.Backend), nil)
}

func newResolver(cfg config.CatalogConfig, logger *zap.Logger) (*catalog.Resolver, error) {
	ccfg := catalog.DefaultConfig()
	ccfg.SearchURL = cfg.SearchURL
	ccfg.Country = cfg.Country
	ccfg.Locale = cfg.Locale
	ccfg.Limit = cfg.Limit
	ccfg.SortBy = cfg.SortBy
	ccfg.SortDir = cfg.SortDir
	ccfg.Timeout = cfg.Timeout
	ccfg.ForwardFilters = cfg.ForwardFilters
	if cfg.UserAgent != "" {
		ccfg.UserAgent = cfg.UserAgent
	}

	var credentials catalog.CredentialSource = catalog.StaticCredential(cfg.Cookie)
	if cfg.CookieFile != "" {
		credentials = catalog.NewFileCredential(cfg.CookieFile)
	}
	return catalog.NewResolver(ccfg, catalog.WithCredentials(credentials), catalog.WithLogger(logger))
}

func (c *container) Close() error {
	var first error
	for _, closeFn := range c.closer {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
