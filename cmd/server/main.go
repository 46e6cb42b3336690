package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/config"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/httpapi"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/logger"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/planfile"
)

func main() {
	query := flag.String("query", "", "process one query, print the result as JSON and exit")
	planPath := flag.String("plan", "", "resolve a YAML plan file and exit")
	savePlan := flag.String("save-plan", "", "with -query, extract the plan and write it to this YAML file instead of resolving it")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration: %v", err)
	}

	zl, err := logger.New(logger.Options{
		FilePath:   cfg.App.LogFilePath,
		Production: cfg.IsProduction(),
		Level:      cfg.App.LogLevel,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	if !cfg.EnvFileLoaded {
		zl.Debug("no .env file found, using the environment only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := newContainer(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			zl.Warn("shutdown", zap.Error(err))
		}
	}()

	switch {
	case *planPath != "":
		err = resolveFile(ctx, c.app, *planPath)
	case *query != "" && *savePlan != "":
		err = extractToFile(ctx, c.app, *query, *savePlan)
	case *query != "":
		err = processOnce(ctx, c.app, *query)
	default:
		err = serve(ctx, cfg, c, zl)
	}
	if err != nil {
		zl.Error("exiting with error", zap.Error(err))
		_ = c.Close()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, c *container, zl *zap.Logger) error {
	r := mux.NewRouter()
	httpapi.NewServer(c.app, zl.Named("http")).RegisterRoutes(r)

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("shopscale API listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		interval := cfg.App.AsyncRetention / 2
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := c.app.CleanupCompletedExecutions(cfg.App.AsyncRetention); n > 0 {
					zl.Debug("removed finished executions", zap.Int("count", n))
				}
				m := c.runner.Metrics()
				zl.Info("runner metrics",
					zap.Int("runs", m.Runs),
					zap.Int("steps_resolved", m.StepsResolved),
					zap.Int("steps_failed", m.StepsFailed),
					zap.Int("products", m.ProductsReturned),
				)
			}
		}
	})
	return g.Wait()
}

func processOnce(ctx context.Context, app *shopscale.ShopScale, query string) error {
	result, err := app.Process(ctx, query)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func resolveFile(ctx context.Context, app *shopscale.ShopScale, path string) error {
	plan, err := planfile.LoadAndValidate(path)
	if err != nil {
		return err
	}
	result, err := app.ResolvePlan(ctx, plan)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func extractToFile(ctx context.Context, app *shopscale.ShopScale, query, path string) error {
	plan, err := app.ExtractPlan(ctx, query)
	if err != nil {
		return err
	}
	if err := planfile.Save(path, planfile.FromPlan(query, plan)); err != nil {
		return err
	}
	fmt.Printf("wrote %d search steps to %s\n", len(plan.Steps), path)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
