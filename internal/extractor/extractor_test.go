package extractor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/cache"
)

type dummyGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	delay   time.Duration
	calls   int
	prompts []string
}

func (d *dummyGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	d.mu.Lock()
	d.calls++
	d.prompts = append(d.prompts, prompt)
	d.mu.Unlock()

	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return d.reply, d.err
}

func TestExtract_ShoppingScenario(t *testing.T) {
	gen := &dummyGenerator{reply: shoppingReply}
	ex, err := New(gen)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	query := "Buy 1kg sugar of MDH under 100 aed, and 2kg tur dal from same brand"
	plan, err := ex.Extract(context.Background(), query)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if plan.Intent != shopscale.IntentShopping || len(plan.Steps) != 2 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if plan.Steps[0].Filters["maxPrice"] != "100" || plan.Steps[1].Filters["brand"] != "MDH" {
		t.Errorf("unexpected filters: %+v", plan.Steps)
	}
	if !strings.Contains(gen.prompts[0], query) {
		t.Error("expected prompt to embed the query")
	}
}

func TestExtract_BlankQuery(t *testing.T) {
	gen := &dummyGenerator{reply: planningReply}
	ex, _ := New(gen)
	_, err := ex.Extract(context.Background(), "   ")
	if !shopscale.IsCode(err, shopscale.ErrCodeExtraction) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
	if gen.calls != 0 {
		t.Error("generator should not be called for a blank query")
	}
}

func TestExtract_GeneratorErrorIsExtractionFailure(t *testing.T) {
	ex, _ := New(&dummyGenerator{err: errors.New("503 from provider")})
	_, err := ex.Extract(context.Background(), "plan a picnic")
	if !shopscale.IsCode(err, shopscale.ErrCodeExtraction) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
}

func TestExtract_TimeoutIsExtractionFailure(t *testing.T) {
	ex, _ := New(&dummyGenerator{reply: planningReply, delay: time.Second}, WithTimeout(20*time.Millisecond))
	_, err := ex.Extract(context.Background(), "plan a picnic")
	if !shopscale.IsCode(err, shopscale.ErrCodeExtraction) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
}

func TestExtract_CallerCancellation(t *testing.T) {
	ex, _ := New(&dummyGenerator{reply: planningReply, delay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := ex.Extract(ctx, "plan a picnic")
	if !shopscale.IsCode(err, shopscale.ErrCodeCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestExtract_UnparseableReply(t *testing.T) {
	ex, _ := New(&dummyGenerator{reply: "Sorry, I can't help with that."})
	_, err := ex.Extract(context.Background(), "what's the weather")
	if !shopscale.IsCode(err, shopscale.ErrCodeExtraction) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
}

func TestExtract_ZeroStepsIsNotAFailure(t *testing.T) {
	ex, _ := New(&dummyGenerator{reply: "intent: planning\nsearch_steps:"})
	plan, err := ex.Extract(context.Background(), "plan nothing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %+v", plan.Steps)
	}
}

func TestExtract_CacheReusesPlan(t *testing.T) {
	gen := &dummyGenerator{reply: planningReply}
	ex, _ := New(gen, WithCache(cache.NewInMemoryCache(time.Minute, nil)))
	ctx := context.Background()

	first, err := ex.Extract(ctx, "Help me plan a kids birthday party")
	if err != nil {
		t.Fatalf("first Extract failed: %v", err)
	}
	second, err := ex.Extract(ctx, "help me plan a kids  birthday party")
	if err != nil {
		t.Fatalf("second Extract failed: %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("expected 1 generator call, got %d", gen.calls)
	}
	if len(second.Steps) != len(first.Steps) || second.Steps[4].SearchText != "colorful paper plates" {
		t.Errorf("cached plan differs: %+v", second.Steps)
	}
}

func TestExtract_EmptyPlanIsNotCached(t *testing.T) {
	gen := &dummyGenerator{reply: "intent: shopping"}
	ex, _ := New(gen, WithCache(cache.NewInMemoryCache(time.Minute, nil)))
	for i := 0; i < 2; i++ {
		if _, err := ex.Extract(context.Background(), "buy something"); err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
	}
	if gen.calls != 2 {
		t.Errorf("expected 2 generator calls, got %d", gen.calls)
	}
}

func TestNew_RequiresGenerator(t *testing.T) {
	if _, err := New(nil); !shopscale.IsCode(err, shopscale.ErrCodeConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
