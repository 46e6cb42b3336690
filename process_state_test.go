package shopscale

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type dummyExtractor struct {
	plan  *Plan
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (d *dummyExtractor) Extract(ctx context.Context, query string) (*Plan, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ContextError(ctx, StageExtraction)
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.plan != nil {
		return d.plan, nil
	}
	return &Plan{Intent: IntentShopping, Steps: []SearchDirective{{SearchText: query}}}, nil
}

func (d *dummyExtractor) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type dummyRunner struct {
	err   error
	delay time.Duration
}

func (d *dummyRunner) Run(ctx context.Context, plan *Plan) (*Aggregate, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ContextError(ctx, StageRun)
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	agg := &Aggregate{Products: []ProductRecord{}, Steps: []StepReport{}}
	for i, step := range plan.Steps {
		agg.Products = append(agg.Products, ProductRecord{SKU: step.SearchText, SourceDirective: i})
		agg.Steps = append(agg.Steps, StepReport{Index: i, Directive: step, Status: StepResolved, Count: 1})
	}
	return agg, nil
}

func components(e Extractor, r Runner) Components {
	return Components{Extractor: e, Runner: r}
}

func TestStateMachine_Execute_Success(t *testing.T) {
	sm := CreateProcessStateMachine(components(&dummyExtractor{}, &dummyRunner{}), nil)
	pCtx := NewProcessContext("basmati rice")

	result, err := sm.Execute(context.Background(), pCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || len(result.Aggregate.Products) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Message != "Top product recommendations" {
		t.Errorf("message = %q", result.Message)
	}
	want := []ProcessState{StateInit, StateExtracting, StateResolving}
	if got := pCtx.History(); !equalStates(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
	if pCtx.State() != StateComplete {
		t.Errorf("state = %v", pCtx.State())
	}
}

func TestStateMachine_Execute_EmptyPlanSkipsResolution(t *testing.T) {
	runner := &dummyRunner{err: errors.New("runner must not be called")}
	sm := CreateProcessStateMachine(components(&dummyExtractor{plan: &Plan{Intent: IntentPlanning}}, runner), nil)
	pCtx := NewProcessContext("hmm")

	result, err := sm.Execute(context.Background(), pCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Aggregate.Outcome() != OutcomeNoSteps {
		t.Errorf("outcome = %v", result.Aggregate.Outcome())
	}
	if got := pCtx.History(); !equalStates(got, []ProcessState{StateInit, StateExtracting}) {
		t.Errorf("history = %v", got)
	}
}

func TestStateMachine_Execute_SuppliedPlanSkipsExtraction(t *testing.T) {
	extractor := &dummyExtractor{}
	sm := CreateProcessStateMachine(components(extractor, &dummyRunner{}), nil)
	pCtx := NewProcessContext("")
	pCtx.Plan = &Plan{Intent: IntentRecipe, Steps: []SearchDirective{{SearchText: "ghee"}, {SearchText: "saffron"}}}

	result, err := sm.Execute(context.Background(), pCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extractor.callCount() != 0 {
		t.Error("extractor called for a supplied plan")
	}
	if len(result.Aggregate.Products) != 2 || result.Aggregate.Products[1].SKU != "saffron" {
		t.Errorf("products = %+v", result.Aggregate.Products)
	}
}

func TestStateMachine_Execute_ExtractionFailure(t *testing.T) {
	sm := CreateProcessStateMachine(components(&dummyExtractor{err: NewExtractionError("no intent", nil)}, &dummyRunner{}), nil)
	pCtx := NewProcessContext("test query")

	result, err := sm.Execute(context.Background(), pCtx)
	if !IsExtractionFailure(err) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
	if result != nil {
		t.Errorf("expected no result, got %+v", result)
	}
	if pCtx.State() != StateError || pCtx.ErrorStage != string(StateExtracting) {
		t.Errorf("state = %v, stage = %q", pCtx.State(), pCtx.ErrorStage)
	}
}

func TestStateMachine_Execute_ErrorStateIsTerminal(t *testing.T) {
	sm := CreateProcessStateMachine(components(&dummyExtractor{}, &dummyRunner{}), nil)
	pCtx := NewProcessContext("test query")
	pCtx.SetError(errors.New("fail"), "extracting")

	result, err := sm.Execute(context.Background(), pCtx)
	if err == nil {
		t.Error("expected error for error state, got nil")
	}
	if result != nil {
		t.Errorf("expected no result, got %+v", result)
	}
}

func TestStateMachine_Execute_Cancellation(t *testing.T) {
	sm := CreateProcessStateMachine(components(&dummyExtractor{}, &dummyRunner{}), nil)
	pCtx := NewProcessContext("test query")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := sm.Execute(ctx, pCtx)
	if !IsCode(err, ErrCodeCancelled) {
		t.Errorf("expected cancelled error, got %v", err)
	}
	if result != nil {
		t.Errorf("expected no result, got %+v", result)
	}
	if pCtx.State() != StateCancelled {
		t.Errorf("state = %v", pCtx.State())
	}
}

func TestStateMachine_Execute_CancelledDuringResolution(t *testing.T) {
	sm := CreateProcessStateMachine(components(&dummyExtractor{}, &dummyRunner{delay: time.Second}), nil)
	pCtx := NewProcessContext("test query")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := sm.Execute(ctx, pCtx); !IsCode(err, ErrCodeTimeout) {
		t.Errorf("expected timeout error, got %v", err)
	}
	if pCtx.State() != StateCancelled || pCtx.ErrorStage != string(StateResolving) {
		t.Errorf("state = %v, stage = %q", pCtx.State(), pCtx.ErrorStage)
	}
}

func TestStateMachine_MissingTransition(t *testing.T) {
	sm := NewStateMachine(nil)
	if _, err := sm.Execute(context.Background(), NewProcessContext("q")); !IsCode(err, ErrCodeInternal) {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestProcessContext_PushPop(t *testing.T) {
	pCtx := NewProcessContext("q")
	pCtx.PushState(StateExtracting)
	pCtx.PushState(StateResolving)
	if !pCtx.PopState() || pCtx.State() != StateExtracting {
		t.Errorf("state after pop = %v", pCtx.State())
	}
	if !pCtx.PopState() || pCtx.State() != StateInit {
		t.Errorf("state after second pop = %v", pCtx.State())
	}
	if pCtx.PopState() {
		t.Error("pop on empty stack should fail")
	}
}

func TestProcessContext_TerminalIsSticky(t *testing.T) {
	pCtx := NewProcessContext("q")
	pCtx.SetCancelled(context.Canceled, "resolving")
	pCtx.SetError(errors.New("late"), "resolving")
	pCtx.Complete()
	if pCtx.State() != StateCancelled || !errors.Is(pCtx.LastError, context.Canceled) {
		t.Errorf("state = %v, err = %v", pCtx.State(), pCtx.LastError)
	}
	if pCtx.EndTime.IsZero() {
		t.Error("expected end time to be set")
	}
}

func equalStates(a, b []ProcessState) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
