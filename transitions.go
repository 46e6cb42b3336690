package shopscale

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/shopscale-genkit/internal/eventbus"
)

// Components holds the collaborators the state transitions call.
type Components struct {
	Extractor Extractor
	Runner    Runner
	Logger    *zap.Logger
}

// CreateProcessStateMachine builds the state machine for the query workflow:
// init -> extracting -> resolving -> complete. A supplied plan skips extraction
// and an empty plan skips resolution.
func CreateProcessStateMachine(components Components, eventBus eventbus.EventBus) *StateMachine {
	if components.Logger == nil {
		components.Logger = zap.NewNop()
	}
	sm := NewStateMachine(eventBus)
	sm.RegisterTransition(StateInit, createInitTransition(components))
	sm.RegisterTransition(StateExtracting, createExtractingTransition(components))
	sm.RegisterTransition(StateResolving, createResolvingTransition(components))
	return sm
}

func createInitTransition(_ Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		eventbus.Emit(ctx, eb, eventbus.EventQueryProcessingStarted, pCtx.Query, "StateMachine.Init", map[string]interface{}{
			"timestamp":     time.Now().Format(time.RFC3339),
			"supplied_plan": pCtx.Plan != nil,
		})
		if pCtx.Plan != nil {
			return StateResolving, nil
		}
		return StateExtracting, nil
	}
}

func createExtractingTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		plan, err := components.Extractor.Extract(ctx, pCtx.Query)
		if err != nil {
			if !IsCancelled(err) {
				components.Logger.Error("query processing failed", zap.String("stage", StageExtraction), zap.Error(err))
				eventbus.Emit(ctx, eb, eventbus.EventQueryProcessingFailure, pCtx.Query, "StateMachine.Extracting", map[string]interface{}{
					"error": err.Error(),
					"stage": StageExtraction,
				})
			}
			return StateError, err
		}
		pCtx.Plan = plan

		if plan.Empty() {
			pCtx.Aggregate = &Aggregate{Products: []ProductRecord{}, Steps: []StepReport{}}
			pCtx.Result = newResult(pCtx)
			emitSuccess(ctx, eb, pCtx)
			return StateComplete, nil
		}
		return StateResolving, nil
	}
}

func createResolvingTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		agg, err := components.Runner.Run(ctx, pCtx.Plan)
		if err != nil {
			return StateError, err
		}
		pCtx.Aggregate = agg
		pCtx.Result = newResult(pCtx)
		emitSuccess(ctx, eb, pCtx)
		return StateComplete, nil
	}
}

func newResult(pCtx *ProcessContext) *Result {
	return &Result{
		Query:     pCtx.Query,
		Plan:      pCtx.Plan,
		Aggregate: pCtx.Aggregate,
		Message:   Summary(pCtx.Plan, pCtx.Aggregate),
	}
}

func emitSuccess(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) {
	eventbus.Emit(ctx, eb, eventbus.EventQueryProcessingSuccess, pCtx.Result, "StateMachine.Complete", map[string]interface{}{
		"outcome":     string(pCtx.Aggregate.Outcome()),
		"products":    len(pCtx.Aggregate.Products),
		"duration_ms": pCtx.GetTotalDuration().Milliseconds(),
	})
}
