package shopscale

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/shopscale-genkit/internal/eventbus"
)

// AsyncExecutionStatus represents the status information for an async execution.
type AsyncExecutionStatus struct {
	ExecutionID  string         `json:"execution_id"`
	Query        string         `json:"query"`
	CurrentState ProcessState   `json:"current_state"`
	History      []ProcessState `json:"history"`
	StartTime    time.Time      `json:"start_time"`
	Duration     time.Duration  `json:"duration"`
	IsComplete   bool           `json:"is_complete"`
	HasError     bool           `json:"has_error"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorStage   string         `json:"error_stage,omitempty"`
}

// ProcessAsync starts processing query in the background and returns an
// execution ID for GetAsyncStatus, GetAsyncResult and CancelAsyncProcess. The
// execution outlives ctx; only CancelAsyncProcess or Close stop it.
func (s *ShopScale) ProcessAsync(ctx context.Context, query string) (string, error) {
	return s.startAsync(ctx, NewProcessContext(query))
}

// ResolvePlanAsync is the asynchronous form of ResolvePlan.
func (s *ShopScale) ResolvePlanAsync(ctx context.Context, plan *Plan) (string, error) {
	if plan == nil || !plan.Intent.Valid() {
		return "", NewValidationError(StageAsync, "a plan with a recognised intent is required", nil)
	}
	pCtx := NewProcessContext("")
	pCtx.Plan = plan
	return s.startAsync(ctx, pCtx)
}

func (s *ShopScale) startAsync(ctx context.Context, pCtx *ProcessContext) (string, error) {
	executionID := uuid.New().String()

	asyncCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pCtx.StateData["cancel"] = cancel
	pCtx.StateData["execution_id"] = executionID

	s.asyncExecutionsMutex.Lock()
	s.asyncExecutions[executionID] = pCtx
	s.asyncExecutionsMutex.Unlock()

	eventbus.Emit(ctx, s.EventBus(), eventbus.EventQueryAsyncProcessingStarted, pCtx.Query, "ShopScale.ProcessAsync", map[string]interface{}{
		"timestamp":    time.Now().Format(time.RFC3339),
		"execution_id": executionID,
	})

	go func() {
		defer cancel()

		_, err := s.execute(asyncCtx, pCtx)

		eventType := eventbus.EventQueryAsyncProcessingSuccess
		metadata := map[string]interface{}{
			"execution_id": executionID,
			"duration_ms":  pCtx.GetTotalDuration().Milliseconds(),
		}
		switch {
		case pCtx.State() == StateCancelled:
			eventType = eventbus.EventQueryAsyncProcessingCancelled
		case err != nil:
			eventType = eventbus.EventQueryAsyncProcessingFailure
			metadata["error"] = err.Error()
			metadata["error_stage"] = pCtx.ErrorStage
		}
		eventbus.Emit(context.Background(), s.EventBus(), eventType, pCtx.Query, "ShopScale.ProcessAsync", metadata)
	}()

	return executionID, nil
}

func (s *ShopScale) lookupAsync(executionID string) (*ProcessContext, error) {
	s.asyncExecutionsMutex.RLock()
	defer s.asyncExecutionsMutex.RUnlock()

	pCtx, exists := s.asyncExecutions[executionID]
	if !exists {
		return nil, NewNotFoundError(StageAsync, fmt.Sprintf("execution with ID '%s' not found", executionID))
	}
	return pCtx, nil
}

// GetAsyncStatus retrieves the current status of an async execution.
func (s *ShopScale) GetAsyncStatus(executionID string) (*AsyncExecutionStatus, error) {
	pCtx, err := s.lookupAsync(executionID)
	if err != nil {
		return nil, err
	}

	_, _, lastErr := pCtx.Finished()
	state := pCtx.State()
	status := &AsyncExecutionStatus{
		ExecutionID:  executionID,
		Query:        pCtx.Query,
		CurrentState: state,
		History:      pCtx.History(),
		StartTime:    pCtx.StartTime,
		Duration:     pCtx.GetTotalDuration(),
		IsComplete:   state == StateComplete,
		HasError:     state == StateError || state == StateCancelled,
	}
	if lastErr != nil {
		status.ErrorMessage = lastErr.Error()
		pCtx.mu.RLock()
		status.ErrorStage = pCtx.ErrorStage
		pCtx.mu.RUnlock()
	}
	return status, nil
}

// GetAsyncResult retrieves the result of a finished async execution. It
// returns the execution's own error when it failed or was cancelled.
func (s *ShopScale) GetAsyncResult(executionID string) (*Result, error) {
	pCtx, err := s.lookupAsync(executionID)
	if err != nil {
		return nil, err
	}

	result, done, lastErr := pCtx.Finished()
	if !done {
		return nil, NewError(ErrCodePending, StageAsync,
			fmt.Sprintf("execution is still in progress (current state: %s)", pCtx.State()), nil)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

// CancelAsyncProcess cancels an ongoing async execution. It returns true if
// the execution was cancelled, false if it had already finished.
func (s *ShopScale) CancelAsyncProcess(executionID string) (bool, error) {
	pCtx, err := s.lookupAsync(executionID)
	if err != nil {
		return false, err
	}
	if pCtx.IsTerminal() {
		return false, nil
	}

	cancelFn, ok := pCtx.StateData["cancel"].(context.CancelFunc)
	if !ok {
		return false, NewInternalError(StageAsync, "cannot cancel execution: cancel function not found", nil)
	}
	cancelFn()
	pCtx.SetCancelled(NewCancelledError(StageAsync, fmt.Errorf("cancelled by user")), StageAsync)

	eventbus.Emit(context.Background(), s.EventBus(), eventbus.EventQueryAsyncProcessingCancelled, pCtx.Query, "ShopScale.CancelAsyncProcess", map[string]interface{}{
		"execution_id": executionID,
		"duration_ms":  pCtx.GetTotalDuration().Milliseconds(),
	})
	return true, nil
}

// ListAsyncExecutions returns all async execution IDs and their current states.
func (s *ShopScale) ListAsyncExecutions() map[string]string {
	s.asyncExecutionsMutex.RLock()
	defer s.asyncExecutionsMutex.RUnlock()

	result := make(map[string]string, len(s.asyncExecutions))
	for id, pCtx := range s.asyncExecutions {
		result[id] = string(pCtx.State())
	}
	return result
}

// CleanupCompletedExecutions removes finished executions that ended more than
// olderThan ago and returns how many were removed.
func (s *ShopScale) CleanupCompletedExecutions(olderThan time.Duration) int {
	s.asyncExecutionsMutex.Lock()
	defer s.asyncExecutionsMutex.Unlock()

	now := time.Now()
	count := 0
	for id, pCtx := range s.asyncExecutions {
		if !pCtx.IsTerminal() {
			continue
		}
		pCtx.mu.RLock()
		ended := pCtx.EndTime
		pCtx.mu.RUnlock()
		if now.Sub(ended) > olderThan {
			delete(s.asyncExecutions, id)
			count++
		}
	}
	return count
}
