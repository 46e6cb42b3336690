package shopscale

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/shopscale-genkit/internal/eventbus"
)

// ProcessState represents the current state of a query execution.
type ProcessState string

const (
	// StateInit is the initial state of the process
	StateInit ProcessState = "init"
	// StateExtracting represents plan extraction
	StateExtracting ProcessState = "extracting"
	// StateResolving represents running the plan against the catalog
	StateResolving ProcessState = "resolving"
	// StateError represents an error state
	StateError ProcessState = "error"
	// StateComplete represents the completed state
	StateComplete ProcessState = "complete"
	// StateCancelled represents the cancelled state
	StateCancelled ProcessState = "cancelled"
	// StateUnknown is used when the status of an async execution cannot be determined.
	StateUnknown ProcessState = "unknown"
)

// ProcessContext carries one query through the state machine. It acts as the
// tape of the pushdown automaton; the state stack records the path taken.
type ProcessContext struct {
	Query string

	// Plan is set by extraction, or up front when resolving a supplied plan.
	Plan      *Plan
	Aggregate *Aggregate
	Result    *Result

	LastError  error
	ErrorStage string

	CurrentState ProcessState
	StateStack   []ProcessState
	StateData    map[string]interface{}

	StartTime       time.Time
	EndTime         time.Time
	StateStartTimes map[ProcessState]time.Time

	mu sync.RWMutex
}

// NewProcessContext creates a new process context with the given query.
func NewProcessContext(query string) *ProcessContext {
	return &ProcessContext{
		Query:           query,
		CurrentState:    StateInit,
		StateStack:      []ProcessState{},
		StateData:       make(map[string]interface{}),
		StartTime:       time.Now(),
		StateStartTimes: map[ProcessState]time.Time{StateInit: time.Now()},
	}
}

// PushState pushes the current state onto the stack and sets a new current state.
func (pc *ProcessContext) PushState(state ProcessState) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.pushLocked(state)
}

func (pc *ProcessContext) pushLocked(state ProcessState) {
	pc.StateStack = append(pc.StateStack, pc.CurrentState)
	pc.CurrentState = state
	pc.StateStartTimes[state] = time.Now()
}

// PopState pops the top state from the stack and sets it as the current state.
// Returns false if the stack is empty.
func (pc *ProcessContext) PopState() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if len(pc.StateStack) == 0 {
		return false
	}
	lastIdx := len(pc.StateStack) - 1
	pc.CurrentState = pc.StateStack[lastIdx]
	pc.StateStack = pc.StateStack[:lastIdx]
	pc.StateStartTimes[pc.CurrentState] = time.Now()
	return true
}

// State returns the current state.
func (pc *ProcessContext) State() ProcessState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.CurrentState
}

// History returns the states visited before the current one, oldest first.
func (pc *ProcessContext) History() []ProcessState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make([]ProcessState, len(pc.StateStack))
	copy(out, pc.StateStack)
	return out
}

// IsTerminal checks if the current state is a terminal state (Complete, Error, Cancelled).
func (pc *ProcessContext) IsTerminal() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.terminalLocked()
}

func (pc *ProcessContext) terminalLocked() bool {
	return pc.CurrentState == StateComplete || pc.CurrentState == StateError || pc.CurrentState == StateCancelled
}

// SetError records err and moves to StateError. A terminal context is left as is.
func (pc *ProcessContext) SetError(err error, stage string) {
	pc.finish(StateError, err, stage)
}

// SetCancelled records the cancellation and moves to StateCancelled. A terminal context is left as is.
func (pc *ProcessContext) SetCancelled(err error, stage string) {
	pc.finish(StateCancelled, err, stage)
}

// Complete marks the process as complete and sets the end time.
func (pc *ProcessContext) Complete() {
	pc.finish(StateComplete, nil, "")
}

func (pc *ProcessContext) finish(state ProcessState, err error, stage string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.terminalLocked() {
		return
	}
	pc.LastError = err
	pc.ErrorStage = stage
	pc.pushLocked(state)
	pc.EndTime = time.Now()
}

// advance moves to next unless the context already reached a terminal state.
func (pc *ProcessContext) advance(next ProcessState) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.terminalLocked() {
		return
	}
	if next == StateComplete {
		pc.EndTime = time.Now()
	}
	pc.pushLocked(next)
}

// Finished returns the result and error, and whether the context is terminal.
func (pc *ProcessContext) Finished() (*Result, bool, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if pc.CurrentState != StateComplete {
		return nil, pc.terminalLocked(), pc.LastError
	}
	return pc.Result, true, pc.LastError
}

// GetStateDuration returns the time spent in state so far, or zero when it was
// never entered or is no longer current.
func (pc *ProcessContext) GetStateDuration(state ProcessState) time.Duration {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	startTime, ok := pc.StateStartTimes[state]
	if !ok || state != pc.CurrentState {
		return 0
	}
	return time.Since(startTime)
}

// GetTotalDuration returns the total duration of the process so far.
func (pc *ProcessContext) GetTotalDuration() time.Duration {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if !pc.EndTime.IsZero() {
		return pc.EndTime.Sub(pc.StartTime)
	}
	return time.Since(pc.StartTime)
}

// StateTransition defines a transition function for the state machine.
type StateTransition func(ctx context.Context, eventBus eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error)

// StateMachine represents a finite state machine for query execution.
type StateMachine struct {
	transitions map[ProcessState]StateTransition
	eventBus    eventbus.EventBus
}

// NewStateMachine creates a new state machine with the provided transitions.
func NewStateMachine(eventBus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[ProcessState]StateTransition),
		eventBus:    eventBus,
	}
}

// RegisterTransition registers a state transition function.
func (sm *StateMachine) RegisterTransition(state ProcessState, transition StateTransition) {
	sm.transitions[state] = transition
}

// Execute runs the state machine until a terminal state.
func (sm *StateMachine) Execute(ctx context.Context, pCtx *ProcessContext) (*Result, error) {
	for !pCtx.IsTerminal() {
		current := pCtx.State()
		if err := ContextError(ctx, string(current)); err != nil {
			pCtx.SetCancelled(err, string(current))
			break
		}

		transition, exists := sm.transitions[current]
		if !exists {
			pCtx.SetError(NewInternalError(string(current), "no transition defined for state "+string(current), nil), string(current))
			break
		}

		nextState, err := transition(ctx, sm.eventBus, pCtx)
		if err != nil {
			if IsCancelled(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				pCtx.SetCancelled(err, string(current))
			} else {
				pCtx.SetError(err, string(current))
			}
			continue
		}
		pCtx.advance(nextState)
	}

	result, _, err := pCtx.Finished()
	if err != nil {
		return nil, err
	}
	return result, nil
}
