package shopscale

import (
	"context"
	"errors"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ZanzyTHEbar/shopscale-genkit/internal/eventbus"
)

// ErrSuperseded is the cancellation cause of a run replaced by a newer query
// in the same session.
var ErrSuperseded = errors.New("superseded by a newer query")

// Session serialises queries from one user: submitting a query cancels the
// previous in-flight run, so at most one result per session is ever delivered.
type Session struct {
	id string
	ss *ShopScale

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelCauseFunc
}

// Session returns the session with id, creating it on first use. Idle
// sessions expire after Config.SessionTTL.
func (s *ShopScale) Session(id string) *Session {
	if v, ok := s.sessions.Get(id); ok {
		session := v.(*Session)
		s.sessions.Set(id, session, gocache.DefaultExpiration)
		return session
	}
	session := &Session{id: id, ss: s}
	if err := s.sessions.Add(id, session, gocache.DefaultExpiration); err != nil {
		// Lost a race with a concurrent creator.
		if v, ok := s.sessions.Get(id); ok {
			return v.(*Session)
		}
	}
	return session
}

// ID returns the session identifier.
func (se *Session) ID() string { return se.id }

// Submit processes query, cancelling any run this session still has in
// flight. A superseded run returns a cancelled error wrapping ErrSuperseded.
func (se *Session) Submit(ctx context.Context, query string) (*Result, error) {
	return se.submit(ctx, query, func(runCtx context.Context) (*Result, error) {
		return se.ss.Process(runCtx, query)
	})
}

// SubmitPlan resolves plan with the same supersede rule as Submit.
func (se *Session) SubmitPlan(ctx context.Context, plan *Plan) (*Result, error) {
	return se.submit(ctx, "", func(runCtx context.Context) (*Result, error) {
		return se.ss.ResolvePlan(runCtx, plan)
	})
}

func (se *Session) submit(ctx context.Context, query string, run func(context.Context) (*Result, error)) (*Result, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	se.mu.Lock()
	if se.cancel != nil {
		se.cancel(ErrSuperseded)
		eventbus.Emit(ctx, se.ss.EventBus(), eventbus.EventQuerySuperseded, query, "Session.Submit", map[string]interface{}{
			"session_id": se.id,
		})
	}
	se.seq++
	seq := se.seq
	se.cancel = cancel
	se.mu.Unlock()

	result, err := run(runCtx)

	se.mu.Lock()
	if se.seq == seq {
		se.cancel = nil
	}
	se.mu.Unlock()

	if errors.Is(context.Cause(runCtx), ErrSuperseded) {
		return nil, NewCancelledError(StageRun, ErrSuperseded)
	}
	return result, err
}

// Cancel stops the session's in-flight run, if any.
func (se *Session) Cancel() {
	se.mu.Lock()
	defer se.mu.Unlock()
	if se.cancel != nil {
		se.cancel(context.Canceled)
		se.cancel = nil
	}
}
