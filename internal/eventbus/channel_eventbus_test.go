package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestChannelEventBus_PublishAndSubscribe(t *testing.T) {
	eb := NewChannelEventBus(
		WithBufferSize(1),
		WithWorkerCount(1),
		WithRetries(1, 10*time.Millisecond),
	)
	defer eb.Close()

	received := make(chan EventType, 1)
	handler := func(ctx context.Context, event Event) error {
		received <- event.Type()
		return nil
	}
	if _, err := eb.Subscribe([]EventType{EventStepResolutionSuccess}, handler); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := eb.Publish(context.Background(), NewEvent(EventStepResolutionSuccess, nil, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case typ := <-received:
		if typ != EventStepResolutionSuccess {
			t.Errorf("expected event type %v, got %v", EventStepResolutionSuccess, typ)
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for event handler")
	}
}

func TestChannelEventBus_SubscribeAllSeesEveryType(t *testing.T) {
	eb := NewChannelEventBus(WithWorkerCount(1))
	defer eb.Close()

	received := make(chan EventType, 2)
	if _, err := eb.SubscribeAll(func(ctx context.Context, event Event) error {
		received <- event.Type()
		return nil
	}); err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	_ = eb.Publish(context.Background(), NewEmptyEvent(EventRunStarted))
	_ = eb.Publish(context.Background(), NewEmptyEvent(EventRunCompleted))

	for _, want := range []EventType{EventRunStarted, EventRunCompleted} {
		select {
		case got := <-received:
			if got != want {
				t.Errorf("expected %v, got %v", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %v", want)
		}
	}
}

func TestChannelEventBus_HandlerRetry(t *testing.T) {
	eb := NewChannelEventBus(
		WithBufferSize(1),
		WithWorkerCount(1),
		WithRetries(2, 10*time.Millisecond),
	)
	defer eb.Close()

	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})
	handler := func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}
	if _, err := eb.Subscribe([]EventType{EventStepResolutionFailure}, handler); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := eb.Publish(context.Background(), NewEvent(EventStepResolutionFailure, nil, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not retried")
	}
	mu.Lock()
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	mu.Unlock()
}

func TestChannelEventBus_ContextCancellation(t *testing.T) {
	eb := NewChannelEventBus(
		WithBufferSize(1),
		WithWorkerCount(1),
		WithRetries(1, 10*time.Millisecond),
	)
	defer eb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan struct{}, 1)
	handler := func(ctx context.Context, event Event) error {
		received <- struct{}{}
		return nil
	}
	if _, err := eb.Subscribe([]EventType{EventStepResolutionStarted}, handler); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	cancel()
	if err := eb.Publish(ctx, NewEvent(EventStepResolutionStarted, nil, "test", nil)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	select {
	case <-received:
		t.Error("handler should not be called after context cancellation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelEventBus_QueuedEventOutlivesPublisherContext(t *testing.T) {
	eb := NewChannelEventBus(WithBufferSize(2), WithWorkerCount(1))
	defer eb.Close()

	gate := make(chan struct{})
	received := make(chan EventType, 2)
	handler := func(ctx context.Context, event Event) error {
		if event.Type() == EventRunStarted {
			<-gate
		}
		if ctx.Err() != nil {
			t.Errorf("handler for %v got a done context", event.Type())
		}
		received <- event.Type()
		return nil
	}
	if _, err := eb.SubscribeAll(handler); err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	// The only worker is held on the first event, so the second stays queued
	// while its publisher's context ends.
	if err := eb.Publish(context.Background(), NewEmptyEvent(EventRunStarted)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := eb.Publish(ctx, NewEmptyEvent(EventRunCompleted)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	cancel()
	close(gate)

	for _, want := range []EventType{EventRunStarted, EventRunCompleted} {
		select {
		case got := <-received:
			if got != want {
				t.Errorf("expected %v, got %v", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("%v was not delivered", want)
		}
	}
}

func TestChannelEventBus_Unsubscribe(t *testing.T) {
	eb := NewChannelEventBus(WithWorkerCount(1))
	defer eb.Close()

	received := make(chan struct{}, 1)
	id, err := eb.Subscribe([]EventType{EventRunStarted}, func(ctx context.Context, event Event) error {
		received <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := eb.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	_ = eb.Publish(context.Background(), NewEmptyEvent(EventRunStarted))
	select {
	case <-received:
		t.Error("unsubscribed handler was called")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelEventBus_ClosedRejectsPublish(t *testing.T) {
	eb := NewChannelEventBus()
	if err := eb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := eb.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := eb.Publish(context.Background(), NewEmptyEvent(EventRunStarted)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := eb.SubscribeAll(func(context.Context, Event) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestEmit_NilBusIsNoop(t *testing.T) {
	Emit(context.Background(), nil, EventRunStarted, nil, "test", nil)
}
