package events

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeByKind(t *testing.T) {
	bus := NewBus(log.New())

	var got []Kind
	bus.Subscribe(KindTestResult, func(_ context.Context, ev Event) {
		got = append(got, ev.Kind)
	})

	bus.Emit(context.Background(), Event{Kind: KindTestResult})
	bus.Emit(context.Background(), Event{Kind: KindError})
	bus.Emit(context.Background(), Event{Kind: KindTestResult})

	assert.Equal(t, []Kind{KindTestResult, KindTestResult}, got)
}

func TestBus_SubscribeAllSeesEveryKind(t *testing.T) {
	bus := NewBus(log.New())

	var got []Kind
	bus.SubscribeAll(func(_ context.Context, ev Event) {
		got = append(got, ev.Kind)
	})

	emitted := []Kind{KindStartRunner, KindBegin, KindTestResult, KindEnd, KindEndRunner}
	for _, k := range emitted {
		bus.Emit(context.Background(), Event{Kind: k})
	}
	assert.Equal(t, emitted, got)
}

// TestBus_EmitIsSynchronous verifies Emit returns only after every handler
// has completed, which is the barrier run teardown relies on.
func TestBus_EmitIsSynchronous(t *testing.T) {
	bus := NewBus(log.New())

	handled := false
	bus.Subscribe(KindEndRunner, func(_ context.Context, ev Event) {
		handled = true
	})

	bus.Emit(context.Background(), Event{Kind: KindEndRunner})
	require.True(t, handled, "Emit must not return before handlers complete")
}

func TestBus_HandlerOrderIsSubscriptionOrder(t *testing.T) {
	bus := NewBus(log.New())

	var order []int
	for i := range 3 {
		bus.Subscribe(KindBegin, func(_ context.Context, ev Event) {
			order = append(order, i)
		})
	}
	bus.Emit(context.Background(), Event{Kind: KindBegin})
	assert.Equal(t, []int{0, 1, 2}, order)
}

// TestBus_PanickingHandlerIsIsolated verifies a failing observer never takes
// down the emitter or the remaining handlers.
func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus(log.New())

	bus.Subscribe(KindError, func(_ context.Context, ev Event) {
		panic("observer bug")
	})
	survived := false
	bus.Subscribe(KindError, func(_ context.Context, ev Event) {
		survived = true
	})

	require.NotPanics(t, func() {
		bus.Emit(context.Background(), Event{Kind: KindError})
	})
	assert.True(t, survived, "handlers after the panicking one must still run")
}

func TestKind_Classification(t *testing.T) {
	assert.True(t, KindTestResult.IsPassthrough())
	assert.True(t, KindError.IsPassthrough())
	assert.False(t, KindBegin.IsPassthrough())
	assert.False(t, KindEndRunner.IsPassthrough())

	assert.True(t, KindTestResult.IsResult())
	assert.True(t, KindUpdateResult.IsResult())
	assert.True(t, KindError.IsResult())
	assert.False(t, KindSkipState.IsResult())
}
