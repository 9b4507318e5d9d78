package events

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Handler consumes one event. Handlers run synchronously on the emitting
// goroutine: Emit does not return until every handler has returned, which
// is the one barrier subscribers can rely on for setup and teardown around
// the StartRunner and EndRunner events.
type Handler func(ctx context.Context, ev Event)

// Bus is the orchestrator-owned event stream. Subscriptions must be set up
// before the run starts; Emit may be called from multiple goroutines but
// delivers each event's handlers sequentially.
type Bus struct {
	log log.Logger

	mu     sync.RWMutex
	byKind map[Kind][]Handler
	all    []Handler
}

// NewBus creates an empty Bus.
func NewBus(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.New()
	}
	return &Bus{
		log:    logger.New("component", "event-bus"),
		byKind: make(map[Kind][]Handler),
	}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byKind[kind] = append(b.byKind[kind], h)
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Emit delivers ev to every matching handler and returns once all of them
// have completed. A panicking handler is recovered and logged; observer
// failures never affect the run itself.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.all)+len(b.byKind[ev.Kind]))
	handlers = append(handlers, b.byKind[ev.Kind]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, ev, h)
	}
}

func (b *Bus) deliver(ctx context.Context, ev Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event handler panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	h(ctx, ev)
}
