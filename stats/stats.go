// Package stats tallies result-bearing run events into a summary. The
// aggregator subscribes to the orchestrator's event bus, so it counts
// passthrough events from per-browser runners and events emitted directly
// on the orchestrator identically.
package stats

import (
	"context"
	"sync"

	"github.com/krzysztoffpl/gemini/events"
	"github.com/krzysztoffpl/gemini/types"
)

// Aggregator accumulates a running RunSummary from bus events.
type Aggregator struct {
	mu      sync.Mutex
	summary types.RunSummary
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		summary: types.RunSummary{PerBrowser: make(map[string]types.BrowserSummary)},
	}
}

// AttachRunner subscribes the aggregator to an orchestrator's event bus.
// Must be called before the run starts.
func (a *Aggregator) AttachRunner(bus *events.Bus) {
	bus.Subscribe(events.KindError, a.handle)
	bus.Subscribe(events.KindTestResult, a.handle)
	bus.Subscribe(events.KindUpdateResult, a.handle)
	bus.Subscribe(events.KindSkipState, a.handle)
	bus.Subscribe(events.KindRetry, a.handle)
}

func (a *Aggregator) handle(_ context.Context, ev events.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	browserID := browserOf(ev)
	per := a.summary.PerBrowser[browserID]

	switch ev.Kind {
	case events.KindError:
		a.summary.Total++
		a.summary.Errored++
		per.Errored++
	case events.KindUpdateResult:
		a.summary.Total++
		a.summary.Updated++
		per.Updated++
	case events.KindTestResult:
		a.summary.Total++
		if p, ok := ev.Payload.(events.ResultPayload); ok && !p.Equal {
			a.summary.Failed++
			per.Failed++
		} else {
			a.summary.Passed++
			per.Passed++
		}
	case events.KindSkipState:
		a.summary.Skipped++
		per.Skipped++
	case events.KindRetry:
		a.summary.Retries++
		per.Retries++
	}

	a.summary.PerBrowser[browserID] = per
}

// GetResult returns a snapshot of the current tally.
func (a *Aggregator) GetResult() types.RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.summary
	out.PerBrowser = make(map[string]types.BrowserSummary, len(a.summary.PerBrowser))
	for id, per := range a.summary.PerBrowser {
		out.PerBrowser[id] = per
	}
	return out
}

func browserOf(ev events.Event) string {
	switch p := ev.Payload.(type) {
	case events.ResultPayload:
		return p.BrowserID
	case events.StatePayload:
		return p.BrowserID
	case events.RetryPayload:
		return p.BrowserID
	}
	return ""
}
