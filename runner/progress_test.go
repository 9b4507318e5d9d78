package runner

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"

	"github.com/krzysztoffpl/gemini/events"
	"github.com/krzysztoffpl/gemini/types"
)

func TestProgressTracker_TracksStateCompletion(t *testing.T) {
	tracker := NewProgressTracker(log.New(), time.Hour)
	defer tracker.Stop()

	bus := events.NewBus(log.New())
	tracker.AttachRunner(bus)

	suite := &types.Suite{Name: "header", States: []*types.State{{Name: "plain"}, {Name: "expanded"}}}
	ctx := context.Background()

	bus.Emit(ctx, events.Event{Kind: events.KindBegin, Payload: events.BeginPayload{
		TotalStates: 2,
		BrowserIDs:  []string{"chrome", "firefox"},
	}})

	tracker.mu.RLock()
	assert.Equal(t, 4, tracker.totalStates, "total covers every browser's walk of the tree")
	tracker.mu.RUnlock()

	bus.Emit(ctx, events.Event{Kind: events.KindBeginSuite, Payload: events.SuitePayload{Suite: suite, BrowserID: "chrome"}})
	bus.Emit(ctx, events.Event{Kind: events.KindBeginState, Payload: events.StatePayload{Suite: suite, State: suite.States[0], BrowserID: "chrome"}})

	tracker.mu.RLock()
	assert.Len(t, tracker.runningStates, 1)
	assert.Equal(t, "header", tracker.currentSuites["chrome"])
	tracker.mu.RUnlock()

	bus.Emit(ctx, events.Event{Kind: events.KindEndState, Payload: events.StatePayload{Suite: suite, State: suite.States[0], BrowserID: "chrome"}})
	bus.Emit(ctx, events.Event{Kind: events.KindSkipState, Payload: events.StatePayload{Suite: suite, State: suite.States[1], BrowserID: "chrome"}})

	tracker.mu.RLock()
	assert.Empty(t, tracker.runningStates)
	assert.Equal(t, 2, tracker.completedStates, "skips count toward completion")
	assert.Equal(t, 1, tracker.skippedStates)
	tracker.mu.RUnlock()
}

func TestFormatRunningStates(t *testing.T) {
	assert.Empty(t, formatRunningStates(nil, 3))

	now := time.Now()
	running := map[string]time.Time{
		"chrome/header/plain":    now.Add(-10 * time.Second),
		"chrome/header/expanded": now.Add(-2 * time.Second),
		"firefox/header/plain":   now.Add(-30 * time.Second),
	}

	out := formatRunningStates(running, 2)
	assert.Contains(t, out, "firefox/header/plain", "the longest running state leads")
	assert.NotContains(t, out, "chrome/header/expanded", "maxShow truncates the list")
}

func TestFatalError(t *testing.T) {
	cause := assert.AnError
	err := NewFatalError(cause)

	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsFatal(cause), "plain errors are recoverable")
	assert.False(t, IsFatal(nil))
}
