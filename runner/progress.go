package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/krzysztoffpl/gemini/events"
)

// ProgressTracker observes suite and state lifecycle events for periodic
// progress reporting. It has no control-flow responsibilities; a failure
// inside it never affects the run outcome (bus delivery recovers panics).
type ProgressTracker struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}
	mu     sync.RWMutex

	totalStates     int
	completedStates int
	skippedStates   int
	runStartTime    time.Time
	lastUpdateTime  time.Time

	// Track the suite each browser is currently walking and the states
	// currently being processed.
	currentSuites map[string]string    // browser -> suite name
	runningStates map[string]time.Time // "browser/suite/state" -> start time
}

// NewProgressTracker creates a tracker that logs a progress line every
// updateInterval while the run is in flight.
func NewProgressTracker(logger log.Logger, updateInterval time.Duration) *ProgressTracker {
	if updateInterval == 0 {
		updateInterval = 30 * time.Second // Default to 30 seconds
	}

	tracker := &ProgressTracker{
		logger:        logger.New("component", "progress"),
		ticker:        time.NewTicker(updateInterval),
		stopCh:        make(chan struct{}),
		currentSuites: make(map[string]string),
		runningStates: make(map[string]time.Time),
	}

	go tracker.progressReporter()

	return tracker
}

// AttachRunner subscribes the tracker to a runner's event bus. Must be
// called before the run starts.
func (p *ProgressTracker) AttachRunner(bus *events.Bus) {
	bus.Subscribe(events.KindBegin, p.onBegin)
	bus.Subscribe(events.KindBeginSuite, p.onBeginSuite)
	bus.Subscribe(events.KindBeginState, p.onBeginState)
	bus.Subscribe(events.KindEndState, p.onEndState)
	bus.Subscribe(events.KindSkipState, p.onSkipState)
}

func (p *ProgressTracker) onBegin(_ context.Context, ev events.Event) {
	begin, ok := ev.Payload.(events.BeginPayload)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	// Every browser walks the full tree.
	p.totalStates = begin.TotalStates * len(begin.BrowserIDs)
	p.completedStates = 0
	p.skippedStates = 0
	p.runStartTime = time.Now()
	p.lastUpdateTime = time.Now()

	p.logger.Info("Starting run", "browsers", begin.BrowserIDs, "statesPerBrowser", begin.TotalStates)
}

func (p *ProgressTracker) onBeginSuite(_ context.Context, ev events.Event) {
	suite, ok := ev.Payload.(events.SuitePayload)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentSuites[suite.BrowserID] = suite.Suite.Name
	p.logger.Info("Starting suite", "browser", suite.BrowserID, "suite", suite.Suite.Name, "suiteStates", suite.Suite.StatesCount())
}

func (p *ProgressTracker) onBeginState(_ context.Context, ev events.Event) {
	state, ok := ev.Payload.(events.StatePayload)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.runningStates[stateKey(state)] = time.Now()
}

func (p *ProgressTracker) onEndState(_ context.Context, ev events.Event) {
	state, ok := ev.Payload.(events.StatePayload)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.runningStates, stateKey(state))
	p.completedStates++
	p.lastUpdateTime = time.Now()

	p.logger.Debug("State completed", "browser", state.BrowserID, "state", state.State.Name, "completed", p.completedStates, "total", p.totalStates)
}

func (p *ProgressTracker) onSkipState(_ context.Context, ev events.Event) {
	state, ok := ev.Payload.(events.StatePayload)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.skippedStates++
	p.completedStates++
	p.logger.Debug("State skipped", "browser", state.BrowserID, "state", state.State.Name, "reason", state.Reason)
}

// progressReporter runs in a goroutine and periodically reports progress
func (p *ProgressTracker) progressReporter() {
	for {
		select {
		case <-p.ticker.C:
			p.reportProgress()
		case <-p.stopCh:
			return
		}
	}
}

func (p *ProgressTracker) reportProgress() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var percentComplete float64
	if p.totalStates > 0 {
		percentComplete = float64(p.completedStates) * 100.0 / float64(p.totalStates)
	}

	p.logger.Info("Progress update",
		"completed", p.completedStates,
		"skipped", p.skippedStates,
		"total", p.totalStates,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"numRunning", len(p.runningStates),
		"longestRunning", formatRunningStates(p.runningStates, 3))
}

// Stop stops the periodic reporting goroutine.
func (p *ProgressTracker) Stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
	close(p.stopCh)
}

func stateKey(state events.StatePayload) string {
	return state.BrowserID + "/" + state.Suite.Name + "/" + state.State.Name
}

// Helper function that formats the longest-running states into a display string
func formatRunningStates(running map[string]time.Time, maxShow int) string {
	if len(running) == 0 {
		return ""
	}

	type runningState struct {
		key     string
		elapsed time.Duration
	}
	states := make([]runningState, 0, len(running))
	now := time.Now()
	for key, started := range running {
		states = append(states, runningState{key: key, elapsed: now.Sub(started)})
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].elapsed > states[j].elapsed
	})

	if maxShow > len(states) {
		maxShow = len(states)
	}
	parts := make([]string, 0, maxShow)
	for _, st := range states[:maxShow] {
		parts = append(parts, fmt.Sprintf("%s (%s)", st.key, st.elapsed.Truncate(time.Second)))
	}
	return strings.Join(parts, ", ")
}
