// Package logging persists a run's event stream to disk so failed runs can
// be inspected after the fact. One directory is created per run, with a
// "latest" symlink pointing at the most recent one.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"context"

	"github.com/krzysztoffpl/gemini/events"
	"github.com/krzysztoffpl/gemini/types"
)

// RunDirectoryPrefix prefixes per-run directories under the base log dir.
const RunDirectoryPrefix = "run-"

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(filepath string) (*AsyncFile, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filepath, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100), // Buffer channel to reduce blocking
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file after draining the queue.
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}

// RunLogger writes one line per run event to events.log, and failing
// results additionally to failed.log. Attach it to the runner's bus before
// the run and Complete it afterwards.
type RunLogger struct {
	baseDir    string
	logDir     string
	runID      string
	eventsFile *AsyncFile
	failedFile *AsyncFile
}

// NewRunLogger creates the run's log directory and its writers.
func NewRunLogger(baseDir, runID string) (*RunLogger, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", logDir, err)
	}

	eventsFile, err := NewAsyncFile(filepath.Join(logDir, "events.log"))
	if err != nil {
		return nil, err
	}
	failedFile, err := NewAsyncFile(filepath.Join(logDir, "failed.log"))
	if err != nil {
		_ = eventsFile.Close()
		return nil, err
	}

	return &RunLogger{
		baseDir:    baseDir,
		logDir:     logDir,
		runID:      runID,
		eventsFile: eventsFile,
		failedFile: failedFile,
	}, nil
}

// AttachRunner subscribes the logger to a runner's event bus.
func (l *RunLogger) AttachRunner(bus *events.Bus) {
	bus.SubscribeAll(l.consume)
}

func (l *RunLogger) consume(_ context.Context, ev events.Event) {
	line := formatEvent(ev)
	if err := l.eventsFile.Write([]byte(line)); err != nil {
		fmt.Fprintf(os.Stderr, "Error logging event: %v\n", err)
		return
	}
	if isFailure(ev) {
		_ = l.failedFile.Write([]byte(line))
	}
}

// LogDir returns the directory this run logs into.
func (l *RunLogger) LogDir() string {
	return l.logDir
}

// Complete flushes and closes the writers and repoints the "latest"
// symlink at this run's directory.
func (l *RunLogger) Complete() error {
	if err := l.eventsFile.Close(); err != nil {
		return err
	}
	if err := l.failedFile.Close(); err != nil {
		return err
	}

	latest := filepath.Join(l.baseDir, "latest")
	_ = os.Remove(latest)
	if err := os.Symlink(l.logDir, latest); err != nil {
		return fmt.Errorf("failed to update latest symlink: %w", err)
	}
	return nil
}

func formatEvent(ev events.Event) string {
	ts := time.Now().Format(time.RFC3339Nano)
	switch p := ev.Payload.(type) {
	case events.BeginPayload:
		return fmt.Sprintf("%s %-12s totalStates=%d browsers=%v\n", ts, ev.Kind, p.TotalStates, p.BrowserIDs)
	case events.SuitePayload:
		return fmt.Sprintf("%s %-12s browser=%s suite=%s\n", ts, ev.Kind, p.BrowserID, p.Suite.Name)
	case events.StatePayload:
		return fmt.Sprintf("%s %-12s browser=%s suite=%s state=%s\n", ts, ev.Kind, p.BrowserID, p.Suite.Name, p.State.Name)
	case events.RetryPayload:
		return fmt.Sprintf("%s %-12s browser=%s suite=%s attempt=%d err=%v\n", ts, ev.Kind, p.BrowserID, p.Suite.Name, p.Attempt, p.Err)
	case events.InfoPayload:
		return fmt.Sprintf("%s %-12s browser=%s %s\n", ts, ev.Kind, p.BrowserID, p.Message)
	case events.ResultPayload:
		if p.Err != nil {
			return fmt.Sprintf("%s %-12s browser=%s suite=%s state=%s err=%v\n", ts, ev.Kind, p.BrowserID, suiteName(p.Suite), stateName(p.State), p.Err)
		}
		return fmt.Sprintf("%s %-12s browser=%s suite=%s state=%s equal=%t duration=%dms\n", ts, ev.Kind, p.BrowserID, suiteName(p.Suite), stateName(p.State), p.Equal, p.DurationMillis)
	case events.EndPayload:
		return fmt.Sprintf("%s %-12s total=%d passed=%d failed=%d updated=%d errored=%d skipped=%d retries=%d\n",
			ts, ev.Kind, p.Summary.Total, p.Summary.Passed, p.Summary.Failed, p.Summary.Updated, p.Summary.Errored, p.Summary.Skipped, p.Summary.Retries)
	default:
		return fmt.Sprintf("%s %-12s\n", ts, ev.Kind)
	}
}

func suiteName(s *types.Suite) string {
	if s == nil {
		return "-"
	}
	return s.Name
}

func stateName(s *types.State) string {
	if s == nil {
		return "-"
	}
	return s.Name
}

func isFailure(ev events.Event) bool {
	if ev.Kind == events.KindError {
		return true
	}
	if ev.Kind == events.KindTestResult {
		if p, ok := ev.Payload.(events.ResultPayload); ok {
			return !p.Equal
		}
	}
	return false
}
