package gemini

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// RunScheduler decides when runs happen: exactly once, or repeatedly on a
// fixed interval until stopped.
type RunScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func() error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

// DefaultRunScheduler implements the RunScheduler interface.
type DefaultRunScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	callback func() error

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewDefaultRunScheduler creates a new DefaultRunScheduler.
func NewDefaultRunScheduler(interval time.Duration, runOnce bool, logger log.Logger) *DefaultRunScheduler {
	return &DefaultRunScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// RegisterCallback sets the function invoked whenever a run is due. It must
// be called before Start.
func (s *DefaultRunScheduler) RegisterCallback(callback func() error) {
	s.callback = callback
}

// Start triggers the first run synchronously. In interval mode it then
// spawns the ticking goroutine; the first run's error is returned, errors
// of later runs are only logged.
func (s *DefaultRunScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("no run callback registered")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Scheduler executing a single run")
		return s.callback()
	}

	s.logger.Info("Scheduler executing on an interval", "interval", s.interval)

	// The interval only spaces subsequent runs; the first fires now.
	if err := s.callback(); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			select {
			case <-time.After(s.interval):
				if !s.running.Load() {
					return
				}
				s.logger.Info("Scheduled run starting")
				if err := s.callback(); err != nil {
					s.logger.Error("Scheduled run failed", "error", err)
				}

			case <-s.done:
				s.logger.Debug("Scheduler stopping")
				return

			case <-ctx.Done():
				s.logger.Debug("Scheduler context done")
				s.running.Store(false)
				return
			}
		}
	}()

	return nil
}

// Stop prevents any further runs from being scheduled. Safe to call more
// than once; a run already in flight is not interrupted.
func (s *DefaultRunScheduler) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	close(s.done)
	return nil
}

// Stopped reports whether the scheduler has been stopped.
func (s *DefaultRunScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the ticking goroutine has exited or ctx
// expires.
func (s *DefaultRunScheduler) WaitForShutdown(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Gave up waiting for scheduler shutdown", "error", ctx.Err())
		return ctx.Err()
	}
}
