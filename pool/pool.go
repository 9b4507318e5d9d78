// Package pool manages the bounded set of remote browser sessions shared
// by every per-browser runner in a run. Capacity is configured per browser
// identifier; acquisition requests for one identifier are served in FIFO
// order once a slot frees.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/semaphore"

	"github.com/krzysztoffpl/gemini/browser"
	"github.com/krzysztoffpl/gemini/metrics"
)

// ErrPoolClosed is returned for acquisitions queued or issued after the
// pool has been cancelled.
var ErrPoolClosed = errors.New("browser pool closed")

// Config holds configuration for creating a BrowserPool.
type Config struct {
	Log      log.Logger
	Launcher browser.Launcher

	// Limits caps concurrently held sessions per browser identifier.
	// Identifiers not listed fall back to DefaultLimit.
	Limits       map[string]int
	DefaultLimit int
}

// BrowserPool is the one resource shared across per-browser runners. Each
// session, once acquired, is exclusively owned by the acquiring runner
// until released or forcibly reclaimed by Cancel.
type BrowserPool struct {
	log          log.Logger
	launcher     browser.Launcher
	limits       map[string]int
	defaultLimit int

	closeCtx context.Context
	closeFn  context.CancelFunc
	once     sync.Once

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

type entry struct {
	sem  *semaphore.Weighted
	idle []browser.Session
	held map[string]browser.Session
}

// New creates a BrowserPool serving sessions from cfg.Launcher.
func New(cfg Config) (*BrowserPool, error) {
	if cfg.Launcher == nil {
		return nil, errors.New("launcher is required")
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.New()
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = 1
	}
	closeCtx, closeFn := context.WithCancel(context.Background())
	return &BrowserPool{
		log:          logger.New("component", "browser-pool"),
		launcher:     cfg.Launcher,
		limits:       cfg.Limits,
		defaultLimit: defaultLimit,
		closeCtx:     closeCtx,
		closeFn:      closeFn,
		entries:      make(map[string]*entry),
	}, nil
}

// Acquire grants a session for browserID, blocking in FIFO order while the
// identifier's capacity is exhausted. It fails once the pool is cancelled.
func (p *BrowserPool) Acquire(ctx context.Context, browserID string) (browser.Session, error) {
	e, err := p.entry(browserID)
	if err != nil {
		return nil, err
	}

	// Tie the queued acquisition to pool cancellation so Cancel aborts
	// every waiter.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.closeCtx, cancel)
	defer stop()

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		if p.closeCtx.Err() != nil {
			return nil, ErrPoolClosed
		}
		return nil, fmt.Errorf("failed to acquire session slot for %q: %w", browserID, err)
	}

	sess, err := p.checkout(ctx, browserID, e)
	if err != nil {
		e.sem.Release(1)
		return nil, err
	}
	metrics.RecordSessionAcquired(browserID)
	return sess, nil
}

func (p *BrowserPool) checkout(ctx context.Context, browserID string, e *entry) (browser.Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(e.idle); n > 0 {
		sess := e.idle[n-1]
		e.idle = e.idle[:n-1]
		e.held[sess.ID()] = sess
		p.mu.Unlock()
		return sess, nil
	}
	p.mu.Unlock()

	sess, err := p.launcher.Launch(ctx, browserID)
	if err != nil {
		return nil, fmt.Errorf("failed to launch session for %q: %w", browserID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		// Cancel raced the launch; the session is ours to clean up.
		go func() {
			if cerr := sess.Close(context.Background()); cerr != nil {
				p.log.Warn("Failed to close session launched during shutdown", "session", sess.ID(), "error", cerr)
			}
		}()
		return nil, ErrPoolClosed
	}
	e.held[sess.ID()] = sess
	return sess, nil
}

// Release returns a session to the identifier's idle set and frees its
// capacity slot. Releasing a session the pool no longer tracks (because
// Cancel reclaimed it) is a no-op.
func (p *BrowserPool) Release(sess browser.Session) {
	if sess == nil {
		return
	}
	p.mu.Lock()
	e, ok := p.entries[sess.BrowserID()]
	if !ok || p.closed {
		p.mu.Unlock()
		return
	}
	if _, held := e.held[sess.ID()]; !held {
		p.mu.Unlock()
		return
	}
	delete(e.held, sess.ID())
	e.idle = append(e.idle, sess)
	p.mu.Unlock()

	metrics.RecordSessionReleased(sess.BrowserID())
	e.sem.Release(1)
}

// Discard removes a dead session from the pool: it is closed, never put
// back in the idle set, and its capacity slot is freed so a replacement can
// be launched. Discarding an untracked session is a no-op.
func (p *BrowserPool) Discard(ctx context.Context, sess browser.Session) {
	if sess == nil {
		return
	}
	p.mu.Lock()
	e, ok := p.entries[sess.BrowserID()]
	if !ok || p.closed {
		p.mu.Unlock()
		return
	}
	if _, held := e.held[sess.ID()]; !held {
		p.mu.Unlock()
		return
	}
	delete(e.held, sess.ID())
	p.mu.Unlock()

	if err := sess.Close(ctx); err != nil {
		p.log.Debug("Failed to close discarded session", "session", sess.ID(), "error", err)
	}
	metrics.RecordSessionReleased(sess.BrowserID())
	e.sem.Release(1)
}

// Cancel aborts all queued acquisitions with ErrPoolClosed, forcibly
// closes every held and idle session and resolves once cleanup completes.
// It is idempotent.
func (p *BrowserPool) Cancel(ctx context.Context) error {
	var errs []error
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		var sessions []browser.Session
		for _, e := range p.entries {
			sessions = append(sessions, e.idle...)
			for _, sess := range e.held {
				sessions = append(sessions, sess)
			}
			e.idle = nil
			e.held = make(map[string]browser.Session)
		}
		p.mu.Unlock()

		// Wake every queued Acquire before tearing sessions down.
		p.closeFn()

		for _, sess := range sessions {
			if err := sess.Close(ctx); err != nil {
				p.log.Warn("Failed to close session during pool cancel", "session", sess.ID(), "error", err)
				errs = append(errs, err)
			}
			metrics.RecordSessionReleased(sess.BrowserID())
		}
		p.log.Debug("Browser pool cancelled", "closedSessions", len(sessions))
	})
	return errors.Join(errs...)
}

func (p *BrowserPool) entry(browserID string) (*entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	e, ok := p.entries[browserID]
	if !ok {
		limit := p.defaultLimit
		if l, set := p.limits[browserID]; set && l > 0 {
			limit = l
		}
		e = &entry{
			sem:  semaphore.NewWeighted(int64(limit)),
			held: make(map[string]browser.Session),
		}
		p.entries[browserID] = e
	}
	return e, nil
}
