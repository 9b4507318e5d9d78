package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krzysztoffpl/gemini/browser"
)

type fakeSession struct {
	id        string
	browserID string
	closed    atomic.Bool
}

func (s *fakeSession) ID() string        { return s.id }
func (s *fakeSession) BrowserID() string { return s.browserID }
func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	return nil
}
func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, nil
}
func (s *fakeSession) Close(ctx context.Context) error {
	s.closed.Store(true)
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	launched int
	sessions []*fakeSession
	err      error
}

func (l *fakeLauncher) Launch(ctx context.Context, browserID string) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.launched++
	sess := &fakeSession{id: fmt.Sprintf("%s-%d", browserID, l.launched), browserID: browserID}
	l.sessions = append(l.sessions, sess)
	return sess, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launched
}

func newPool(t *testing.T, launcher *fakeLauncher, limits map[string]int) *BrowserPool {
	t.Helper()
	p, err := New(Config{
		Log:          log.New(),
		Launcher:     launcher,
		Limits:       limits,
		DefaultLimit: 1,
	})
	require.NoError(t, err)
	return p
}

func TestPool_AcquireLaunchesAndReusesSessions(t *testing.T) {
	launcher := &fakeLauncher{}
	p := newPool(t, launcher, nil)

	sess1, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)
	assert.Equal(t, "chrome", sess1.BrowserID())
	p.Release(sess1)

	sess2, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)
	assert.Equal(t, sess1.ID(), sess2.ID(), "released session should be reused")
	assert.Equal(t, 1, launcher.launchCount())
}

func TestPool_CapacityBlocksAcquire(t *testing.T) {
	launcher := &fakeLauncher{}
	p := newPool(t, launcher, map[string]int{"chrome": 1})

	held, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		sess, err := p.Acquire(context.Background(), "chrome")
		assert.NoError(t, err)
		p.Release(sess)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire must block while capacity is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(held)

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not served after release")
	}
}

// TestPool_WaitersServedInEnqueueOrder verifies queued acquisitions for one
// identifier come back in the order they were enqueued once slots free.
func TestPool_WaitersServedInEnqueueOrder(t *testing.T) {
	launcher := &fakeLauncher{}
	p := newPool(t, launcher, map[string]int{"chrome": 1})

	held, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)

	served := make(chan int, 3)
	for i := range 3 {
		go func() {
			sess, err := p.Acquire(context.Background(), "chrome")
			assert.NoError(t, err)
			served <- i
			p.Release(sess)
		}()
		// Space the waiters out so the queue order is the spawn order.
		time.Sleep(50 * time.Millisecond)
	}

	p.Release(held)

	for want := range 3 {
		select {
		case got := <-served:
			assert.Equal(t, want, got, "waiters must be served first-in first-out")
		case <-time.After(5 * time.Second):
			t.Fatalf("waiter %d was never served", want)
		}
	}
}

func TestPool_SeparateCapacityPerBrowser(t *testing.T) {
	launcher := &fakeLauncher{}
	p := newPool(t, launcher, map[string]int{"chrome": 1, "firefox": 2})

	_, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)

	// chrome capacity is gone but firefox must be unaffected.
	f1, err := p.Acquire(context.Background(), "firefox")
	require.NoError(t, err)
	f2, err := p.Acquire(context.Background(), "firefox")
	require.NoError(t, err)
	assert.NotEqual(t, f1.ID(), f2.ID())
}

func TestPool_AcquireHonorsContext(t *testing.T) {
	launcher := &fakeLauncher{}
	p := newPool(t, launcher, map[string]int{"chrome": 1})

	_, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, "chrome")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_CancelAbortsWaiters(t *testing.T) {
	launcher := &fakeLauncher{}
	p := newPool(t, launcher, map[string]int{"chrome": 1})

	_, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)

	waitErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), "chrome")
		waitErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, p.Cancel(context.Background()))

	select {
	case err := <-waitErr:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("queued waiter was not aborted by Cancel")
	}
}

func TestPool_CancelClosesAllSessions(t *testing.T) {
	launcher := &fakeLauncher{}
	p := newPool(t, launcher, map[string]int{"chrome": 2})

	held, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)
	idle, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)
	p.Release(idle)

	require.NoError(t, p.Cancel(context.Background()))

	for _, sess := range launcher.sessions {
		assert.True(t, sess.closed.Load(), "session %s should be closed", sess.ID())
	}

	// Everything past this point fails fast.
	_, err = p.Acquire(context.Background(), "chrome")
	assert.ErrorIs(t, err, ErrPoolClosed)

	// Cancel is idempotent and releases after shutdown are no-ops.
	require.NoError(t, p.Cancel(context.Background()))
	p.Release(held)
}

func TestPool_DoubleReleaseIsNoOp(t *testing.T) {
	launcher := &fakeLauncher{}
	p := newPool(t, launcher, map[string]int{"chrome": 1})

	sess, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)
	p.Release(sess)
	p.Release(sess) // must not free a second capacity slot

	s1, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, "chrome")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "capacity must still be one slot")
	p.Release(s1)
}

func TestPool_LaunchFailureFreesSlot(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("grid unavailable")}
	p := newPool(t, launcher, map[string]int{"chrome": 1})

	_, err := p.Acquire(context.Background(), "chrome")
	require.Error(t, err)

	// The failed acquisition must not leak the capacity slot.
	launcher.mu.Lock()
	launcher.err = nil
	launcher.mu.Unlock()

	sess, err := p.Acquire(context.Background(), "chrome")
	require.NoError(t, err)
	assert.NotNil(t, sess)
}
