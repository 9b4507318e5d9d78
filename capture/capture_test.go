package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krzysztoffpl/gemini/runner"
	"github.com/krzysztoffpl/gemini/types"
)

type scriptedSession struct {
	id          string
	browserID   string
	navigateErr error
	screenshot  []byte
	shotErr     error

	lastURL string
}

func (s *scriptedSession) ID() string        { return s.id }
func (s *scriptedSession) BrowserID() string { return s.browserID }
func (s *scriptedSession) Navigate(ctx context.Context, url string) error {
	s.lastURL = url
	return s.navigateErr
}
func (s *scriptedSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.screenshot, s.shotErr
}
func (s *scriptedSession) Close(ctx context.Context) error { return nil }

func newProcessor(t *testing.T, cfg Config) (*Processor, string, string) {
	t.Helper()
	if cfg.ReferencesDir == "" {
		cfg.ReferencesDir = filepath.Join(t.TempDir(), "refs")
	}
	if cfg.CurrentDir == "" {
		cfg.CurrentDir = filepath.Join(t.TempDir(), "current")
	}
	p, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, p.Prepare(context.Background()))
	return p, cfg.ReferencesDir, cfg.CurrentDir
}

func headerSuite() (*types.Suite, *types.State) {
	state := &types.State{Name: "plain"}
	return &types.Suite{Name: "header", URL: "/header", States: []*types.State{state}}, state
}

func TestProcessor_New_Validation(t *testing.T) {
	_, err := New(Config{CurrentDir: "x"})
	assert.Error(t, err)
	_, err = New(Config{ReferencesDir: "x"})
	assert.Error(t, err)
}

func TestProcessor_MatchAgainstReference(t *testing.T) {
	p, refsDir, _ := newProcessor(t, Config{RootURL: "https://example.com"})
	suite, state := headerSuite()
	sess := &scriptedSession{id: "s1", browserID: "chrome", screenshot: []byte("pixels")}

	refPath := filepath.Join(refsDir, "chrome", "header", "plain.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(refPath), 0755))
	require.NoError(t, os.WriteFile(refPath, []byte("pixels"), 0644))

	out, err := p.ProcessState(context.Background(), sess, suite, state)
	require.NoError(t, err)
	assert.True(t, out.Equal)
	assert.False(t, out.Updated)
	assert.Equal(t, refPath, out.ReferencePath)
	assert.Equal(t, "https://example.com/header", sess.lastURL, "suite URL must resolve against the root URL")

	current, err := os.ReadFile(out.CurrentPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), current, "the captured screenshot must be persisted")
}

func TestProcessor_MismatchAgainstReference(t *testing.T) {
	p, refsDir, _ := newProcessor(t, Config{})
	suite, state := headerSuite()
	sess := &scriptedSession{id: "s1", browserID: "chrome", screenshot: []byte("new-pixels")}

	refPath := filepath.Join(refsDir, "chrome", "header", "plain.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(refPath), 0755))
	require.NoError(t, os.WriteFile(refPath, []byte("old-pixels"), 0644))

	out, err := p.ProcessState(context.Background(), sess, suite, state)
	require.NoError(t, err)
	assert.False(t, out.Equal)
}

func TestProcessor_MissingReferenceIsRecoverable(t *testing.T) {
	p, _, _ := newProcessor(t, Config{})
	suite, state := headerSuite()
	sess := &scriptedSession{id: "s1", browserID: "chrome", screenshot: []byte("pixels")}

	_, err := p.ProcessState(context.Background(), sess, suite, state)
	require.Error(t, err)
	assert.False(t, runner.IsFatal(err), "a missing reference must not kill the browser run")
	assert.Contains(t, err.Error(), "--update-refs")
}

func TestProcessor_UpdateModeWritesReference(t *testing.T) {
	p, refsDir, _ := newProcessor(t, Config{UpdateRefs: true})
	suite, state := headerSuite()
	sess := &scriptedSession{id: "s1", browserID: "firefox", screenshot: []byte("fresh")}

	out, err := p.ProcessState(context.Background(), sess, suite, state)
	require.NoError(t, err)
	assert.True(t, out.Updated)

	written, err := os.ReadFile(filepath.Join(refsDir, "firefox", "header", "plain.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), written)
}

func TestProcessor_NavigationFailure(t *testing.T) {
	p, _, _ := newProcessor(t, Config{})
	suite, state := headerSuite()
	sess := &scriptedSession{id: "s1", browserID: "chrome", navigateErr: errors.New("dns failure")}

	_, err := p.ProcessState(context.Background(), sess, suite, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dns failure")
}

func TestProcessor_InvalidRootURLIsFatal(t *testing.T) {
	p, _, _ := newProcessor(t, Config{RootURL: "://bad"})
	suite, state := headerSuite()
	sess := &scriptedSession{id: "s1", browserID: "chrome", screenshot: []byte("pixels")}

	_, err := p.ProcessState(context.Background(), sess, suite, state)
	require.Error(t, err)
	assert.True(t, runner.IsFatal(err), "a misconfigured root URL can never succeed for any state")
}

func TestProcessor_CustomCompare(t *testing.T) {
	alwaysEqual := func(reference, current []byte) (bool, error) { return true, nil }
	p, refsDir, _ := newProcessor(t, Config{Compare: alwaysEqual})
	suite, state := headerSuite()
	sess := &scriptedSession{id: "s1", browserID: "chrome", screenshot: []byte("anything")}

	refPath := filepath.Join(refsDir, "chrome", "header", "plain.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(refPath), 0755))
	require.NoError(t, os.WriteFile(refPath, []byte("different"), 0644))

	out, err := p.ProcessState(context.Background(), sess, suite, state)
	require.NoError(t, err)
	assert.True(t, out.Equal)
}
