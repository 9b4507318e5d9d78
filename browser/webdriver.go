package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// GridConfig holds configuration for a GridLauncher.
type GridConfig struct {
	Log log.Logger

	// URL is the WebDriver hub endpoint, e.g. "http://localhost:4444/wd/hub".
	URL string

	// Capabilities maps a browser identifier to the desired browserName
	// sent to the grid. Unlisted identifiers are used verbatim.
	Capabilities map[string]string

	// Timeout bounds each HTTP call to the grid.
	Timeout time.Duration
}

// GridLauncher launches sessions against a W3C WebDriver grid.
type GridLauncher struct {
	log          log.Logger
	url          string
	capabilities map[string]string
	client       *http.Client
}

// NewGridLauncher creates a Launcher for the given grid endpoint.
func NewGridLauncher(cfg GridConfig) (*GridLauncher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("grid URL is required")
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.New()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &GridLauncher{
		log:          logger.New("component", "grid-launcher"),
		url:          strings.TrimRight(cfg.URL, "/"),
		capabilities: cfg.Capabilities,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

// Launch starts a new remote session for browserID.
func (l *GridLauncher) Launch(ctx context.Context, browserID string) (Session, error) {
	browserName := browserID
	if name, ok := l.capabilities[browserID]; ok {
		browserName = name
	}
	body := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{"browserName": browserName},
		},
	}
	var resp struct {
		Value struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	if err := l.do(ctx, http.MethodPost, "/session", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to launch session for %q: %w", browserID, err)
	}
	if resp.Value.SessionID == "" {
		return nil, fmt.Errorf("grid returned no session id for %q", browserID)
	}
	l.log.Debug("Session launched", "browser", browserID, "session", resp.Value.SessionID)
	return &gridSession{
		launcher:  l,
		id:        resp.Value.SessionID,
		browserID: browserID,
	}, nil
}

func (l *GridLauncher) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.url+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		// The grid reaps idle sessions; surface that as a retryable loss.
		return fmt.Errorf("%w: %s", ErrSessionLost, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("grid request %s %s failed: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode grid response: %w", err)
		}
	}
	return nil
}

type gridSession struct {
	launcher  *GridLauncher
	id        string
	browserID string
	closed    atomic.Bool
}

func (s *gridSession) ID() string        { return s.id }
func (s *gridSession) BrowserID() string { return s.browserID }

func (s *gridSession) Navigate(ctx context.Context, url string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.launcher.do(ctx, http.MethodPost, "/session/"+s.id+"/url", map[string]any{"url": url}, nil)
}

func (s *gridSession) Screenshot(ctx context.Context) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	var resp struct {
		Value string `json:"value"`
	}
	if err := s.launcher.do(ctx, http.MethodGet, "/session/"+s.id+"/screenshot", nil, &resp); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return data, nil
}

func (s *gridSession) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.launcher.do(ctx, http.MethodDelete, "/session/"+s.id, nil, nil)
}
