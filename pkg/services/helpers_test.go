package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"asset-cache/config"
	"asset-cache/pkg/interfaces"
	"asset-cache/pkg/utils"

	"github.com/stretchr/testify/require"
)

// pngBytes is a valid PNG signature followed by filler
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 24)...)

func newTestLogger() *utils.Logger {
	return utils.NewLogger(utils.Config{LogLevel: "error"})
}

func testCacheConfig() config.CacheConfig {
	cc := config.DefaultCacheConfig()
	cc.InitTimeout = 2 * time.Second
	cc.IconFetchTimeout = 500 * time.Millisecond
	cc.FontFetchTimeout = 500 * time.Millisecond
	return cc
}

// newSQLiteLifecycle returns a lifecycle backed by a fresh on-disk store
func newSQLiteLifecycle(t *testing.T, cc config.CacheConfig) *Lifecycle {
	t.Helper()
	log := newTestLogger()
	dir := t.TempDir()

	cfg := &config.Config{Cache: cc}
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = dir
	pm := utils.NewPathManager(dir, log)

	lc := NewLifecycle(func() *Engine {
		return NewEngine(cc, log, NewStoreOpener(cfg, pm, log))
	}, log)
	t.Cleanup(func() { _ = lc.Reset() })
	return lc
}

// newFailingLifecycle returns a lifecycle whose store never opens
func newFailingLifecycle(t *testing.T, cc config.CacheConfig) *Lifecycle {
	t.Helper()
	log := newTestLogger()
	lc := NewLifecycle(func() *Engine {
		return NewEngine(cc, log, func(ctx context.Context) (interfaces.StoreBackend, error) {
			return nil, errors.New("disk on fire")
		})
	}, log)
	t.Cleanup(func() { _ = lc.Reset() })
	return lc
}

// stubTransport answers every request in-process and counts them
type stubTransport struct {
	calls   atomic.Int64
	respond func(*http.Request) (*http.Response, error)
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls.Add(1)
	return s.respond(req)
}

func (s *stubTransport) client() *http.Client {
	return &http.Client{Transport: s}
}

func respondWith(status int, contentType string, body []byte) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		h := http.Header{}
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		return &http.Response{
			StatusCode: status,
			Header:     h,
			Body:       io.NopCloser(bytes.NewReader(body)),
			Request:    req,
		}, nil
	}
}

// respondNever blocks until the request context ends
func respondNever(req *http.Request) (*http.Response, error) {
	<-req.Context().Done()
	return nil, req.Context().Err()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Millisecond)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, lc *Lifecycle, cc config.CacheConfig, transport *stubTransport, clock *fakeClock) *CacheService {
	t.Helper()
	svc, err := NewCacheService(lc, cc, newTestLogger(), WithHTTPClient(transport.client()), WithClock(clock.Now))
	require.NoError(t, err)
	return svc
}
