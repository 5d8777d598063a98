package daemon

import (
	"context"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mlindgren/feedsync/internal/news"
	"github.com/mlindgren/feedsync/internal/store"
	"github.com/mlindgren/feedsync/internal/syncer"
)

// countingTransport answers every pull with an empty collection and
// counts full runs by folder pulls.
type countingTransport struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (c *countingTransport) Execute(ctx context.Context, method, path string, query url.Values, body []byte) (*news.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	switch method + " " + path {
	case "GET /folders":
		c.runs++
		return &news.Response{Status: 200, Body: []byte(`{"folders":[]}`)}, nil
	case "GET /feeds":
		return &news.Response{Status: 200, Body: []byte(`{"feeds":[]}`)}, nil
	case "GET /items", "GET /items/updated":
		return &news.Response{Status: 200, Body: []byte(`{"items":[]}`)}, nil
	}
	return &news.Response{Status: 404}, nil
}

func (c *countingTransport) runCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

func newTestSyncer(t *testing.T, transport news.Transport) *syncer.Syncer {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	cfg := syncer.DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	return syncer.New(s, news.NewClient(transport), cfg)
}

func testDaemonConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	cfg.Interval = time.Hour // ticks never fire during a test
	cfg.DebounceInterval = 50 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDaemonRunsInitialSyncAndStops(t *testing.T) {
	transport := &countingTransport{}
	s := newTestSyncer(t, transport)

	runDone := make(chan error, 8)
	cfg := testDaemonConfig()
	cfg.OnRunComplete = func(err error) { runDone <- err }

	d, err := New(s, "", cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("initial run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("initial sync never ran")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if transport.runCount() < 1 {
		t.Error("transport saw no folder pull")
	}
}

func TestTriggerSyncRunsImmediately(t *testing.T) {
	transport := &countingTransport{}
	s := newTestSyncer(t, transport)

	d, err := New(s, "", testDaemonConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return transport.runCount() >= 1 })

	d.TriggerSync()
	waitFor(t, 5*time.Second, func() bool { return transport.runCount() >= 2 })

	cancel()
	<-done
}

func TestRetryableFailureShortensWait(t *testing.T) {
	transport := &countingTransport{
		err: &news.Fault{Code: 4, Detail: "timeout"}, // request timed out
	}
	s := newTestSyncer(t, transport)

	cfg := testDaemonConfig()
	cfg.RetryDelay = 42 * time.Second

	d, err := New(s, "", cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if wait := d.runOnce(context.Background()); wait != 42*time.Second {
		t.Errorf("wait after retryable failure = %s, want 42s", wait)
	}

	transport.mu.Lock()
	transport.err = nil
	transport.mu.Unlock()

	if wait := d.runOnce(context.Background()); wait != time.Hour {
		t.Errorf("wait after success = %s, want full interval", wait)
	}
}

func TestConfigReloadUpdatesInterval(t *testing.T) {
	transport := &countingTransport{}
	s := newTestSyncer(t, transport)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "feedsync.yaml")
	if err := os.WriteFile(configPath, []byte("sync:\n  interval: 1h\n"), 0600); err != nil {
		t.Fatal(err)
	}

	d, err := New(s, configPath, testDaemonConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var reloadMu sync.Mutex
	next := time.Hour
	d.ReloadInterval = func() (time.Duration, error) {
		reloadMu.Lock()
		defer reloadMu.Unlock()
		return next, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return transport.runCount() >= 1 })

	reloadMu.Lock()
	next = 5 * time.Minute
	reloadMu.Unlock()

	if err := os.WriteFile(configPath, []byte("sync:\n  interval: 5m\n"), 0600); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool { return d.Interval() == 5*time.Minute })

	cancel()
	<-done
}
