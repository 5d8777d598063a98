// Package daemon runs the sync engine on a fixed cadence.
//
// The daemon:
// 1. Performs a sync run at every interval tick
// 2. Watches the config file and hot-reloads the sync interval
// 3. Retries sooner after a retryable failure
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mlindgren/feedsync/internal/fault"
	"github.com/mlindgren/feedsync/internal/syncer"
)

// Config holds configuration for the daemon.
type Config struct {
	// Interval between sync runs.
	Interval time.Duration

	// RetryDelay is the shortened wait after a retryable failure.
	RetryDelay time.Duration

	// DebounceInterval is how long to wait before acting on a config
	// file change. This batches rapid editor writes together.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger

	// OnRunComplete, if set, is called after every sync run with the
	// run's outcome. Used to publish cache statistics.
	OnRunComplete func(error)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         15 * time.Minute,
		RetryDelay:       time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon schedules sync runs and reacts to config file changes.
type Daemon struct {
	syncer     *syncer.Syncer
	configPath string
	config     *Config

	// ReloadInterval re-reads the configured sync interval when the
	// config file changes. Nil disables hot reload.
	ReloadInterval func() (time.Duration, error)

	watcher     *fsnotify.Watcher
	trigger     chan struct{}
	intervalMu  sync.Mutex
	interval    time.Duration
	debounce    *time.Timer
	debounceMu  sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon. configPath may be empty, which disables config
// watching.
//
// Use Start() to begin the sync loop.
func New(s *syncer.Syncer, configPath string, config *Config) (*Daemon, error) {
	if s == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Minute
	}

	var watcher *fsnotify.Watcher
	if configPath != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		syncer:     s,
		configPath: configPath,
		config:     config,
		watcher:    watcher,
		trigger:    make(chan struct{}, 1),
		interval:   config.Interval,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Perform an immediate sync run
// 2. Run again at every interval tick
// 3. Watch the config file and pick up interval changes
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.watcher != nil {
		// Watch the directory: editors replace files on save, which
		// drops a watch placed on the file itself.
		dir := filepath.Dir(d.configPath)
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
		d.config.Logger.Printf("Watching config: %s", d.configPath)

		d.wg.Add(1)
		go d.watchConfigEvents()
	}

	d.wg.Add(1)
	go d.runLoop(ctx)

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		d.wg.Wait()
		return nil
	}
}

// Stop gracefully shuts down the daemon. An in-flight sync run finishes
// its current stage before stopping.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// TriggerSync requests an immediate run outside the normal cadence.
// Non-blocking; a run already pending absorbs the request.
func (d *Daemon) TriggerSync() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Interval returns the current sync cadence.
func (d *Daemon) Interval() time.Duration {
	d.intervalMu.Lock()
	defer d.intervalMu.Unlock()
	return d.interval
}

func (d *Daemon) setInterval(interval time.Duration) {
	d.intervalMu.Lock()
	d.interval = interval
	d.intervalMu.Unlock()
}

// runLoop performs the initial run and then one run per tick. A
// retryable failure shortens the wait to RetryDelay.
func (d *Daemon) runLoop(ctx context.Context) {
	defer d.wg.Done()

	timer := time.NewTimer(d.runOnce(ctx))
	defer timer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-d.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.runOnce(ctx))

		case <-timer.C:
			timer.Reset(d.runOnce(ctx))
		}
	}
}

// runOnce executes one sync run and returns the wait until the next.
func (d *Daemon) runOnce(ctx context.Context) time.Duration {
	err := d.syncer.Sync(ctx)
	if d.config.OnRunComplete != nil {
		d.config.OnRunComplete(err)
	}

	if err == nil {
		return d.Interval()
	}

	if fault.IsRetryable(err) {
		d.config.Logger.Printf("Sync failed (retryable), next attempt in %s: %v",
			d.config.RetryDelay, err)
		return d.config.RetryDelay
	}

	d.config.Logger.Printf("Sync failed: %v", err)
	return d.Interval()
}

// watchConfigEvents monitors the config file and debounces reloads.
func (d *Daemon) watchConfigEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create, Write, Rename of the config file
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(event.Name) != filepath.Base(d.configPath) {
				continue
			}

			d.config.Logger.Printf("Config event: %s %s", event.Op, event.Name)
			d.scheduleReload()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// scheduleReload arms (or re-arms) the debounced reload.
func (d *Daemon) scheduleReload() {
	d.debounceMu.Lock()
	defer d.debounceMu.Unlock()

	if d.debounce != nil {
		d.debounce.Stop()
	}
	d.debounce = time.AfterFunc(d.config.DebounceInterval, d.reload)
}

// reload re-reads the sync interval from the config file.
func (d *Daemon) reload() {
	if d.ReloadInterval == nil {
		return
	}

	interval, err := d.ReloadInterval()
	if err != nil {
		d.config.Logger.Printf("Config reload failed: %v", err)
		return
	}
	if interval <= 0 {
		d.config.Logger.Printf("Config reload produced invalid interval %s, keeping %s",
			interval, d.Interval())
		return
	}

	if interval != d.Interval() {
		d.config.Logger.Printf("Sync interval changed: %s -> %s", d.Interval(), interval)
		d.setInterval(interval)
	}
}
