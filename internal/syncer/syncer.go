// Package syncer orchestrates push-then-pull reconciliation between the
// local cache and the remote News service.
//
// A run executes a fixed stage sequence: queued star mutations, queued
// read mutations, then authoritative pulls of folders, feeds, unread
// articles, starred articles and finally articles modified since the
// newest cached timestamp. Each stage writes through the store contract
// in one transaction; a failed stage aborts the run but keeps the writes
// of earlier stages — every stage is independently idempotent, so partial
// progress is safe and a retried run converges.
//
// At most one run is active at a time. The syncer never schedules its own
// retries; it reports the classified failure and its retryability and
// lets the caller decide cadence.
package syncer

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mlindgren/feedsync/internal/fault"
	"github.com/mlindgren/feedsync/internal/model"
	"github.com/mlindgren/feedsync/internal/news"
	"github.com/mlindgren/feedsync/internal/queue"
	"github.com/mlindgren/feedsync/internal/store"
)

// ErrSyncRunning is returned when a sync is requested while another run
// is still in progress. Runs are never interleaved.
var ErrSyncRunning = errors.New("sync already in progress")

// Config holds configuration for the syncer.
type Config struct {
	// BatchSize caps the number of items in one push request.
	BatchSize int

	// PushConcurrency bounds how many push batches may be in flight at
	// once within a push stage.
	PushConcurrency int

	// InitialFetchLimit caps the article count of a first-ever sync
	// (0 lets the server choose).
	InitialFetchLimit int

	// Logger for sync activity.
	Logger *log.Logger

	// Notify, if set, receives a progress event at every stage
	// transition. Called synchronously; must not block.
	Notify func(Event)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:       queue.DefaultBatchSize,
		PushConcurrency: 4,
		Logger:          log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Syncer drives sync runs against one store and one remote client.
type Syncer struct {
	store   store.Store
	client  *news.Client
	queue   *queue.Queue
	config  *Config
	running atomic.Bool
}

// New creates a Syncer. The store must have its schema initialized.
// If config is nil, DefaultConfig() is used.
//
// Example:
//
//	cache, err := store.Open(".feedsync/cache.db")
//	if err != nil {
//	    return err
//	}
//	transport, err := news.NewHTTPTransport(serverURL, user, pass, 2*time.Minute)
//	if err != nil {
//	    return err
//	}
//	s := syncer.New(cache, news.NewClient(transport), nil)
//	err = s.Sync(ctx)
func New(st store.Store, client *news.Client, config *Config) *Syncer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if config.PushConcurrency <= 0 {
		config.PushConcurrency = 1
	}
	return &Syncer{
		store:  st,
		client: client,
		queue:  queue.New(config.BatchSize),
		config: config,
	}
}

// Running reports whether a sync run is currently in progress.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

// Sync executes one full run. A second call while a run is in progress
// returns ErrSyncRunning.
//
// On failure the returned error is a *StageError naming the failed stage
// and carrying the classified fault; writes of stages completed before
// the failure stay committed. Cancellation is honored at stage
// boundaries only — a stage in flight completes or fails on its own.
func (s *Syncer) Sync(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSyncRunning
	}
	defer s.running.Store(false)

	stages := []struct {
		stage Stage
		run   func(context.Context) error
	}{
		{StagePushStars, s.pushStars},
		{StagePushReads, s.pushReads},
		{StagePullFolders, s.pullFolders},
		{StagePullFeeds, s.pullFeeds},
		{StagePullUnread, s.pullUnread},
		{StagePullStarred, s.pullStarred},
		{StagePullUpdated, s.pullUpdated},
	}

	s.config.Logger.Printf("Starting sync run")
	start := time.Now()

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			fe := s.classify(err)
			s.config.Logger.Printf("Run canceled before stage %s", st.stage)
			s.notify(Event{Type: EventStageFailed, Stage: st.stage, Err: fe, At: time.Now()})
			return &StageError{Stage: st.stage, Err: fe}
		}

		s.notify(Event{Type: EventStageStarted, Stage: st.stage, At: time.Now()})

		if err := st.run(ctx); err != nil {
			fe := s.classify(err)
			s.config.Logger.Printf("Stage %s failed: %v (retryable=%v)", st.stage, fe, fe.Retryable)
			s.notify(Event{Type: EventStageFailed, Stage: st.stage, Err: fe, At: time.Now()})
			return &StageError{Stage: st.stage, Err: fe}
		}

		s.notify(Event{Type: EventStageFinished, Stage: st.stage, At: time.Now()})
	}

	s.config.Logger.Printf("Sync run complete in %v", time.Since(start).Round(time.Millisecond))
	s.notify(Event{Type: EventRunFinished, Stage: StageIdle, At: time.Now()})
	return nil
}

// notify delivers a progress event if an observer is configured.
func (s *Syncer) notify(e Event) {
	if s.config.Notify != nil {
		s.config.Notify(e)
	}
}

// classify normalizes a stage failure. Remote operations already return
// classified errors; anything else came from the local store, which the
// engine treats as the cache being unavailable for this run.
func (s *Syncer) classify(err error) *fault.Error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.Canceled) {
		return fault.FromTransport(fault.CodeOperationCanceled, "sync canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.FromTransport(fault.CodeTimeout, "sync deadline exceeded")
	}
	return fault.Storage(err.Error())
}

func (s *Syncer) pushStars(ctx context.Context) error {
	return s.push(ctx, model.FieldStar)
}

func (s *Syncer) pushReads(ctx context.Context) error {
	return s.push(ctx, model.FieldRead)
}

// push drains pending changes of one field and sends them in batches,
// up to PushConcurrency in flight at once. All batches complete (or
// fail) before the stage transitions. Confirmed batches are cleared in
// queuing order inside one transaction; a failed batch keeps all of its
// changes pending, so the next run re-sends the whole batch.
func (s *Syncer) push(ctx context.Context, field model.Field) error {
	changes, err := s.store.PendingChanges(ctx, field)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		// Empty queue short-circuits the stage; never push an empty batch.
		return nil
	}

	batches, err := s.queue.Drain(changes, field)
	if err != nil {
		return err
	}

	s.config.Logger.Printf("Pushing %d %s change(s) in %d batch(es)",
		len(changes), field, len(batches))

	results := make([]error, len(batches))
	sem := make(chan struct{}, s.config.PushConcurrency)
	var wg sync.WaitGroup
	for i := range batches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.pushBatch(ctx, &batches[i])
		}(i)
	}
	wg.Wait()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var firstErr error
	for i := range batches {
		if results[i] != nil {
			if firstErr == nil {
				firstErr = results[i]
			}
			continue
		}
		// Clearing in batch order keeps store writes in queuing order
		// even when the transport completed batches out of order.
		if err := tx.ClearPending(ctx, batches[i].Seqs()); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	return firstErr
}

// pushBatch sends one batch to the endpoint matching its field and
// desired value.
func (s *Syncer) pushBatch(ctx context.Context, b *queue.Batch) error {
	switch b.Field {
	case model.FieldRead:
		if b.Value {
			return s.client.MarkRead(ctx, b.ArticleIDs())
		}
		return s.client.MarkUnread(ctx, b.ArticleIDs())
	case model.FieldStar:
		refs := make([]news.ItemRef, len(b.Changes))
		for i, c := range b.Changes {
			refs[i] = news.ItemRef{FeedID: c.FeedID, GUIDHash: c.GUIDHash}
		}
		if b.Value {
			return s.client.Star(ctx, refs)
		}
		return s.client.Unstar(ctx, refs)
	}
	return nil
}

func (s *Syncer) pullFolders(ctx context.Context) error {
	folders, err := s.client.Folders(ctx)
	if err != nil {
		return err
	}
	s.config.Logger.Printf("Pulled %d folder(s)", len(folders))
	return s.writeStage(ctx, func(tx store.Tx) error {
		return tx.UpsertFolders(ctx, folders)
	})
}

func (s *Syncer) pullFeeds(ctx context.Context) error {
	feeds, err := s.client.Feeds(ctx)
	if err != nil {
		return err
	}
	s.config.Logger.Printf("Pulled %d feed(s)", len(feeds))
	return s.writeStage(ctx, func(tx store.Tx) error {
		return tx.UpsertFeeds(ctx, feeds)
	})
}

func (s *Syncer) pullUnread(ctx context.Context) error {
	items, err := s.client.UnreadItems(ctx)
	if err != nil {
		return err
	}
	s.config.Logger.Printf("Pulled %d unread article(s)", len(items))
	return s.writeStage(ctx, func(tx store.Tx) error {
		return tx.UpsertArticles(ctx, items)
	})
}

func (s *Syncer) pullStarred(ctx context.Context) error {
	items, err := s.client.StarredItems(ctx)
	if err != nil {
		return err
	}
	s.config.Logger.Printf("Pulled %d starred article(s)", len(items))
	return s.writeStage(ctx, func(tx store.Tx) error {
		return tx.UpsertArticles(ctx, items)
	})
}

// pullUpdated fetches articles modified since the newest timestamp in
// the cache. An empty cache has no bound: the stage performs a full
// pull instead, capped by InitialFetchLimit.
func (s *Syncer) pullUpdated(ctx context.Context) error {
	max, err := s.store.MaxLastModified(ctx)
	if err != nil {
		return err
	}

	var items []model.Article
	if max == 0 {
		items, err = s.client.AllItems(ctx, s.config.InitialFetchLimit)
	} else {
		items, err = s.client.UpdatedItems(ctx, max)
	}
	if err != nil {
		return err
	}

	s.config.Logger.Printf("Pulled %d updated article(s) (since %d)", len(items), max)
	return s.writeStage(ctx, func(tx store.Tx) error {
		return tx.UpsertArticles(ctx, items)
	})
}

// writeStage runs fn inside one transaction, committing on success and
// rolling back on every other exit path.
func (s *Syncer) writeStage(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
