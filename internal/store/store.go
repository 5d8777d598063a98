// Package store provides the local cache for feedsync.
//
// The sync engine talks to the cache through the Store interface: upserts
// for folders, feeds and articles inside a per-stage transaction, reads of
// dirty pending changes, clearing of confirmed changes, identifier remaps
// and the maximum known lastModified timestamp. The SQLite implementation
// lives in this package; the engine does not care what backs the contract.
package store

import (
	"context"

	"github.com/mlindgren/feedsync/internal/model"
)

// Store is the contract the sync engine requires from the local cache.
//
// Write operations performed during a sync stage go through a Tx obtained
// from Begin, so the cache never observes a half-applied stage. Reads and
// local mutations outside a sync run use the direct methods.
type Store interface {
	// Begin opens a write transaction scoped to one sync stage.
	Begin(ctx context.Context) (Tx, error)

	// PendingChanges returns all unflushed local mutations for the given
	// field in ascending queuing order.
	PendingChanges(ctx context.Context, field model.Field) ([]model.PendingChange, error)

	// MaxLastModified returns the highest lastModified timestamp in the
	// cache, or 0 if the cache holds no articles.
	MaxLastModified(ctx context.Context) (int64, error)

	// RemapFolderID replaces a locally assigned temporary folder ID with
	// the server-assigned one, updating feed references.
	RemapFolderID(ctx context.Context, oldID, newID int64) error

	// RemapFeedID replaces a locally assigned temporary feed ID with the
	// server-assigned one, updating article and pending-change references.
	RemapFeedID(ctx context.Context, oldID, newID int64) error
}

// Tx is a write scope covering one sync stage. Exactly one of Commit or
// Rollback must be called on every exit path.
type Tx interface {
	// UpsertFolders inserts or updates folders keyed by server ID.
	UpsertFolders(ctx context.Context, folders []model.Folder) error

	// UpsertFeeds inserts or updates feeds keyed by server ID.
	UpsertFeeds(ctx context.Context, feeds []model.Feed) error

	// UpsertArticles inserts or updates articles keyed by server ID.
	// A flag with an unflushed pending change is left untouched, so a
	// pull never overwrites a local mutation that has not been pushed.
	UpsertArticles(ctx context.Context, articles []model.Article) error

	// ClearPending removes confirmed pending changes by sequence number.
	ClearPending(ctx context.Context, seqs []int64) error

	Commit() error
	Rollback() error
}
