package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mlindgren/feedsync/internal/model"
)

// setupTestStore creates a temporary cache database for testing.
func setupTestStore(t *testing.T) *SQLite {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return s
}

// seedTestData upserts one folder, one feed and one article.
func seedTestData(t *testing.T, s *SQLite) {
	t.Helper()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	if err := tx.UpsertFolders(ctx, []model.Folder{{ID: 1, Name: "Tech"}}); err != nil {
		t.Fatalf("UpsertFolders failed: %v", err)
	}
	if err := tx.UpsertFeeds(ctx, []model.Feed{
		{ID: 10, FolderID: 1, URL: "https://example.com/rss", Title: "Example"},
	}); err != nil {
		t.Fatalf("UpsertFeeds failed: %v", err)
	}
	if err := tx.UpsertArticles(ctx, []model.Article{
		{ID: 100, FeedID: 10, GUIDHash: "abc", Title: "Hello",
			Unread: true, Starred: false, LastModified: 1000},
	}); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seedTestData(t, s)
	seedTestData(t, s) // same data again must not duplicate or change state

	folders, feeds, articles, pending, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if folders != 1 || feeds != 1 || articles != 1 || pending != 0 {
		t.Errorf("counts = %d/%d/%d/%d, want 1/1/1/0", folders, feeds, articles, pending)
	}

	a, err := s.GetArticle(ctx, 100)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if !a.Unread || a.Starred || a.LastModified != 1000 {
		t.Errorf("article state changed after repeated upsert: %+v", a)
	}
}

func TestMarkArticleQueuesNewestValueOnly(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedTestData(t, s)

	// unread -> read, then read -> unread before any push.
	if err := s.MarkArticle(ctx, 100, model.FieldRead, true); err != nil {
		t.Fatalf("MarkArticle failed: %v", err)
	}
	if err := s.MarkArticle(ctx, 100, model.FieldRead, false); err != nil {
		t.Fatalf("MarkArticle failed: %v", err)
	}

	changes, err := s.PendingChanges(ctx, model.FieldRead)
	if err != nil {
		t.Fatalf("PendingChanges failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 coalesced pending change, got %d", len(changes))
	}
	if changes[0].Value != false {
		t.Errorf("pending value = %v, want the later mutation (false)", changes[0].Value)
	}
	if changes[0].ArticleID != 100 || changes[0].GUIDHash != "abc" {
		t.Errorf("pending change identity wrong: %+v", changes[0])
	}

	a, err := s.GetArticle(ctx, 100)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if !a.Unread {
		t.Error("article should be unread again after the second mutation")
	}
}

func TestPullNeverOverwritesPendingMutation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedTestData(t, s)

	// Star locally; not yet pushed.
	if err := s.MarkArticle(ctx, 100, model.FieldStar, true); err != nil {
		t.Fatalf("MarkArticle failed: %v", err)
	}

	// A pull reports the article unstarred (server state predates the
	// local mutation). The local flag must survive.
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.UpsertArticles(ctx, []model.Article{
		{ID: 100, FeedID: 10, GUIDHash: "abc", Title: "Hello",
			Unread: true, Starred: false, LastModified: 900},
	}); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	a, err := s.GetArticle(ctx, 100)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if !a.Starred {
		t.Error("pull overwrote an unflushed star mutation")
	}

	// Once the change is confirmed pushed, pulls apply normally again.
	changes, err := s.PendingChanges(ctx, model.FieldStar)
	if err != nil {
		t.Fatalf("PendingChanges failed: %v", err)
	}
	tx, err = s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.ClearPending(ctx, []int64{changes[0].Seq}); err != nil {
		t.Fatalf("ClearPending failed: %v", err)
	}
	if err := tx.UpsertArticles(ctx, []model.Article{
		{ID: 100, FeedID: 10, GUIDHash: "abc", Title: "Hello",
			Unread: true, Starred: false, LastModified: 1100},
	}); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	a, err = s.GetArticle(ctx, 100)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if a.Starred {
		t.Error("pull should apply once no pending change remains")
	}
}

func TestMarkFeedRead(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedTestData(t, s)

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.UpsertArticles(ctx, []model.Article{
		{ID: 101, FeedID: 10, GUIDHash: "def", Unread: true, LastModified: 1001},
		{ID: 102, FeedID: 10, GUIDHash: "ghi", Unread: false, LastModified: 1002},
	}); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if err := s.MarkFeedRead(ctx, 10); err != nil {
		t.Fatalf("MarkFeedRead failed: %v", err)
	}

	// Only the two unread articles (100, 101) get queued.
	changes, err := s.PendingChanges(ctx, model.FieldRead)
	if err != nil {
		t.Fatalf("PendingChanges failed: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 pending changes, got %d", len(changes))
	}
	for _, c := range changes {
		if !c.Value {
			t.Errorf("article %d: pending value = false, want read", c.ArticleID)
		}
	}

	a, err := s.GetArticle(ctx, 100)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if a.Unread {
		t.Error("article 100 should be read locally")
	}
}

func TestRemapFolderAndFeedIDs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	folderID, err := s.CreateLocalFolder(ctx, "Offline")
	if err != nil {
		t.Fatalf("CreateLocalFolder failed: %v", err)
	}
	if folderID >= 0 {
		t.Fatalf("local folder id = %d, want negative", folderID)
	}

	feedID, err := s.CreateLocalFeed(ctx, "https://example.com/rss", folderID)
	if err != nil {
		t.Fatalf("CreateLocalFeed failed: %v", err)
	}
	if feedID >= 0 {
		t.Fatalf("local feed id = %d, want negative", feedID)
	}

	if err := s.RemapFolderID(ctx, folderID, 7); err != nil {
		t.Fatalf("RemapFolderID failed: %v", err)
	}
	if err := s.RemapFeedID(ctx, feedID, 42); err != nil {
		t.Fatalf("RemapFeedID failed: %v", err)
	}

	feeds, err := s.Feeds(ctx)
	if err != nil {
		t.Fatalf("Feeds failed: %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("expected 1 feed, got %d", len(feeds))
	}
	if feeds[0].ID != 42 || feeds[0].FolderID != 7 {
		t.Errorf("feed after remap = %+v, want id=42 folder=7", feeds[0])
	}

	folders, err := s.Folders(ctx)
	if err != nil {
		t.Fatalf("Folders failed: %v", err)
	}
	if len(folders) != 1 || folders[0].ID != 7 {
		t.Errorf("folders after remap = %+v, want single folder id=7", folders)
	}
}

func TestDeleteFolderCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedTestData(t, s)

	if err := s.DeleteFolder(ctx, 1); err != nil {
		t.Fatalf("DeleteFolder failed: %v", err)
	}

	folders, feeds, articles, _, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if folders != 0 || feeds != 0 || articles != 0 {
		t.Errorf("counts after delete = %d/%d/%d, want 0/0/0", folders, feeds, articles)
	}

	// Deleting again is a no-op.
	if err := s.DeleteFolder(ctx, 1); err != nil {
		t.Errorf("repeated DeleteFolder should be idempotent: %v", err)
	}
}

func TestMaxLastModified(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	max, err := s.MaxLastModified(ctx)
	if err != nil {
		t.Fatalf("MaxLastModified failed: %v", err)
	}
	if max != 0 {
		t.Errorf("empty cache max = %d, want 0", max)
	}

	seedTestData(t, s)

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.UpsertArticles(ctx, []model.Article{
		{ID: 101, FeedID: 10, GUIDHash: "def", LastModified: 2500},
	}); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	max, err = s.MaxLastModified(ctx)
	if err != nil {
		t.Fatalf("MaxLastModified failed: %v", err)
	}
	if max != 2500 {
		t.Errorf("max = %d, want 2500", max)
	}
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.UpsertFolders(ctx, []model.Folder{{ID: 5, Name: "Doomed"}}); err != nil {
		t.Fatalf("UpsertFolders failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	folders, _, _, _, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if folders != 0 {
		t.Errorf("rolled back folder is visible (count %d)", folders)
	}
}
