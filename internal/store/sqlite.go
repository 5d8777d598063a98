package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mlindgren/feedsync/internal/model"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLite is the embedded SQLite implementation of the Store contract.
// The database runs with WAL mode enabled so status queries can read
// while a sync run writes.
type SQLite struct {
	conn *sql.DB
	path string
}

// compile-time check that SQLite satisfies the engine contract.
var _ Store = (*SQLite)(nil)

// Open creates a new cache database connection at the specified path.
//
// If the database doesn't exist, it is created. The caller MUST call
// Close() when done.
//
// Example:
//
//	cache, err := store.Open(".feedsync/cache.db")
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
func Open(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas ride the DSN so every pooled connection gets them; foreign
	// key enforcement in particular must hold on all connections, the ID
	// remap depends on its ON UPDATE CASCADE.
	connStr := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &SQLite{
		conn: conn,
		path: path,
	}, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the cache schema if it doesn't exist. Idempotent.
func (s *SQLite) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the cache schema with context support.
func (s *SQLite) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY,
		folder_id INTEGER NOT NULL DEFAULT 0,  -- 0 means "no folder"
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY,
		feed_id INTEGER NOT NULL,
		guid_hash TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		unread INTEGER NOT NULL DEFAULT 0,
		starred INTEGER NOT NULL DEFAULT 0,
		pub_date INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (feed_id) REFERENCES feeds(id)
			ON DELETE CASCADE ON UPDATE CASCADE
	);

	-- Unflushed local mutations. One row per (article, field): a newer
	-- mutation of the same field replaces the older one.
	CREATE TABLE IF NOT EXISTS pending_changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id INTEGER NOT NULL,
		feed_id INTEGER NOT NULL,
		guid_hash TEXT NOT NULL,
		field TEXT NOT NULL,
		value INTEGER NOT NULL,
		queued_at TEXT NOT NULL,
		UNIQUE (article_id, field)
	);

	CREATE INDEX IF NOT EXISTS idx_feeds_folder ON feeds(folder_id);
	CREATE INDEX IF NOT EXISTS idx_articles_feed ON articles(feed_id);
	CREATE INDEX IF NOT EXISTS idx_articles_unread ON articles(unread);
	CREATE INDEX IF NOT EXISTS idx_articles_starred ON articles(starred);
	CREATE INDEX IF NOT EXISTS idx_articles_modified ON articles(last_modified);
	CREATE INDEX IF NOT EXISTS idx_pending_field ON pending_changes(field, seq);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Begin opens a write transaction scoped to one sync stage.
func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

// PendingChanges implements Store.PendingChanges.
func (s *SQLite) PendingChanges(ctx context.Context, field model.Field) ([]model.PendingChange, error) {
	query := `
	SELECT seq, article_id, feed_id, guid_hash, value, queued_at
	FROM pending_changes
	WHERE field = ?
	ORDER BY seq ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, field.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query pending changes: %w", err)
	}
	defer rows.Close()

	var changes []model.PendingChange
	for rows.Next() {
		var c model.PendingChange
		var value int
		var queuedAt string

		if err := rows.Scan(&c.Seq, &c.ArticleID, &c.FeedID, &c.GUIDHash, &value, &queuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}

		c.Field = field
		c.Value = value != 0
		if t, err := time.Parse(time.RFC3339, queuedAt); err == nil {
			c.QueuedAt = t
		}
		changes = append(changes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending changes: %w", err)
	}

	return changes, nil
}

// MaxLastModified implements Store.MaxLastModified.
func (s *SQLite) MaxLastModified(ctx context.Context) (int64, error) {
	var max int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(last_modified), 0) FROM articles").Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max last modified: %w", err)
	}
	return max, nil
}

// MarkArticle flips an article flag locally and queues the mutation for
// the next push. A previous unflushed mutation of the same field is
// replaced, so only the newest desired value ever reaches the server.
func (s *SQLite) MarkArticle(ctx context.Context, articleID int64, field model.Field, value bool) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var feedID int64
	var guidHash string
	err = tx.QueryRowContext(ctx,
		"SELECT feed_id, guid_hash FROM articles WHERE id = ?", articleID).
		Scan(&feedID, &guidHash)
	if err == sql.ErrNoRows {
		return fmt.Errorf("article %d not found", articleID)
	}
	if err != nil {
		return fmt.Errorf("failed to load article %d: %w", articleID, err)
	}

	column := "unread"
	flag := !value // value=true for "read" means unread=0
	if field == model.FieldStar {
		column = "starred"
		flag = value
	}

	query := fmt.Sprintf("UPDATE articles SET %s = ? WHERE id = ?", column)
	if _, err := tx.ExecContext(ctx, query, boolToInt(flag), articleID); err != nil {
		return fmt.Errorf("failed to update article flag: %w", err)
	}

	// Delete-then-insert so the replacement gets a fresh sequence number
	// and keeps queuing order meaningful.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM pending_changes WHERE article_id = ? AND field = ?",
		articleID, field.String()); err != nil {
		return fmt.Errorf("failed to replace pending change: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pending_changes (article_id, feed_id, guid_hash, field, value, queued_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		articleID, feedID, guidHash, field.String(), boolToInt(value),
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to queue pending change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkFeedRead marks every unread article of a feed as read and queues
// the mutations for the next push.
func (s *SQLite) MarkFeedRead(ctx context.Context, feedID int64) error {
	return s.markScopeRead(ctx, "feed_id = ?", feedID)
}

// MarkFolderRead marks every unread article in a folder as read and
// queues the mutations for the next push.
func (s *SQLite) MarkFolderRead(ctx context.Context, folderID int64) error {
	return s.markScopeRead(ctx,
		"feed_id IN (SELECT id FROM feeds WHERE folder_id = ?)", folderID)
}

func (s *SQLite) markScopeRead(ctx context.Context, cond string, arg int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	queuedAt := time.Now().UTC().Format(time.RFC3339)
	insert := `
	INSERT INTO pending_changes (article_id, feed_id, guid_hash, field, value, queued_at)
	SELECT id, feed_id, guid_hash, 'read', 1, ?
	FROM articles
	WHERE unread = 1 AND ` + cond + `
	ON CONFLICT (article_id, field) DO UPDATE SET
		value = excluded.value,
		queued_at = excluded.queued_at
	`
	if _, err := tx.ExecContext(ctx, insert, queuedAt, arg); err != nil {
		return fmt.Errorf("failed to queue read changes: %w", err)
	}

	update := "UPDATE articles SET unread = 0 WHERE unread = 1 AND " + cond
	if _, err := tx.ExecContext(ctx, update, arg); err != nil {
		return fmt.Errorf("failed to mark articles read: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RemapFolderID implements Store.RemapFolderID.
func (s *SQLite) RemapFolderID(ctx context.Context, oldID, newID int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE folders SET id = ? WHERE id = ?", newID, oldID); err != nil {
		return fmt.Errorf("failed to remap folder id %d -> %d: %w", oldID, newID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE feeds SET folder_id = ? WHERE folder_id = ?", newID, oldID); err != nil {
		return fmt.Errorf("failed to remap feed folder references: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RemapFeedID implements Store.RemapFeedID.
func (s *SQLite) RemapFeedID(ctx context.Context, oldID, newID int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Article feed references follow via ON UPDATE CASCADE.
	if _, err := tx.ExecContext(ctx,
		"UPDATE feeds SET id = ? WHERE id = ?", newID, oldID); err != nil {
		return fmt.Errorf("failed to remap feed id %d -> %d: %w", oldID, newID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE pending_changes SET feed_id = ? WHERE feed_id = ?", newID, oldID); err != nil {
		return fmt.Errorf("failed to remap pending change feed references: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nextLocalID returns a fresh temporary (negative) identifier for a
// locally created row in the given table.
func (s *SQLite) nextLocalID(ctx context.Context, table string) (int64, error) {
	var min sql.NullInt64
	query := fmt.Sprintf("SELECT MIN(id) FROM %s", table)
	if err := s.conn.QueryRowContext(ctx, query).Scan(&min); err != nil {
		return 0, fmt.Errorf("failed to query minimum id: %w", err)
	}
	if min.Valid && min.Int64 < 0 {
		return min.Int64 - 1, nil
	}
	return -1, nil
}

// CreateLocalFolder inserts a folder with a temporary negative ID.
// The ID is remapped once the folder is created server-side.
func (s *SQLite) CreateLocalFolder(ctx context.Context, name string) (int64, error) {
	id, err := s.nextLocalID(ctx, "folders")
	if err != nil {
		return 0, err
	}
	if _, err := s.conn.ExecContext(ctx,
		"INSERT INTO folders (id, name) VALUES (?, ?)", id, name); err != nil {
		return 0, fmt.Errorf("failed to create local folder: %w", err)
	}
	return id, nil
}

// CreateLocalFeed inserts a feed with a temporary negative ID.
// The ID is remapped once the feed is created server-side.
func (s *SQLite) CreateLocalFeed(ctx context.Context, url string, folderID int64) (int64, error) {
	id, err := s.nextLocalID(ctx, "feeds")
	if err != nil {
		return 0, err
	}
	if _, err := s.conn.ExecContext(ctx,
		"INSERT INTO feeds (id, folder_id, url) VALUES (?, ?, ?)",
		id, folderID, url); err != nil {
		return 0, fmt.Errorf("failed to create local feed: %w", err)
	}
	return id, nil
}

// DeleteFolder removes a folder and cascades removal of its feeds and
// their articles. Mirrors a server-confirmed delete; idempotent.
func (s *SQLite) DeleteFolder(ctx context.Context, folderID int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// feeds.folder_id has no foreign key (0 is the "no folder" sentinel),
	// so the feed cascade is explicit. Articles follow via their feed FK.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM feeds WHERE folder_id = ?", folderID); err != nil {
		return fmt.Errorf("failed to delete folder feeds: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM folders WHERE id = ?", folderID); err != nil {
		return fmt.Errorf("failed to delete folder %d: %w", folderID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteFeed removes a feed and its articles. Idempotent.
func (s *SQLite) DeleteFeed(ctx context.Context, feedID int64) error {
	if _, err := s.conn.ExecContext(ctx,
		"DELETE FROM feeds WHERE id = ?", feedID); err != nil {
		return fmt.Errorf("failed to delete feed %d: %w", feedID, err)
	}
	return nil
}

// RenameFolder updates a folder name locally.
func (s *SQLite) RenameFolder(ctx context.Context, folderID int64, name string) error {
	if _, err := s.conn.ExecContext(ctx,
		"UPDATE folders SET name = ? WHERE id = ?", name, folderID); err != nil {
		return fmt.Errorf("failed to rename folder %d: %w", folderID, err)
	}
	return nil
}

// MoveFeed updates a feed's folder reference locally.
func (s *SQLite) MoveFeed(ctx context.Context, feedID, folderID int64) error {
	if _, err := s.conn.ExecContext(ctx,
		"UPDATE feeds SET folder_id = ? WHERE id = ?", folderID, feedID); err != nil {
		return fmt.Errorf("failed to move feed %d: %w", feedID, err)
	}
	return nil
}

// Folders returns all cached folders ordered by name.
func (s *SQLite) Folders(ctx context.Context) ([]model.Folder, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, name FROM folders ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []model.Folder
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folders: %w", err)
	}
	return folders, nil
}

// Feeds returns all cached feeds ordered by ID.
func (s *SQLite) Feeds(ctx context.Context) ([]model.Feed, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, folder_id, url, title FROM feeds ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []model.Feed
	for rows.Next() {
		var f model.Feed
		if err := rows.Scan(&f.ID, &f.FolderID, &f.URL, &f.Title); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feeds: %w", err)
	}
	return feeds, nil
}

// GetArticle retrieves a single article by ID.
// Returns sql.ErrNoRows if the article is not found.
func (s *SQLite) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, feed_id, guid_hash, title, url, body, author,
	       unread, starred, pub_date, last_modified
	FROM articles WHERE id = ?`, id)

	var a model.Article
	var unread, starred int
	err := row.Scan(&a.ID, &a.FeedID, &a.GUIDHash, &a.Title, &a.URL, &a.Body,
		&a.Author, &unread, &starred, &a.PubDate, &a.LastModified)
	if err != nil {
		return nil, err
	}
	a.Unread = unread != 0
	a.Starred = starred != 0
	return &a, nil
}

// Counts returns the number of folders, feeds, articles and pending
// changes in the cache, for status reporting.
func (s *SQLite) Counts(ctx context.Context) (folders, feeds, articles, pending int, err error) {
	counts := []struct {
		table string
		dst   *int
	}{
		{"folders", &folders},
		{"feeds", &feeds},
		{"articles", &articles},
		{"pending_changes", &pending},
	}
	for _, c := range counts {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", c.table)
		if err = s.conn.QueryRowContext(ctx, query).Scan(c.dst); err != nil {
			err = fmt.Errorf("failed to count %s: %w", c.table, err)
			return
		}
	}
	return
}

// sqliteTx implements the Tx write scope over a database transaction.
type sqliteTx struct {
	tx *sql.Tx
}

// UpsertFolders implements Tx.UpsertFolders.
func (t *sqliteTx) UpsertFolders(ctx context.Context, folders []model.Folder) error {
	query := `
	INSERT INTO folders (id, name) VALUES (?, ?)
	ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`
	for i := range folders {
		f := &folders[i]
		if err := f.Validate(); err != nil {
			return fmt.Errorf("invalid folder: %w", err)
		}
		if _, err := t.tx.ExecContext(ctx, query, f.ID, f.Name); err != nil {
			return fmt.Errorf("failed to upsert folder %d: %w", f.ID, err)
		}
	}
	return nil
}

// UpsertFeeds implements Tx.UpsertFeeds.
func (t *sqliteTx) UpsertFeeds(ctx context.Context, feeds []model.Feed) error {
	query := `
	INSERT INTO feeds (id, folder_id, url, title) VALUES (?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		folder_id = excluded.folder_id,
		url = excluded.url,
		title = excluded.title
	`
	for i := range feeds {
		f := &feeds[i]
		if err := f.Validate(); err != nil {
			return fmt.Errorf("invalid feed: %w", err)
		}
		if _, err := t.tx.ExecContext(ctx, query, f.ID, f.FolderID, f.URL, f.Title); err != nil {
			return fmt.Errorf("failed to upsert feed %d: %w", f.ID, err)
		}
	}
	return nil
}

// UpsertArticles implements Tx.UpsertArticles.
//
// The unread and starred columns keep their local value while an
// unflushed pending change exists for the same field, so a pull never
// undoes a mutation the user made offline.
func (t *sqliteTx) UpsertArticles(ctx context.Context, articles []model.Article) error {
	query := `
	INSERT INTO articles (id, feed_id, guid_hash, title, url, body, author,
	                      unread, starred, pub_date, last_modified)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		feed_id = excluded.feed_id,
		guid_hash = excluded.guid_hash,
		title = excluded.title,
		url = excluded.url,
		body = excluded.body,
		author = excluded.author,
		unread = CASE WHEN EXISTS (
				SELECT 1 FROM pending_changes p
				WHERE p.article_id = excluded.id AND p.field = 'read'
			) THEN articles.unread ELSE excluded.unread END,
		starred = CASE WHEN EXISTS (
				SELECT 1 FROM pending_changes p
				WHERE p.article_id = excluded.id AND p.field = 'star'
			) THEN articles.starred ELSE excluded.starred END,
		pub_date = excluded.pub_date,
		last_modified = excluded.last_modified
	`
	for i := range articles {
		a := &articles[i]
		if err := a.Validate(); err != nil {
			return fmt.Errorf("invalid article: %w", err)
		}
		if _, err := t.tx.ExecContext(ctx, query,
			a.ID, a.FeedID, a.GUIDHash, a.Title, a.URL, a.Body, a.Author,
			boolToInt(a.Unread), boolToInt(a.Starred), a.PubDate, a.LastModified); err != nil {
			return fmt.Errorf("failed to upsert article %d: %w", a.ID, err)
		}
	}
	return nil
}

// ClearPending implements Tx.ClearPending.
func (t *sqliteTx) ClearPending(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(seqs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(seqs))
	for i, seq := range seqs {
		args[i] = seq
	}

	query := "DELETE FROM pending_changes WHERE seq IN (" + placeholders + ")"
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear pending changes: %w", err)
	}
	return nil
}

// Commit implements Tx.Commit.
func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback implements Tx.Rollback.
func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
