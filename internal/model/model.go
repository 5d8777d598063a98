// Package model defines the entities cached by feedsync: folders, feeds,
// articles and the pending changes recorded for offline mutations.
//
// Identifiers are server-assigned positive integers. An entity created
// locally while offline carries a negative temporary ID until its first
// successful push, at which point the store remaps it to the server ID.
package model

import (
	"fmt"
	"time"
)

// Folder is a named container for feeds.
type Folder struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Validate checks if the Folder has valid field values.
// Name uniqueness is enforced by the server, not checked here.
func (f *Folder) Validate() error {
	if f.ID == 0 {
		return fmt.Errorf("folder id is required")
	}
	if f.Name == "" {
		return fmt.Errorf("folder name is required")
	}
	return nil
}

// Feed is a single subscription. FolderID 0 means the feed lives outside
// any folder.
type Feed struct {
	ID       int64  `json:"id"`
	FolderID int64  `json:"folderId"`
	URL      string `json:"url"`
	Title    string `json:"title"`
}

// Validate checks if the Feed has valid field values.
func (f *Feed) Validate() error {
	if f.ID == 0 {
		return fmt.Errorf("feed id is required")
	}
	if f.URL == "" {
		return fmt.Errorf("feed url is required")
	}
	return nil
}

// Article is one item of a feed. GUIDHash is the stable content identifier
// the server uses for star/unstar operations, independent of ID.
// LastModified is a monotonic server timestamp driving incremental pulls.
// Body and metadata fields are opaque to the sync engine.
type Article struct {
	ID           int64  `json:"id"`
	FeedID       int64  `json:"feedId"`
	GUIDHash     string `json:"guidHash"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	Body         string `json:"body"`
	Author       string `json:"author"`
	Unread       bool   `json:"unread"`
	Starred      bool   `json:"starred"`
	PubDate      int64  `json:"pubDate"`
	LastModified int64  `json:"lastModified"`
}

// Validate checks if the Article has valid field values.
func (a *Article) Validate() error {
	if a.ID == 0 {
		return fmt.Errorf("article id is required")
	}
	if a.FeedID == 0 {
		return fmt.Errorf("article feed id is required")
	}
	if a.GUIDHash == "" {
		return fmt.Errorf("article guid hash is required")
	}
	return nil
}

// Field names a mutable article flag a pending change can target.
type Field int

const (
	// FieldRead is the read/unread flag.
	FieldRead Field = iota
	// FieldStar is the starred/unstarred flag.
	FieldStar
)

// String returns the column value used to persist the field.
func (f Field) String() string {
	switch f {
	case FieldRead:
		return "read"
	case FieldStar:
		return "star"
	default:
		return "unknown"
	}
}

// PendingChange records a local mutation that has not yet been confirmed
// by the server. At most one pending change exists per (article, field);
// a newer mutation of the same field replaces the older unflushed one.
//
// Seq is assigned by the store in mutation order and makes retried pushes
// deterministic: batches are always built in ascending Seq order.
type PendingChange struct {
	Seq       int64
	ArticleID int64
	FeedID    int64
	GUIDHash  string
	Field     Field
	Value     bool
	QueuedAt  time.Time
}

// Validate checks if the PendingChange references a pushable article.
func (p *PendingChange) Validate() error {
	if p.ArticleID <= 0 {
		return fmt.Errorf("pending change article id must be positive (got %d)", p.ArticleID)
	}
	if p.Field == FieldStar && p.GUIDHash == "" {
		return fmt.Errorf("pending star change requires a guid hash")
	}
	return nil
}
