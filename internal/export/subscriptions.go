// Package export reads and writes subscription snapshots.
//
// A snapshot is a YAML document listing folders and feed subscriptions
// by name and URL, independent of server-assigned IDs. Snapshots move a
// subscription set between accounts or back it up alongside dotfiles.
// Importing creates missing folders and feeds locally with temporary
// IDs; Publish then creates them server-side and remaps the temporary
// IDs to the server-assigned ones.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mlindgren/feedsync/internal/model"
	"github.com/mlindgren/feedsync/internal/news"
)

// Subscriptions is the snapshot document format.
type Subscriptions struct {
	Folders []FolderEntry `yaml:"folders,omitempty"`
	Feeds   []FeedEntry   `yaml:"feeds,omitempty"`
}

// FolderEntry names one folder.
type FolderEntry struct {
	Name string `yaml:"name"`
}

// FeedEntry names one feed subscription. Folder refers to a FolderEntry
// by name; empty means the feed lives outside any folder.
type FeedEntry struct {
	URL    string `yaml:"url"`
	Folder string `yaml:"folder,omitempty"`
	Title  string `yaml:"title,omitempty"`
}

// Catalog is the slice of the local cache the snapshot logic needs.
type Catalog interface {
	Folders(ctx context.Context) ([]model.Folder, error)
	Feeds(ctx context.Context) ([]model.Feed, error)
	CreateLocalFolder(ctx context.Context, name string) (int64, error)
	CreateLocalFeed(ctx context.Context, url string, folderID int64) (int64, error)
	RemapFolderID(ctx context.Context, oldID, newID int64) error
	RemapFeedID(ctx context.Context, oldID, newID int64) error
}

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	DryRun bool // Preview without writing
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	FoldersCreated int
	FeedsCreated   int
	Skipped        int
	Errors         []string
}

// PublishResult contains statistics about a publish pass.
type PublishResult struct {
	FoldersPublished int
	FeedsPublished   int
	Errors           []string
}

// Snapshot builds a snapshot of the current subscription set.
func Snapshot(ctx context.Context, cat Catalog) (*Subscriptions, error) {
	folders, err := cat.Folders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	feeds, err := cat.Feeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	names := make(map[int64]string, len(folders))
	subs := &Subscriptions{}
	for _, f := range folders {
		names[f.ID] = f.Name
		subs.Folders = append(subs.Folders, FolderEntry{Name: f.Name})
	}
	for _, f := range feeds {
		subs.Feeds = append(subs.Feeds, FeedEntry{
			URL:    f.URL,
			Folder: names[f.FolderID],
			Title:  f.Title,
		})
	}

	sort.Slice(subs.Folders, func(i, j int) bool {
		return subs.Folders[i].Name < subs.Folders[j].Name
	})
	sort.Slice(subs.Feeds, func(i, j int) bool {
		return subs.Feeds[i].URL < subs.Feeds[j].URL
	})

	return subs, nil
}

// WriteFile writes a snapshot to path atomically via a temp file.
func WriteFile(subs *Subscriptions, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := yaml.Marshal(subs)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ReadFile reads a snapshot from path.
func ReadFile(path string) (*Subscriptions, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var subs Subscriptions
	if err := yaml.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("invalid snapshot YAML: %w", err)
	}
	return &subs, nil
}

// Backup copies the file at path to a timestamped sibling. Used before
// an import overwrites local state it may want back.
func Backup(path string) (string, error) {
	input, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input for backup: %w", err)
	}
	backupPath := path + ".backup." + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backupPath, input, 0600); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return backupPath, nil
}

// Import creates the snapshot's folders and feeds in the local cache.
// Entries that already exist (matched by folder name or feed URL) are
// skipped. New rows get temporary negative IDs; run Publish afterwards
// to create them server-side.
func Import(ctx context.Context, cat Catalog, subs *Subscriptions, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	existingFolders, err := cat.Folders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	folderIDs := make(map[string]int64, len(existingFolders))
	for _, f := range existingFolders {
		folderIDs[f.Name] = f.ID
	}

	for _, entry := range subs.Folders {
		if entry.Name == "" {
			result.Errors = append(result.Errors, "folder entry with empty name")
			continue
		}
		if _, ok := folderIDs[entry.Name]; ok {
			result.Skipped++
			continue
		}
		if opts.DryRun {
			result.FoldersCreated++
			continue
		}
		id, err := cat.CreateLocalFolder(ctx, entry.Name)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to create folder %q: %v", entry.Name, err))
			continue
		}
		folderIDs[entry.Name] = id
		result.FoldersCreated++
	}

	existingFeeds, err := cat.Feeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	feedURLs := make(map[string]bool, len(existingFeeds))
	for _, f := range existingFeeds {
		feedURLs[f.URL] = true
	}

	for _, entry := range subs.Feeds {
		if entry.URL == "" {
			result.Errors = append(result.Errors, "feed entry with empty url")
			continue
		}
		if feedURLs[entry.URL] {
			result.Skipped++
			continue
		}

		var folderID int64
		if entry.Folder != "" {
			id, ok := folderIDs[entry.Folder]
			if !ok {
				result.Errors = append(result.Errors,
					fmt.Sprintf("feed %q references unknown folder %q", entry.URL, entry.Folder))
				continue
			}
			folderID = id
		}

		if opts.DryRun {
			result.FeedsCreated++
			continue
		}
		if _, err := cat.CreateLocalFeed(ctx, entry.URL, folderID); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to create feed %q: %v", entry.URL, err))
			continue
		}
		feedURLs[entry.URL] = true
		result.FeedsCreated++
	}

	return result, nil
}

// Publish creates every locally created folder and feed (temporary
// negative ID) server-side and remaps the local rows to the
// server-assigned IDs. Folders go first so feeds can reference their
// final folder IDs.
func Publish(ctx context.Context, cat Catalog, client *news.Client) (*PublishResult, error) {
	result := &PublishResult{}

	folders, err := cat.Folders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	for _, f := range folders {
		if f.ID >= 0 {
			continue
		}
		created, err := client.CreateFolder(ctx, f.Name)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to publish folder %q: %v", f.Name, err))
			continue
		}
		if err := cat.RemapFolderID(ctx, f.ID, created.ID); err != nil {
			return result, err
		}
		result.FoldersPublished++
	}

	// Re-read feeds: folder remapping above rewrote their folder refs.
	feeds, err := cat.Feeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	for _, f := range feeds {
		if f.ID >= 0 {
			continue
		}
		if f.FolderID < 0 {
			// Parent folder failed to publish; retry next time.
			result.Errors = append(result.Errors,
				fmt.Sprintf("feed %q waits for its folder to publish", f.URL))
			continue
		}
		created, err := client.CreateFeed(ctx, f.URL, f.FolderID)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to publish feed %q: %v", f.URL, err))
			continue
		}
		if err := cat.RemapFeedID(ctx, f.ID, created.ID); err != nil {
			return result, err
		}
		result.FeedsPublished++
	}

	return result, nil
}
