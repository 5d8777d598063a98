package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlindgren/feedsync/internal/fault"
	"github.com/mlindgren/feedsync/internal/model"
	"github.com/mlindgren/feedsync/internal/store"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Manage feed subscriptions",
}

var feedAddCmd = &cobra.Command{
	Use:   "add URL",
	Short: "Subscribe to a feed",
	Long: `Subscribe to a feed on the server and in the local cache.

When the server is unreachable the subscription is stored locally with
a temporary ID and published on the next 'feedsync import --publish'.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		folderName, _ := cmd.Flags().GetString("folder")

		cfg := loadConfig()
		cache := openStore(cfg)
		defer cache.Close()
		ctx := context.Background()

		var folderID int64
		if folderName != "" {
			folderID = mustFindFolder(ctx, cache, folderName).ID
		}

		feedURL := args[0]
		if folderID < 0 {
			// Parent folder is local-only; the feed must stay local too.
			id, err := cache.CreateLocalFeed(ctx, feedURL, folderID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error subscribing locally: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Folder not published yet; subscribed locally (temporary id %d)\n", id)
			return
		}

		feed, err := newClient(cfg).CreateFeed(ctx, feedURL, folderID)
		if err != nil {
			if !fault.IsRetryable(err) && fault.KindOf(err) != fault.KindTransport {
				fmt.Fprintf(os.Stderr, "Error subscribing: %v\n", err)
				os.Exit(1)
			}
			id, lerr := cache.CreateLocalFeed(ctx, feedURL, folderID)
			if lerr != nil {
				fmt.Fprintf(os.Stderr, "Error subscribing locally: %v\n", lerr)
				os.Exit(1)
			}
			fmt.Printf("Server unreachable; subscribed locally (temporary id %d)\n", id)
			return
		}

		if err := upsertFeed(ctx, cache, *feed); err != nil {
			fmt.Fprintf(os.Stderr, "Error caching feed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Subscribed to %s (id %d)\n", feed.URL, feed.ID)
	},
}

var feedRmCmd = &cobra.Command{
	Use:   "rm URL",
	Short: "Unsubscribe from a feed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		cache := openStore(cfg)
		defer cache.Close()
		ctx := context.Background()

		feed := mustFindFeed(ctx, cache, args[0])

		if feed.ID > 0 {
			if err := newClient(cfg).DeleteFeed(ctx, feed.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error unsubscribing on server: %v\n", err)
				os.Exit(1)
			}
		}
		if err := cache.DeleteFeed(ctx, feed.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error unsubscribing: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Unsubscribed from %s\n", args[0])
	},
}

var feedMoveCmd = &cobra.Command{
	Use:   "move URL",
	Short: "Move a feed into another folder",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		folderName, _ := cmd.Flags().GetString("folder")

		cfg := loadConfig()
		cache := openStore(cfg)
		defer cache.Close()
		ctx := context.Background()

		feed := mustFindFeed(ctx, cache, args[0])

		var folderID int64
		if folderName != "" {
			folderID = mustFindFolder(ctx, cache, folderName).ID
		}

		if feed.ID > 0 && folderID >= 0 {
			if err := newClient(cfg).MoveFeed(ctx, feed.ID, folderID); err != nil {
				fmt.Fprintf(os.Stderr, "Error moving feed on server: %v\n", err)
				os.Exit(1)
			}
		}
		if err := cache.MoveFeed(ctx, feed.ID, folderID); err != nil {
			fmt.Fprintf(os.Stderr, "Error moving feed: %v\n", err)
			os.Exit(1)
		}
		if folderName == "" {
			fmt.Printf("Moved %s out of its folder\n", args[0])
		} else {
			fmt.Printf("Moved %s to %q\n", args[0], folderName)
		}
	},
}

// mustFindFeed resolves a feed by URL from the cache or exits.
func mustFindFeed(ctx context.Context, cache *store.SQLite, feedURL string) model.Feed {
	feeds, err := cache.Feeds(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing feeds: %v\n", err)
		os.Exit(1)
	}
	for _, f := range feeds {
		if f.URL == feedURL {
			return f
		}
	}
	fmt.Fprintf(os.Stderr, "Error: feed %q not found (run 'feedsync sync' first?)\n", feedURL)
	os.Exit(1)
	return model.Feed{}
}

// upsertFeed writes one feed into the cache.
func upsertFeed(ctx context.Context, cache *store.SQLite, feed model.Feed) error {
	tx, err := cache.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.UpsertFeeds(ctx, []model.Feed{feed}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func init() {
	feedAddCmd.Flags().String("folder", "", "folder to place the feed in")
	feedMoveCmd.Flags().String("folder", "", "target folder (empty moves to top level)")

	feedCmd.AddCommand(feedAddCmd)
	feedCmd.AddCommand(feedRmCmd)
	feedCmd.AddCommand(feedMoveCmd)
	rootCmd.AddCommand(feedCmd)
}
