package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mlindgren/feedsync/internal/model"
	"github.com/mlindgren/feedsync/internal/store"
)

var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "Mark articles read, unread, starred or unstarred",
	Long: `Apply read/star changes to the local cache.

Changes take effect immediately and are queued for the server; the next
sync run pushes them before pulling anything, so the server never
reverts a change made here.`,
}

var markReadCmd = &cobra.Command{
	Use:   "read ID",
	Short: "Mark an article read",
	Args:  cobra.ExactArgs(1),
	Run:   markArticle(model.FieldRead, true, "read"),
}

var markUnreadCmd = &cobra.Command{
	Use:   "unread ID",
	Short: "Mark an article unread",
	Args:  cobra.ExactArgs(1),
	Run:   markArticle(model.FieldRead, false, "unread"),
}

var markStarCmd = &cobra.Command{
	Use:   "star ID",
	Short: "Star an article",
	Args:  cobra.ExactArgs(1),
	Run:   markArticle(model.FieldStar, true, "starred"),
}

var markUnstarCmd = &cobra.Command{
	Use:   "unstar ID",
	Short: "Unstar an article",
	Args:  cobra.ExactArgs(1),
	Run:   markArticle(model.FieldStar, false, "unstarred"),
}

var markFeedReadCmd = &cobra.Command{
	Use:   "feed-read URL",
	Short: "Mark every unread article of a feed read",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		cache := openStore(cfg)
		defer cache.Close()
		ctx := context.Background()

		feed := mustFindFeed(ctx, cache, args[0])
		if err := cache.MarkFeedRead(ctx, feed.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error marking feed read: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Marked %s read; changes push on next sync\n", args[0])
	},
}

var markFolderReadCmd = &cobra.Command{
	Use:   "folder-read NAME",
	Short: "Mark every unread article of a folder read",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		cache := openStore(cfg)
		defer cache.Close()
		ctx := context.Background()

		folder := mustFindFolder(ctx, cache, args[0])
		if err := cache.MarkFolderRead(ctx, folder.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error marking folder read: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Marked folder %q read; changes push on next sync\n", args[0])
	},
}

// markArticle builds a Run function applying one flag to one article.
func markArticle(field model.Field, value bool, verb string) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintf(os.Stderr, "Error: %q is not a valid article id\n", args[0])
			os.Exit(1)
		}

		cfg := loadConfig()
		cache := openStore(cfg)
		defer cache.Close()

		if err := applyMark(cache, id, field, value); err != nil {
			fmt.Fprintf(os.Stderr, "Error marking article: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Article %d %s; change pushes on next sync\n", id, verb)
	}
}

func applyMark(cache *store.SQLite, id int64, field model.Field, value bool) error {
	return cache.MarkArticle(context.Background(), id, field, value)
}

func init() {
	markCmd.AddCommand(markReadCmd)
	markCmd.AddCommand(markUnreadCmd)
	markCmd.AddCommand(markStarCmd)
	markCmd.AddCommand(markUnstarCmd)
	markCmd.AddCommand(markFeedReadCmd)
	markCmd.AddCommand(markFolderReadCmd)
	rootCmd.AddCommand(markCmd)
}
