package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlindgren/feedsync/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache status",
	Long: `Display the current state of the local cache.

Shows:
  - Cache file location and size
  - Folder, feed and article counts
  - Queued changes waiting for the next push`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		info, err := os.Stat(cfg.Database)
		if os.IsNotExist(err) {
			fmt.Println("Cache not initialized")
			fmt.Println("   Run 'feedsync sync' to create it")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking cache: %v\n", err)
			os.Exit(1)
		}

		cache, err := store.Open(cfg.Database)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening cache database: %v\n", err)
			os.Exit(1)
		}
		defer cache.Close()

		folders, feeds, articles, pending, err := cache.Counts(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading cache stats: %v\n", err)
			os.Exit(1)
		}

		size := info.Size()
		sizeStr := fmt.Sprintf("%d bytes", size)
		if size > 1024*1024 {
			sizeStr = fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
		} else if size > 1024 {
			sizeStr = fmt.Sprintf("%.1f KB", float64(size)/1024)
		}

		fmt.Println("\nFeedsync Cache Status")
		fmt.Println()
		fmt.Printf("Server: %s\n", cfg.Server.URL)
		fmt.Printf("Location: %s\n", cfg.Database)
		fmt.Printf("Size: %s\n", sizeStr)
		fmt.Printf("Folders: %d\n", folders)
		fmt.Printf("Feeds: %d\n", feeds)
		fmt.Printf("Articles: %d\n", articles)
		fmt.Printf("Pending changes: %d\n", pending)
		fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
