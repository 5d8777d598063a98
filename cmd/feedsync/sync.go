package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlindgren/feedsync/internal/fault"
	"github.com/mlindgren/feedsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full sync against the server",
	Long: `Run a single push-then-pull sync:

  1. Pushes queued star and read changes
  2. Pulls folders and feeds
  3. Pulls unread, starred and recently modified articles

A failed stage aborts the run; stages already committed keep their
writes, and the next run picks up where this one left off.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		cache := openStore(cfg)
		defer cache.Close()

		scfg := syncer.DefaultConfig()
		scfg.BatchSize = cfg.Sync.BatchSize
		scfg.PushConcurrency = cfg.Sync.PushConcurrency
		scfg.InitialFetchLimit = cfg.Sync.InitialFetchLimit
		scfg.Logger = cfg.Logger("[sync] ")

		s := syncer.New(cache, newClient(cfg), scfg)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("Syncing with %s...\n", cfg.Server.URL)
		start := time.Now()

		if err := s.Sync(ctx); err != nil {
			var se *syncer.StageError
			if errors.As(err, &se) {
				fmt.Fprintf(os.Stderr, "Error: stage %s failed: %v\n", se.Stage, se.Err)
				if fault.IsRetryable(err) {
					fmt.Fprintln(os.Stderr, "The failure is transient; try again.")
				}
			} else {
				fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			}
			os.Exit(1)
		}

		folders, feeds, articles, pending, err := cache.Counts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading cache stats: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Sync complete in %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Folders: %d\n", folders)
		fmt.Printf("   Feeds: %d\n", feeds)
		fmt.Printf("   Articles: %d\n", articles)
		if pending > 0 {
			fmt.Printf("   Pending changes: %d\n", pending)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
