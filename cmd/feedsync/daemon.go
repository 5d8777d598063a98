package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlindgren/feedsync/internal/config"
	"github.com/mlindgren/feedsync/internal/daemon"
	"github.com/mlindgren/feedsync/internal/dashboard"
	"github.com/mlindgren/feedsync/internal/syncer"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon (foreground)",
	Long: `Run feedsync as a foreground daemon.

The daemon:
  1. Syncs immediately, then once per configured interval
  2. Retries sooner after transient failures
  3. Watches the config file and hot-reloads the interval
  4. Optionally serves a WebSocket dashboard with live sync progress

Example usage:
  feedsync daemon
  feedsync daemon --config ~/.config/feedsync/feedsync.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		cache := openStore(cfg)
		defer cache.Close()

		scfg := syncer.DefaultConfig()
		scfg.BatchSize = cfg.Sync.BatchSize
		scfg.PushConcurrency = cfg.Sync.PushConcurrency
		scfg.InitialFetchLimit = cfg.Sync.InitialFetchLimit
		scfg.Logger = cfg.Logger("[sync] ")

		var dash *dashboard.Server
		if cfg.Dashboard.Enabled {
			dash = dashboard.NewServer(&dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: cfg.Logger("[dashboard] "),
			})
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			scfg.Notify = dash.Observer()
			fmt.Printf("Dashboard: ws://localhost:%d/ws\n", cfg.Dashboard.Port)
		}

		s := syncer.New(cache, newClient(cfg), scfg)

		dcfg := daemon.DefaultConfig()
		dcfg.Interval = cfg.Sync.Interval
		dcfg.Logger = cfg.Logger("[daemon] ")
		if dash != nil {
			dcfg.OnRunComplete = func(error) {
				folders, feeds, articles, pending, err := cache.Counts(context.Background())
				if err != nil {
					return
				}
				dash.BroadcastStats(dashboard.StatsData{
					Folders:  folders,
					Feeds:    feeds,
					Articles: articles,
					Pending:  pending,
				})
			}
		}

		d, err := daemon.New(s, cfg.Path, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}
		d.ReloadInterval = func() (time.Duration, error) {
			fresh, err := config.Load(cfg.Path)
			if err != nil {
				return 0, err
			}
			return fresh.Sync.Interval, nil
		}

		fmt.Printf("Starting sync daemon (every %s)...\n", cfg.Sync.Interval)
		fmt.Printf("   Server: %s\n", cfg.Server.URL)
		fmt.Printf("   Cache: %s\n", cfg.Database)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}

		if dash != nil {
			if err := dash.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during dashboard shutdown: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
