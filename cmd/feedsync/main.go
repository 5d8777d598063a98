// Command feedsync is an offline-first reader cache for a Nextcloud
// News account. It mirrors folders, feeds and articles into a local
// SQLite database, queues read/star changes made offline, and
// reconciles both directions on every sync run.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlindgren/feedsync/internal/config"
	"github.com/mlindgren/feedsync/internal/news"
	"github.com/mlindgren/feedsync/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "feedsync",
	Short: "Offline-first sync for Nextcloud News",
	Long: `feedsync keeps a local article cache in step with a Nextcloud News
server. Reads and stars applied while offline are queued and pushed
before every pull, so the server never reverts a local change.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default: ./feedsync.yaml or ~/.config/feedsync/feedsync.yaml)")
}

// loadConfig reads and validates the configuration, exiting on failure.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openStore opens the cache database and makes sure its schema exists.
func openStore(cfg *config.Config) *store.SQLite {
	s, err := store.Open(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening cache database: %v\n", err)
		os.Exit(1)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return s
}

// newClient builds the remote client from the server section.
func newClient(cfg *config.Config) *news.Client {
	timeout := cfg.Server.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	transport, err := news.NewHTTPTransport(
		cfg.Server.URL, cfg.Server.Username, cfg.Server.Password, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return news.NewClient(transport)
}
