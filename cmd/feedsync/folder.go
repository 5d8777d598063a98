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

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage folders",
}

var folderAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a folder",
	Long: `Create a folder on the server and in the local cache.

When the server is unreachable the folder is created locally with a
temporary ID and published on the next 'feedsync import --publish'.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		cache := openStore(cfg)
		defer cache.Close()
		ctx := context.Background()

		name := args[0]
		folder, err := newClient(cfg).CreateFolder(ctx, name)
		if err != nil {
			if !fault.IsRetryable(err) && fault.KindOf(err) != fault.KindTransport {
				fmt.Fprintf(os.Stderr, "Error creating folder: %v\n", err)
				os.Exit(1)
			}
			// Offline: keep the intent locally under a temporary ID.
			id, lerr := cache.CreateLocalFolder(ctx, name)
			if lerr != nil {
				fmt.Fprintf(os.Stderr, "Error creating folder locally: %v\n", lerr)
				os.Exit(1)
			}
			fmt.Printf("Server unreachable; created %q locally (temporary id %d)\n", name, id)
			return
		}

		if err := upsertFolder(ctx, cache, *folder); err != nil {
			fmt.Fprintf(os.Stderr, "Error caching folder: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created folder %q (id %d)\n", folder.Name, folder.ID)
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		cache := openStore(cfg)
		defer cache.Close()
		ctx := context.Background()

		folder := mustFindFolder(ctx, cache, args[0])

		// Folders not yet published exist only locally.
		if folder.ID > 0 {
			if err := newClient(cfg).RenameFolder(ctx, folder.ID, args[1]); err != nil {
				fmt.Fprintf(os.Stderr, "Error renaming folder on server: %v\n", err)
				os.Exit(1)
			}
		}
		if err := cache.RenameFolder(ctx, folder.ID, args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error renaming folder: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Renamed folder %q to %q\n", args[0], args[1])
	},
}

var folderRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Delete a folder and its feeds",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		cache := openStore(cfg)
		defer cache.Close()
		ctx := context.Background()

		folder := mustFindFolder(ctx, cache, args[0])

		if folder.ID > 0 {
			if err := newClient(cfg).DeleteFolder(ctx, folder.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error deleting folder on server: %v\n", err)
				os.Exit(1)
			}
		}
		if err := cache.DeleteFolder(ctx, folder.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting folder: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted folder %q\n", args[0])
	},
}

// mustFindFolder resolves a folder by name from the cache or exits.
func mustFindFolder(ctx context.Context, cache *store.SQLite, name string) model.Folder {
	folders, err := cache.Folders(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing folders: %v\n", err)
		os.Exit(1)
	}
	for _, f := range folders {
		if f.Name == name {
			return f
		}
	}
	fmt.Fprintf(os.Stderr, "Error: folder %q not found (run 'feedsync sync' first?)\n", name)
	os.Exit(1)
	return model.Folder{}
}

// upsertFolder writes one folder into the cache.
func upsertFolder(ctx context.Context, cache *store.SQLite, folder model.Folder) error {
	tx, err := cache.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.UpsertFolders(ctx, []model.Folder{folder}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func init() {
	folderCmd.AddCommand(folderAddCmd)
	folderCmd.AddCommand(folderRenameCmd)
	folderCmd.AddCommand(folderRmCmd)
	rootCmd.AddCommand(folderCmd)
}
