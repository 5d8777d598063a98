package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlindgren/feedsync/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export subscriptions to a YAML snapshot",
	Long: `Write the current folder and feed subscriptions to a YAML file.

The snapshot records names and URLs only, never server-assigned IDs, so
it imports cleanly into any account.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		cache := openStore(cfg)
		defer cache.Close()

		ctx := context.Background()
		subs, err := export.Snapshot(ctx, cache)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error building snapshot: %v\n", err)
			os.Exit(1)
		}
		if err := export.WriteFile(subs, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing snapshot: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Exported %d folder(s) and %d feed(s) to %s\n",
			len(subs.Folders), len(subs.Feeds), args[0])
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import subscriptions from a YAML snapshot",
	Long: `Create the snapshot's folders and feeds locally. Entries that already
exist are skipped. New entries get temporary IDs; with --publish they
are created server-side immediately, otherwise run 'feedsync import
--publish' (or any import with --publish) once you are online.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		publish, _ := cmd.Flags().GetBool("publish")

		if len(args) == 0 && !publish {
			fmt.Fprintln(os.Stderr, "Error: need a snapshot file or --publish")
			os.Exit(1)
		}

		cfg := loadConfig()

		cache := openStore(cfg)
		defer cache.Close()

		ctx := context.Background()

		if len(args) == 1 {
			subs, err := export.ReadFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading snapshot: %v\n", err)
				os.Exit(1)
			}

			result, err := export.Import(ctx, cache, subs, export.ImportOptions{DryRun: dryRun})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error during import: %v\n", err)
				os.Exit(1)
			}

			verb := "Imported"
			if dryRun {
				verb = "Would import"
			}
			fmt.Printf("%s %d folder(s) and %d feed(s), %d already present\n",
				verb, result.FoldersCreated, result.FeedsCreated, result.Skipped)
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", e)
			}
		}

		if publish && !dryRun {
			result, err := export.Publish(ctx, cache, newClient(cfg))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error during publish: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Published %d folder(s) and %d feed(s) to the server\n",
				result.FoldersPublished, result.FeedsPublished)
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", e)
			}
		}
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "preview without writing")
	importCmd.Flags().Bool("publish", false, "create imported entries server-side")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
