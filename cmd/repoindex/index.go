package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/config"
	"github.com/dshills/repoindex/pkg/types"
)

var (
	flagPrune   bool
	flagRebuild bool
)

var indexCmd = &cobra.Command{
	Use:   "index <repo>...",
	Short: "Crawl repositories and index every changed file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			start := time.Now()
			var err error
			if flagRebuild {
				err = rebuild(ctx, a, args)
			} else {
				var results map[string]types.IndexStats
				results, err = a.indexer.IndexRepositories(ctx, args)
				for _, repo := range args {
					if stats, ok := results[repo]; ok {
						printStats(repo, stats.Indexed, stats.Skipped, stats.Errors)
					}
				}
			}
			fmt.Printf("Done in %s\n", time.Since(start).Round(time.Millisecond))
			return err
		}, func(cfg *config.Config) {
			if flagPrune {
				cfg.Indexer.Prune = true
			}
		})
	},
}

// rebuild drops and re-crawls each repository in turn
func rebuild(ctx context.Context, a *app, repos []string) error {
	var errs []error
	for _, repo := range repos {
		stats, err := a.indexer.Rebuild(ctx, repo)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", repo, err))
			continue
		}
		printStats(repo, stats.Indexed, stats.Skipped, stats.Errors)
	}
	return errors.Join(errs...)
}

var updateCmd = &cobra.Command{
	Use:   "update <repo> <path>...",
	Short: "Re-index specific files of a repository",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			stats, err := a.indexer.IndexFiles(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			printStats(args[0], stats.Indexed, stats.Skipped, stats.Errors)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <repo> <path>...",
	Short: "Remove files from a repository index",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.indexer.DeleteFiles(ctx, args[0], args[1:]); err != nil {
				return err
			}
			fmt.Printf("%s: removed %d files\n", args[0], len(args)-1)
			return nil
		})
	},
}

func init() {
	indexCmd.Flags().BoolVar(&flagPrune, "prune", false, "delete indexed files that no longer exist")
	indexCmd.Flags().BoolVar(&flagRebuild, "rebuild", false, "drop the existing index and embed every file again")
	rootCmd.AddCommand(indexCmd, updateCmd, deleteCmd)
}
