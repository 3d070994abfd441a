package main

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var flagNoInitial bool

var watchCmd = &cobra.Command{
	Use:   "watch <repo>",
	Short: "Index a local repository and keep it current as files change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			repo := args[0]
			if !flagNoInitial {
				stats, err := a.indexer.IndexFull(ctx, repo)
				if err != nil {
					return err
				}
				printStats(repo, stats.Indexed, stats.Skipped, stats.Errors)
			}

			log.WithField("repo", repo).Info("watching for changes")
			err := a.indexer.Watch(ctx, repo, a.cfg.Indexer.Debounce)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}

func init() {
	watchCmd.Flags().BoolVar(&flagNoInitial, "no-initial", false, "skip the initial full crawl")
	rootCmd.AddCommand(watchCmd)
}
