package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/mcp"
	"github.com/dshills/repoindex/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			// Log startup info to stderr (stdout reserved for MCP protocol)
			log.WithFields(log.Fields{
				"version":    version,
				"build_mode": storage.BuildMode,
				"driver":     storage.DriverName,
			}).Info("repoindex MCP server starting")

			server := mcp.NewServer(a.registry, a.indexer, a.searcher, a.embedder, a.keys)

			errChan := make(chan error, 1)
			go func() {
				log.Info("MCP server ready, listening on stdio...")
				errChan <- server.Serve(ctx)
			}()

			select {
			case <-ctx.Done():
				log.Info("shutting down")
				return nil
			case err := <-errChan:
				return err
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
