package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/storage"
)

var (
	flagLimit     int
	flagExclude   []string
	flagChunkType string
	flagJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query <repo> <text>...",
	Short: "Search a repository index",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			req := searcher.Request{
				RepoID:       args[0],
				Query:        strings.Join(args[1:], " "),
				Limit:        flagLimit,
				ExcludeFiles: flagExclude,
			}
			if flagChunkType != "" {
				req.Where = map[string]string{"chunk_type": flagChunkType}
			}

			resp, err := a.searcher.Search(ctx, req)
			if err != nil {
				return err
			}

			if flagJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			if len(resp.Results) == 0 {
				fmt.Println("No results")
				return nil
			}
			for i, r := range resp.Results {
				fmt.Printf("%d. %s  [%s] %s  (%.3f)\n", i+1, r.Metadata.FilePath, r.Metadata.ChunkType, r.Metadata.Name, r.Relevance)
				fmt.Println(indent(r.Content))
			}
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <repo>",
	Short: "Show index statistics for a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			store, err := a.registry.OpenExisting(ctx, args[0])
			if err != nil {
				return err
			}
			stats := store.Stats()

			if flagJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					storage.Stats
					Keys        int `json:"keys"`
					KeysCooling int `json:"keys_cooling"`
				}{stats, a.keys.Len(), a.keys.Cooling()})
			}
			fmt.Printf("Repository: %s\n", stats.RepoID)
			fmt.Printf("Files:      %d\n", stats.IndexedFiles)
			fmt.Printf("Chunks:     %d\n", stats.TotalChunks)
			fmt.Printf("Dimension:  %d\n", stats.Dimension)
			fmt.Printf("Index:      %s\n", a.registry.Path(args[0]))
			fmt.Printf("Keys:       %d (%d cooling)\n", a.keys.Len(), a.keys.Cooling())
			return nil
		})
	},
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n    ")
}

func init() {
	queryCmd.Flags().IntVarP(&flagLimit, "limit", "n", searcher.DefaultLimit, "maximum number of results")
	queryCmd.Flags().StringSliceVar(&flagExclude, "exclude", nil, "file paths to leave out of the results")
	queryCmd.Flags().StringVar(&flagChunkType, "chunk-type", "", "only return chunks of this type")
	queryCmd.Flags().BoolVar(&flagJSON, "json", false, "print JSON")
	statsCmd.Flags().BoolVar(&flagJSON, "json", false, "print JSON")
	rootCmd.AddCommand(queryCmd, statsCmd)
}
