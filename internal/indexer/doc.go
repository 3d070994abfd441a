// Package indexer keeps the semantic index of a repository in sync with its
// content.
//
// # Basic Usage
//
//	registry := storage.NewRegistry(dataDir)
//	resolve, _ := source.NewResolver(source.Config{Kind: source.KindLocal})
//	idx := indexer.New(registry, resolve, chunker.New(parser.New()), emb, indexer.DefaultConfig())
//
//	stats, err := idx.IndexFull(ctx, "/path/to/repo")
//	fmt.Printf("%d indexed, %d skipped, %d errors\n", stats.Indexed, stats.Skipped, stats.Errors)
//
// # Indexing Pipeline
//
// For every candidate file the indexer:
//
//  1. Reads the content through the repository's source.Provider
//  2. Asks the VectorStore whether the content hash changed, skipping the file if not
//  3. Chunks the file (file summary, then the full file or 50-line windows)
//  4. Embeds each chunk, dropping chunks whose embedding failed
//  5. Replaces the file's chunk set in the VectorStore in one transaction
//
// A file with no surviving chunk is counted as skipped and keeps no hash, so
// the next run tries it again.
//
// # Operations
//
// IndexFull crawls the repository breadth-first from its root. Directories
// named in Config.SkipDirs are never entered, files with an extension outside
// Config.SupportedExtensions or larger than Config.MaxFileSize are skipped.
// With Config.Prune, indexed files the crawl no longer finds are deleted.
//
// IndexFiles re-indexes a list of files, typically those changed by a commit,
// and DeleteFiles removes files from the index. IndexRepositories crawls
// several repositories concurrently.
//
// Watch follows filesystem events of a local checkout and feeds them to
// IndexFiles and DeleteFiles after a short debounce.
//
// # Error Handling
//
// Per-file failures are logged and counted in types.IndexStats; they never
// abort a run. A directory that cannot be listed also counts as one error,
// and prune leaves its indexed files alone. Only failures to open the index,
// a repository that does not exist, and context cancellation are returned as
// errors.
//
// # Concurrency
//
// Every operation holds the registry's lock for its repository, so two
// operations on the same repository never interleave. Within one operation
// files and chunks are processed sequentially.
package indexer
