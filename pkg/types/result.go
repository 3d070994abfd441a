package types

// ResultMetadata is the subset of chunk metadata returned with a query result.
type ResultMetadata struct {
	FilePath   string    `json:"file_path"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkType  ChunkType `json:"chunk_type"`
	Name       string    `json:"name"`
}

// QueryResult is a stored chunk ranked against a query vector.
type QueryResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata ResultMetadata `json:"metadata"`
	Distance float64        `json:"distance"` // 1 - cosine similarity
}

// Relevance converts the distance back to a cosine similarity.
func (r QueryResult) Relevance() float64 {
	return 1 - r.Distance
}

// IndexStats counts the per-file outcomes of an indexing run.
type IndexStats struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Add accumulates other into s
func (s *IndexStats) Add(other IndexStats) {
	s.Indexed += other.Indexed
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}
