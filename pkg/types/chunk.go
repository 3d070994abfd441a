package types

import (
	"strconv"
	"unicode/utf8"
)

// ChunkType represents the type of code chunk
type ChunkType string

const (
	ChunkFileSummary ChunkType = "file_summary"
	ChunkFullFile    ChunkType = "full_file"
	ChunkCode        ChunkType = "code_chunk"
)

// MaxStoredContent is the number of characters of chunk content kept in the index.
const MaxStoredContent = 500

// Valid reports whether t is a known chunk type
func (t ChunkType) Valid() bool {
	switch t {
	case ChunkFileSummary, ChunkFullFile, ChunkCode:
		return true
	default:
		return false
	}
}

// Chunk is a piece of a file that will be embedded and stored.
type Chunk struct {
	Type    ChunkType
	Name    string
	Content string

	// Location, 1-based inclusive. Zero for chunks that are not line windows.
	StartLine int
	EndLine   int
}

// Validate checks if the chunk is usable
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return ErrEmptyContent
	}
	if !c.Type.Valid() {
		return ErrInvalidChunkType
	}
	if c.Type == ChunkCode && (c.StartLine <= 0 || c.StartLine > c.EndLine) {
		return ErrInvalidLines
	}
	return nil
}

// ChunkRecord is the stored metadata for one embedded chunk.
type ChunkRecord struct {
	ID         string    `json:"id"`
	FilePath   string    `json:"file_path"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkType  ChunkType `json:"chunk_type"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
}

// NewChunkRecord builds the record for the chunk at position index of path.
// Content is truncated to MaxStoredContent characters.
func NewChunkRecord(path string, index int, c Chunk) ChunkRecord {
	return ChunkRecord{
		ID:         ChunkID(path, index),
		FilePath:   path,
		ChunkIndex: index,
		ChunkType:  c.Type,
		Name:       c.Name,
		Content:    Truncate(c.Content, MaxStoredContent),
	}
}

// Field returns the record's value for a metadata field name. The second return
// is false for unknown fields.
func (r *ChunkRecord) Field(name string) (string, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "file_path":
		return r.FilePath, true
	case "chunk_index":
		return strconv.Itoa(r.ChunkIndex), true
	case "chunk_type":
		return string(r.ChunkType), true
	case "name":
		return r.Name, true
	case "content":
		return r.Content, true
	default:
		return "", false
	}
}

// ChunkID returns the identifier of the chunk at position index of path.
func ChunkID(path string, index int) string {
	return path + ":" + strconv.Itoa(index)
}

// Truncate returns at most n characters (runes) of s.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
