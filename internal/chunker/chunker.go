package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dshills/repoindex/pkg/types"
)

const (
	// FullFileThreshold is the character count below which a file is kept as
	// a single full_file chunk
	FullFileThreshold = 4000

	// WindowLines is the number of lines per code_chunk window
	WindowLines = 50
)

// Summarizer produces the structural summary of a source file
type Summarizer interface {
	Supports(path string) bool
	Summarize(text, path string) string
}

// Chunker splits files into the units that get embedded
type Chunker struct {
	summarizer Summarizer
}

// New creates a Chunker. A nil summarizer disables file_summary chunks.
func New(s Summarizer) *Chunker {
	return &Chunker{summarizer: s}
}

// Chunk returns the chunks of a file in index order: an optional file_summary,
// then either one full_file chunk or a series of code_chunk windows.
func (c *Chunker) Chunk(path, content string) []types.Chunk {
	var chunks []types.Chunk

	if c.summarizer != nil && c.summarizer.Supports(path) {
		chunks = append(chunks, types.Chunk{
			Type:    types.ChunkFileSummary,
			Name:    path,
			Content: "File: " + path + "\n\n" + c.summarizer.Summarize(content, path),
		})
	}

	if content == "" {
		return chunks
	}

	if utf8.RuneCountInString(content) < FullFileThreshold {
		return append(chunks, types.Chunk{
			Type:    types.ChunkFullFile,
			Name:    path,
			Content: content,
		})
	}

	return append(chunks, windows(path, content)...)
}

// windows splits content into WindowLines-line code chunks. A single trailing
// newline does not start an extra line.
func windows(path, content string) []types.Chunk {
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	chunks := make([]types.Chunk, 0, (len(lines)+WindowLines-1)/WindowLines)
	for start := 0; start < len(lines); start += WindowLines {
		end := min(start+WindowLines, len(lines))
		chunks = append(chunks, types.Chunk{
			Type:      types.ChunkCode,
			Name:      fmt.Sprintf("%s:L%d-%d", path, start+1, end),
			Content:   strings.Join(lines[start:end], "\n"),
			StartLine: start + 1,
			EndLine:   end,
		})
	}
	return chunks
}
