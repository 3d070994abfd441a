package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/internal/parser"
	"github.com/dshills/repoindex/pkg/types"
)

// numberedLines builds n lines of roughly 40 characters each
func numberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "value_%04d = compute(%04d)  # padding....\n", i, i)
	}
	return b.String()
}

func TestChunkSmallSupportedFile(t *testing.T) {
	c := New(parser.New())
	content := "def main():\n    print('hi')\n"

	chunks := c.Chunk("app/main.py", content)
	require.Len(t, chunks, 2)

	assert.Equal(t, types.ChunkFileSummary, chunks[0].Type)
	assert.Equal(t, "app/main.py", chunks[0].Name)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "File: app/main.py\n\nLanguage: python"))
	assert.Contains(t, chunks[0].Content, "Functions: main")

	assert.Equal(t, types.ChunkFullFile, chunks[1].Type)
	assert.Equal(t, "app/main.py", chunks[1].Name)
	assert.Equal(t, content, chunks[1].Content)
}

func TestChunkLargeFileWindows(t *testing.T) {
	c := New(parser.New())
	content := numberedLines(130)
	require.GreaterOrEqual(t, len(content), FullFileThreshold)

	chunks := c.Chunk("big.py", content)
	require.Len(t, chunks, 4)
	assert.Equal(t, types.ChunkFileSummary, chunks[0].Type)

	want := []struct {
		name  string
		lines int
	}{
		{"big.py:L1-50", 50},
		{"big.py:L51-100", 50},
		{"big.py:L101-130", 30},
	}
	for i, w := range want {
		chunk := chunks[i+1]
		assert.Equal(t, types.ChunkCode, chunk.Type)
		assert.Equal(t, w.name, chunk.Name)
		assert.Len(t, strings.Split(chunk.Content, "\n"), w.lines)
		assert.NoError(t, chunk.Validate())
	}
	assert.True(t, strings.HasPrefix(chunks[3].Content, "value_0101"))
}

func TestChunkWithoutTrailingNewline(t *testing.T) {
	c := New(nil)
	content := strings.TrimSuffix(numberedLines(120), "\n")

	chunks := c.Chunk("data.json", content)
	require.Len(t, chunks, 3)
	assert.Equal(t, "data.json:L101-120", chunks[2].Name)
}

func TestChunkUnsupportedLanguage(t *testing.T) {
	c := New(parser.New())

	chunks := c.Chunk("README.md", "# Title\n")
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkFullFile, chunks[0].Type)
}

func TestChunkThresholdCountsCharacters(t *testing.T) {
	c := New(nil)

	// 3999 multi-byte characters stay a single chunk
	content := strings.Repeat("é", FullFileThreshold-1)
	chunks := c.Chunk("notes.md", content)
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkFullFile, chunks[0].Type)

	chunks = c.Chunk("notes.md", strings.Repeat("é", FullFileThreshold))
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkCode, chunks[0].Type)
	assert.Equal(t, "notes.md:L1-1", chunks[0].Name)
}

func TestChunkEmptyFile(t *testing.T) {
	c := New(parser.New())

	chunks := c.Chunk("empty.py", "")
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkFileSummary, chunks[0].Type)

	assert.Empty(t, c.Chunk("empty.md", ""))

	blank := c.Chunk("blank.md", "  \n")
	require.Len(t, blank, 1)
	assert.Equal(t, types.ChunkFullFile, blank[0].Type)
	assert.Equal(t, "  \n", blank[0].Content)
}
