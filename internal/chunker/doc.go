// Package chunker divides source files into the chunks that are embedded and
// stored in a repository index.
//
// # Chunking Strategy
//
// For a file of L characters:
//   - file_summary: "File: <path>\n\n" followed by the parser's structural
//     summary, when the file's language is supported
//   - full_file: the whole content, when L < 4000
//   - code_chunk: otherwise, consecutive 50-line windows named
//     "<path>:L<start>-<end>" (1-based, inclusive); the last window may be
//     shorter
//
// # Basic Usage
//
//	c := chunker.New(parser.New())
//	for _, chunk := range c.Chunk("app/main.py", content) {
//	    fmt.Println(chunk.Type, chunk.Name)
//	}
package chunker
