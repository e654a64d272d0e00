// Package chunker splits source and text files into bounded,
// semantically-aligned chunks for vector indexing. Chunking is a pure
// function of the input: the same content and path always produce the
// same chunks, so re-indexing an unchanged file yields identical points.
package chunker

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/augmentd/internal/config"
)

// CodeChunk is one bounded slice of a file. Line numbers are 1-based and
// inclusive.
type CodeChunk struct {
	Content   string
	FilePath  string
	StartLine int
	EndLine   int
	Language  string
	ChunkType string
}

// Chunker dispatches on file extension to a language-aware splitting
// strategy.
type Chunker struct {
	cfg    config.ChunkerConfig
	logger *zap.Logger
}

// New validates the config and creates a Chunker.
func New(cfg config.ChunkerConfig, logger *zap.Logger) (*Chunker, error) {
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = 2000
	}
	if cfg.MinChunkSize == 0 {
		cfg.MinChunkSize = 50
	}
	if cfg.MinChunkSize >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("min chunk size %d must be < max chunk size %d",
			cfg.MinChunkSize, cfg.MaxChunkSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{cfg: cfg, logger: logger}, nil
}

// languageByExt maps recognized source extensions to their language and
// strategy family.
var languageByExt = map[string]string{
	".java":   "java",
	".kt":     "kotlin",
	".kts":    "kotlin",
	".scala":  "scala",
	".groovy": "groovy",

	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",

	".py": "python",

	".go": "go",
}

// Chunk splits content into ordered chunks. Empty and whitespace-only
// content yields no chunks.
func (c *Chunker) Chunk(content, filePath string) []CodeChunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	lang, ok := languageByExt[ext]
	if !ok {
		return c.chunkGeneric(content, filePath)
	}

	var chunks []CodeChunk
	switch lang {
	case "python":
		chunks = c.chunkByIndent(content, filePath, lang)
	default:
		chunks = c.chunkByBraces(content, filePath, lang, declPattern(lang))
	}

	c.logger.Debug("chunked file",
		zap.String("path", filePath),
		zap.String("language", lang),
		zap.Int("chunks", len(chunks)),
	)
	return chunks
}

// chunkGeneric handles config and text files: whole-file when it fits,
// fixed-size splitting otherwise.
func (c *Chunker) chunkGeneric(content, filePath string) []CodeChunk {
	lines := splitLines(content)
	if len(content) <= c.cfg.MaxChunkSize {
		return []CodeChunk{{
			Content:   content,
			FilePath:  filePath,
			StartLine: 1,
			EndLine:   len(lines),
			Language:  "text",
			ChunkType: "block",
		}}
	}

	var chunks []CodeChunk
	buf := newChunkBuffer(filePath, "text")
	for i, line := range lines {
		lineNo := i + 1
		// A single oversized line is cut at the size limit.
		for len(line) > c.cfg.MaxChunkSize {
			buf.add(line[:c.cfg.MaxChunkSize], lineNo)
			chunks = buf.flush(chunks, c.cfg.MinChunkSize, false)
			line = line[c.cfg.MaxChunkSize:]
		}
		if buf.size()+len(line) > c.cfg.MaxChunkSize && buf.size() > 0 {
			chunks = buf.flush(chunks, c.cfg.MinChunkSize, false)
		}
		buf.add(line, lineNo)
	}
	return buf.flush(chunks, c.cfg.MinChunkSize, true)
}

// chunkByBraces scans line-by-line tracking brace balance. A boundary is
// declared when a declaration line appears at neutral balance, so nested
// declarations never split their enclosing block.
func (c *Chunker) chunkByBraces(content, filePath, lang string, decl *declMatcher) []CodeChunk {
	var chunks []CodeChunk
	buf := newChunkBuffer(filePath, lang)
	balance := 0

	for i, line := range splitLines(content) {
		lineNo := i + 1
		if balance == 0 && buf.size() > 0 && decl.matches(line) {
			chunks = buf.flush(chunks, c.cfg.MinChunkSize, false)
		}
		buf.add(line, lineNo)
		balance += braceDelta(line)
		if balance < 0 {
			balance = 0
		}
		if balance == 0 && buf.size() > c.cfg.MaxChunkSize {
			chunks = buf.flush(chunks, c.cfg.MinChunkSize, false)
		}
	}
	return buf.flush(chunks, c.cfg.MinChunkSize, true)
}

// chunkByIndent is the Python strategy: top-level def/class lines at zero
// indentation open a new chunk. A column-zero decorator sticks to the
// declaration that follows it.
func (c *Chunker) chunkByIndent(content, filePath, lang string) []CodeChunk {
	var chunks []CodeChunk
	buf := newChunkBuffer(filePath, lang)
	prevDecorator := false

	for i, line := range splitLines(content) {
		lineNo := i + 1
		topLevel := line != "" && !isSpace(line[0])
		boundary := topLevel && !prevDecorator &&
			(pythonDecl(line) || strings.HasPrefix(line, "@"))
		if boundary && buf.size() > 0 {
			chunks = buf.flush(chunks, c.cfg.MinChunkSize, false)
		}
		buf.add(line, lineNo)
		prevDecorator = topLevel && strings.HasPrefix(line, "@")
		if buf.size() > c.cfg.MaxChunkSize && !prevDecorator {
			chunks = buf.flush(chunks, c.cfg.MinChunkSize, false)
		}
	}
	return buf.flush(chunks, c.cfg.MinChunkSize, true)
}

func pythonDecl(line string) bool {
	return strings.HasPrefix(line, "def ") ||
		strings.HasPrefix(line, "class ") ||
		strings.HasPrefix(line, "async def ")
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

// braceDelta counts the net brace balance change of a line, skipping
// braces inside string literals and trailing line comments.
func braceDelta(line string) int {
	delta := 0
	var quote byte
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			quote = ch
		case '{':
			delta++
		case '}':
			delta--
		case '/':
			if i+1 < len(line) && line[i+1] == '/' {
				return delta
			}
		case '#':
			return delta
		}
	}
	return delta
}

// splitLines splits on newlines, keeping empty lines and dropping a
// single trailing empty element from a terminal newline.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// chunkBuffer accumulates lines for the chunk under construction.
type chunkBuffer struct {
	filePath  string
	language  string
	lines     []string
	startLine int
	endLine   int
	bytes     int
}

func newChunkBuffer(filePath, language string) *chunkBuffer {
	return &chunkBuffer{filePath: filePath, language: language}
}

func (b *chunkBuffer) add(line string, lineNo int) {
	if len(b.lines) == 0 {
		b.startLine = lineNo
	}
	b.lines = append(b.lines, line)
	b.endLine = lineNo
	b.bytes += len(line) + 1
}

func (b *chunkBuffer) size() int { return b.bytes }

// flush appends the buffered chunk to chunks and resets the buffer.
// Chunks below minSize are dropped, except the final chunk of the file,
// which is always kept.
func (b *chunkBuffer) flush(chunks []CodeChunk, minSize int, final bool) []CodeChunk {
	if len(b.lines) == 0 {
		return chunks
	}
	content := strings.Join(b.lines, "\n")
	b.lines = nil
	b.bytes = 0

	if strings.TrimSpace(content) == "" {
		return chunks
	}
	if len(content) < minSize && !final {
		return chunks
	}
	return append(chunks, CodeChunk{
		Content:   content,
		FilePath:  b.filePath,
		StartLine: b.startLine,
		EndLine:   b.endLine,
		Language:  b.language,
		ChunkType: chunkTypeOf(content),
	})
}

// chunkTypeOf infers the chunk type facet from the first non-blank
// line's leading keyword.
func chunkTypeOf(content string) string {
	var first string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			first = strings.TrimSpace(line)
			break
		}
	}
	fields := strings.Fields(first)
	for _, word := range fields {
		switch word {
		case "class", "record", "struct":
			return "class"
		case "interface", "trait", "protocol":
			return "interface"
		case "object", "companion":
			return "object"
		case "enum":
			return "enum"
		case "func", "fun", "def", "function":
			return "function"
		case "val", "var", "let", "const", "property":
			return "property"
		case "type":
			return "type"
		}
	}
	return "block"
}
