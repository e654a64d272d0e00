package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/augmentd/internal/config"
)

func testChunker(t *testing.T, max, min int) *Chunker {
	t.Helper()
	c, err := New(config.ChunkerConfig{MaxChunkSize: max, MinChunkSize: min}, nil)
	require.NoError(t, err)
	return c
}

func TestNewRejectsInvertedSizes(t *testing.T) {
	_, err := New(config.ChunkerConfig{MaxChunkSize: 100, MinChunkSize: 100}, nil)
	assert.Error(t, err)
}

func TestChunkEmptyContent(t *testing.T) {
	c := testChunker(t, 2000, 50)
	assert.Nil(t, c.Chunk("", "main.go"))
	assert.Nil(t, c.Chunk("   \n\t\n", "main.go"))
}

func TestChunkGoFunctions(t *testing.T) {
	src := `package main

import "fmt"

func Hello() {
	fmt.Println("hello")
}

func Goodbye() {
	fmt.Println("goodbye")
}
`
	c := testChunker(t, 2000, 10)
	chunks := c.Chunk(src, "main.go")

	require.Len(t, chunks, 3)
	assert.Contains(t, chunks[0].Content, "package main")
	assert.Contains(t, chunks[1].Content, "func Hello")
	assert.Contains(t, chunks[2].Content, "func Goodbye")
	assert.Equal(t, "function", chunks[1].ChunkType)
	assert.Equal(t, "go", chunks[1].Language)
	assert.Equal(t, 5, chunks[1].StartLine)
}

func TestChunkDoesNotSplitInsideBlocks(t *testing.T) {
	src := `export function outer() {
  function inner() {
    return 1;
  }
  return inner();
}

export function next() {
  return 2;
}
`
	c := testChunker(t, 2000, 10)
	chunks := c.Chunk(src, "app.ts")

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "function inner", "nested declaration must stay in its enclosing chunk")
	assert.Contains(t, chunks[1].Content, "function next")
	assert.Equal(t, "typescript", chunks[0].Language)
}

func TestChunkKotlinTypes(t *testing.T) {
	src := `class UserService(private val repo: UserRepo) {
    fun find(id: String) = repo.find(id)
}

interface Notifier {
    fun notify(msg: String)
}

enum class Color { RED, GREEN }

fun topLevel() = 42
`
	c := testChunker(t, 2000, 5)
	chunks := c.Chunk(src, "Service.kt")

	require.Len(t, chunks, 4)
	assert.Equal(t, "class", chunks[0].ChunkType)
	assert.Equal(t, "interface", chunks[1].ChunkType)
	assert.Equal(t, "enum", chunks[2].ChunkType)
	assert.Equal(t, "function", chunks[3].ChunkType)
}

func TestChunkPythonDecoratorSticksToFunction(t *testing.T) {
	src := `import os

@cached
def expensive():
    return os.listdir(".")

class Worker:
    def run(self):
        pass
`
	c := testChunker(t, 2000, 5)
	chunks := c.Chunk(src, "worker.py")

	require.Len(t, chunks, 3)
	assert.Contains(t, chunks[1].Content, "@cached")
	assert.Contains(t, chunks[1].Content, "def expensive")
	assert.Contains(t, chunks[2].Content, "class Worker")
	assert.Contains(t, chunks[2].Content, "def run", "method must stay inside its class chunk")
	assert.Equal(t, "class", chunks[2].ChunkType)
}

func TestChunkConfigFileWholeFile(t *testing.T) {
	src := "server:\n  port: 8080\n  host: localhost\n"
	c := testChunker(t, 2000, 5)
	chunks := c.Chunk(src, "config.yaml")

	require.Len(t, chunks, 1)
	assert.Equal(t, src, chunks[0].Content)
	assert.Equal(t, "text", chunks[0].Language)
	assert.Equal(t, "block", chunks[0].ChunkType)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
}

func TestChunkOversizedTextSplit(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("some configuration line with enough text to matter\n")
	}
	c := testChunker(t, 500, 10)
	chunks := c.Chunk(b.String(), "notes.txt")

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Content), 500+1, "chunk %d too large", i)
	}
}

func TestChunkDropsShortChunksExceptFinal(t *testing.T) {
	src := `func A() {
	doSomethingSubstantialEnoughToKeepThisChunk()
	andAnotherLineSoItClearsTheMinimumComfortably()
}

func B() {}
`
	c := testChunker(t, 2000, 60)
	chunks := c.Chunk(src, "short.go")

	// func B alone is under the minimum but is the final chunk, so it is
	// kept; the whole-file scan keeps func A as well.
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[1].Content, "func B")
}

func TestChunkDeterministic(t *testing.T) {
	src := `package demo

func One() int { return 1 }

func Two() int { return 2 }
`
	c := testChunker(t, 2000, 5)
	first := c.Chunk(src, "demo.go")
	second := c.Chunk(src, "demo.go")
	assert.Equal(t, first, second)
}

func TestBraceDelta(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{"func x() {", 1},
		{"}", -1},
		{"if a { b() } else {", 1},
		{`s := "{not a brace}"`, 0},
		{"x := 1 // comment with {", 0},
		{"# yaml comment {", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, braceDelta(tt.line), "line %q", tt.line)
	}
}
