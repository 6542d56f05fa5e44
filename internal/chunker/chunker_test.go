package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longText() string {
	var b strings.Builder
	for p := 0; p < 12; p++ {
		for s := 0; s < 9; s++ {
			fmt.Fprintf(&b, "Paragraph %d sentence %d talks about topic %d in some detail. ", p, s, (p*7+s)%5)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

// assertCoverage checks the spans: first starts at 0, last ends at
// the text end, and each seam overlaps by exactly the configured window.
func assertCoverage(t *testing.T, c *Chunker, text string, chunks []Chunk) {
	t.Helper()
	runes := []rune(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(runes), chunks[len(chunks)-1].End)

	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Text)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.LessOrEqual(t, ch.End-ch.Start, c.Size())
		assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text)
		if i > 0 {
			prev := chunks[i-1]
			assert.Equal(t, prev.End-c.Overlap(), ch.Start, "seam %d", i)
			rebuilt.WriteString(string([]rune(ch.Text)[c.Overlap():]))
		}
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunkBlankTextYieldsNothing(t *testing.T) {
	c := New()
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk(" \n\t "))
}

func TestChunkShortTextIsOneChunk(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog."
	chunks := New().Chunk(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{Index: 0, Start: 0, End: 44, Text: text}, chunks[0])
	assert.Equal(t, 9, chunks[0].TokenCount())
}

func TestChunkCoversTextWithOverlapOnlyAtSeams(t *testing.T) {
	text := longText()
	for _, cfg := range []struct{ size, overlap int }{{1000, 200}, {500, 100}, {300, 0}} {
		t.Run(fmt.Sprintf("%d/%d", cfg.size, cfg.overlap), func(t *testing.T) {
			c := New(WithSize(cfg.size), WithOverlap(cfg.overlap))
			chunks := c.Chunk(text)
			assert.Greater(t, len(chunks), 1)
			assertCoverage(t, c, text, chunks)
		})
	}
}

func TestChunkIsDeterministic(t *testing.T) {
	text := longText()
	c := New(WithSize(400), WithOverlap(80))
	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

func TestChunkPrefersParagraphBoundary(t *testing.T) {
	first := strings.Repeat("a", 70) + ". " + strings.Repeat("b", 10) + "\n\n"
	text := first + strings.Repeat("word ", 40)
	c := New(WithSize(100), WithOverlap(10))

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, len([]rune(first)), chunks[0].End)
	assertCoverage(t, c, text, chunks)
}

func TestChunkPrefersSentenceOverWord(t *testing.T) {
	text := strings.Repeat("x", 60) + ". " + strings.Repeat("y ", 30)
	c := New(WithSize(100), WithOverlap(10))

	chunks := c.Chunk(text)
	assert.Equal(t, 62, chunks[0].End)
	assertCoverage(t, c, text, chunks)
}

func TestChunkHardCutsUnbrokenText(t *testing.T) {
	text := strings.Repeat("z", 250)
	c := New(WithSize(100), WithOverlap(20))

	chunks := c.Chunk(text)
	assert.Equal(t, 100, chunks[0].End)
	assertCoverage(t, c, text, chunks)
}

func TestChunkCountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("日本語のテキスト。", 40)
	c := New(WithSize(120), WithOverlap(20))

	chunks := c.Chunk(text)
	assertCoverage(t, c, text, chunks)
}

func TestNewClampsOverlap(t *testing.T) {
	c := New(WithSize(100), WithOverlap(80))
	assert.Equal(t, 49, c.Overlap())

	c = New(WithSize(0), WithOverlap(-5))
	assert.Equal(t, DefaultSize, c.Size())
	assert.Equal(t, 0, c.Overlap())
}
