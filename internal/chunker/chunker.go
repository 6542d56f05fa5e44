// Package chunker splits extracted text into overlapping retrieval units.
//
// Offsets are rune offsets, end exclusive. Consecutive chunks share exactly
// the configured overlap, and together the chunks cover the whole text.
package chunker

import (
	"strings"
	"unicode"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunk is one slice of the source text.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// TokenCount returns the number of whitespace separated words.
func (c Chunk) TokenCount() int {
	return len(strings.Fields(c.Text))
}

type Option func(*Chunker)

func WithSize(size int) Option {
	return func(c *Chunker) { c.size = size }
}

func WithOverlap(overlap int) Option {
	return func(c *Chunker) { c.overlap = overlap }
}

type Chunker struct {
	size    int
	overlap int
}

// New builds a chunker. The overlap is clamped below half the size so every
// step moves forward.
func New(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.size < 2 {
		c.size = DefaultSize
	}
	if c.overlap < 0 {
		c.overlap = 0
	}
	if c.overlap*2 >= c.size {
		c.overlap = (c.size - 1) / 2
	}
	return c
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text. Blank text yields nil.
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)

	var chunks []Chunk
	start := 0
	for {
		end := n
		if n-start > c.size {
			end = c.boundary(runes, start)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end >= n {
			return chunks
		}
		start = end - c.overlap
	}
}

// breakRules are tried in order; each reports whether a chunk may end at i.
var breakRules = []func(r []rune, i int) bool{
	// paragraph
	func(r []rune, i int) bool { return i >= 2 && r[i-1] == '\n' && r[i-2] == '\n' },
	// line
	func(r []rune, i int) bool { return r[i-1] == '\n' },
	// sentence
	func(r []rune, i int) bool {
		if i < 2 || !unicode.IsSpace(r[i-1]) {
			return false
		}
		switch r[i-2] {
		case '.', '!', '?', '。':
			return true
		}
		return false
	},
	// word
	func(r []rune, i int) bool { return unicode.IsSpace(r[i-1]) },
}

// boundary finds the latest preferred break in the second half of the
// window starting at start, or cuts hard at the window end.
func (c *Chunker) boundary(runes []rune, start int) int {
	limit := start + c.size
	floor := start + c.size/2
	for _, rule := range breakRules {
		for i := limit; i > floor; i-- {
			if rule(runes, i) {
				return i
			}
		}
	}
	return limit
}
