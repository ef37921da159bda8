// Package chunker splits extracted text into overlapping windows sized for
// embedding and retrieval.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSize is the target chunk length in characters.
	DefaultSize = 1000
	// DefaultOverlap is how many trailing characters of one chunk reappear
	// at the head of the next, so sentences cut at a boundary stay
	// retrievable from both sides.
	DefaultOverlap = 200
)

// separators, best first. A chunk boundary snaps backwards to the last
// occurrence of the strongest separator inside the window.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits text into overlapping chunks of at most Size characters.
type Chunker struct {
	Size    int
	Overlap int
}

func New() *Chunker {
	return &Chunker{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Split breaks text into chunks. Text at most Size characters long comes
// back as a single chunk; empty or whitespace-only text yields nil.
// Consecutive chunks share exactly Overlap characters.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	size := c.Size
	if size <= 0 {
		size = DefaultSize
	}
	overlap := c.Overlap
	if overlap >= size {
		overlap = size / 4
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		end = breakPoint(runes, start, end, overlap)
		chunks = append(chunks, string(runes[start:end]))
		start = end - overlap
	}
	return chunks
}

// breakPoint finds where to end the chunk starting at start, preferring a
// natural separator over a hard cut at limit. Breaks inside the overlap
// region are rejected: they would stall the scan.
func breakPoint(runes []rune, start, limit, overlap int) int {
	window := string(runes[start:limit])
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx == -1 {
			continue
		}
		pos := utf8.RuneCountInString(window[:idx+len(sep)])
		if pos > overlap {
			return start + pos
		}
	}
	return limit
}
