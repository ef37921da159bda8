// Package knowledge stores embedded text chunks and retrieves the ones most
// similar to a query. Two backends exist: an embedded chromem store and a
// remote Qdrant collection.
package knowledge

import (
	"context"
	"fmt"
)

// Chunk is one indexed piece of text with its provenance. Score is only set
// on chunks returned from Search.
type Chunk struct {
	ID         string
	Text       string
	SourceKind string
	SourceURI  string
	Title      string
	Extra      map[string]string
	Score      float32
}

// Embedder turns text into a vector. Both backends embed through the same
// provider so stored and query vectors live in one space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the retrieval surface the rest of the system programs against.
type Index interface {
	// Upsert stores chunks, replacing any with the same ID. An empty
	// slice is a no-op, not an error. Returns how many chunks were stored.
	Upsert(ctx context.Context, chunks []Chunk) (int, error)
	// Search returns up to k chunks ordered by descending similarity.
	// Fewer than k stored chunks yields fewer results, never an error.
	Search(ctx context.Context, query string, k int) ([]Chunk, error)
	// ClearAll wipes the entire index. Clearing an empty index succeeds.
	ClearAll(ctx context.Context) error
}

// StoreError wraps backend failures so callers can tell retrieval problems
// apart from their own.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("knowledge store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

const (
	sourceKindKey = "source_kind"
	sourceURIKey  = "source_uri"
	titleKey      = "title"
)

func chunkMetadata(c Chunk) map[string]string {
	meta := make(map[string]string, len(c.Extra)+3)
	for k, v := range c.Extra {
		meta[k] = v
	}
	meta[sourceKindKey] = c.SourceKind
	meta[sourceURIKey] = c.SourceURI
	meta[titleKey] = c.Title
	return meta
}

func chunkFromMetadata(id, text string, score float32, meta map[string]string) Chunk {
	c := Chunk{
		ID:         id,
		Text:       text,
		Score:      score,
		SourceKind: meta[sourceKindKey],
		SourceURI:  meta[sourceURIKey],
		Title:      meta[titleKey],
	}
	extra := make(map[string]string)
	for k, v := range meta {
		switch k {
		case sourceKindKey, sourceURIKey, titleKey:
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		c.Extra = extra
	}
	return c
}
