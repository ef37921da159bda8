package core

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/secondbrain-labs/secondbrain/internal/chunker"
	"github.com/secondbrain-labs/secondbrain/internal/extract"
	"github.com/secondbrain-labs/secondbrain/internal/knowledge"
)

const previewLength = 200

// IngestService runs the write path: extract content, split it into chunks
// and store them in the knowledge index.
type IngestService struct {
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	index     knowledge.Index
}

func NewIngestService(extractor *extract.Extractor, index knowledge.Index) *IngestService {
	return &IngestService{
		extractor: extractor,
		chunker:   chunker.New(),
		index:     index,
	}
}

// IngestResult reports what one ingestion stored.
type IngestResult struct {
	SourceKind   string `json:"source_type"`
	Title        string `json:"title"`
	ChunksStored int    `json:"chunks_stored"`
	Preview      string `json:"preview"`
}

// IngestFile extracts and indexes a local file. The kind is sniffed from the
// file extension; unknown extensions are rejected before any extraction.
func (s *IngestService) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	kind, ok := extract.KindForPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	units, err := s.extractor.FromFile(ctx, path, kind)
	if err != nil {
		return nil, err
	}
	return s.indexUnits(ctx, units)
}

// IngestLink extracts and indexes a URL, dispatching YouTube links to the
// transcript path and everything else to the web page path.
func (s *IngestService) IngestLink(ctx context.Context, link string) (*IngestResult, error) {
	var (
		units []extract.DocumentUnit
		err   error
	)
	if IsVideoURL(link) {
		units, err = s.extractor.FromVideo(ctx, link)
	} else {
		units, err = s.extractor.FromWeb(ctx, link)
	}
	if err != nil {
		return nil, err
	}
	return s.indexUnits(ctx, units)
}

// Wipe deletes every indexed chunk. Stored chat sessions are untouched.
func (s *IngestService) Wipe(ctx context.Context) error {
	return s.index.ClearAll(ctx)
}

func (s *IngestService) indexUnits(ctx context.Context, units []extract.DocumentUnit) (*IngestResult, error) {
	var chunks []knowledge.Chunk
	for _, unit := range units {
		for _, piece := range s.chunker.Split(unit.Content) {
			chunks = append(chunks, knowledge.Chunk{
				ID:         uuid.New().String(),
				Text:       piece,
				SourceKind: string(unit.SourceKind),
				SourceURI:  unit.SourceURI,
				Title:      unit.Title,
				Extra:      unit.Extra,
			})
		}
	}

	stored, err := s.index.Upsert(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to index content: %w", err)
	}

	result := &IngestResult{ChunksStored: stored}
	if len(units) > 0 {
		result.SourceKind = string(units[0].SourceKind)
		result.Title = units[0].Title
		result.Preview = preview(units[0].Content)
	}
	log.Printf("Ingested %q (%s): %d chunks stored", result.Title, result.SourceKind, stored)
	return result, nil
}

// IsVideoURL reports whether link points at YouTube.
func IsVideoURL(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host == "youtube.com" || host == "youtu.be" || host == "m.youtube.com"
}

func preview(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= previewLength {
		return string(runes)
	}
	return string(runes[:previewLength]) + "..."
}
