// Package extract converts raw inputs (local files, web pages, videos) into
// plain-text document units ready for chunking and indexing.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// SourceKind is the closed set of supported content origins.
type SourceKind string

const (
	KindPDF     SourceKind = "pdf"
	KindWord    SourceKind = "word"
	KindExcel   SourceKind = "excel"
	KindCSV     SourceKind = "csv"
	KindText    SourceKind = "text"
	KindCode    SourceKind = "code"
	KindWeb     SourceKind = "web"
	KindYouTube SourceKind = "youtube"
)

// DocumentUnit is one atomic piece of extracted content. Units live only as
// in-memory intermediates between extraction and chunking.
type DocumentUnit struct {
	Content    string
	SourceKind SourceKind
	SourceURI  string
	Title      string
	Extra      map[string]string
}

// ExtractionError reports an unreadable, empty, unsupported or blocked input.
// Extraction never partially succeeds: a failed input stores nothing.
type ExtractionError struct {
	Kind  SourceKind
	Cause string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %s: %v", e.Kind, e.Cause, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s): %s", e.Kind, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func extractionErr(kind SourceKind, cause string, err error) error {
	return &ExtractionError{Kind: kind, Cause: cause, Err: err}
}

// IsExtractionError reports whether err is (or wraps) an ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

// Summarizer optionally condenses thin metadata-only content into a short
// description. Used by the video path when no transcript exists.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Extractor dispatches inputs to the per-kind extraction strategies.
type Extractor struct {
	web        *webFetcher
	video      *videoFetcher
	summarizer Summarizer
}

// New builds an Extractor. summarizer may be nil; the video metadata fallback
// then skips model-generated summaries.
func New(summarizer Summarizer) *Extractor {
	return &Extractor{
		web:        newWebFetcher(),
		video:      newVideoFetcher(),
		summarizer: summarizer,
	}
}

// FromFile extracts a local file of a known kind.
func (e *Extractor) FromFile(ctx context.Context, path string, kind SourceKind) ([]DocumentUnit, error) {
	switch kind {
	case KindPDF:
		return extractPDF(path)
	case KindWord:
		return extractDocx(path)
	case KindExcel:
		return extractExcel(path)
	case KindCSV:
		return extractCSV(path)
	case KindText, KindCode:
		return extractPlainText(path, kind)
	case KindWeb, KindYouTube:
		return nil, extractionErr(kind, "kind requires a URL, not a file path", nil)
	default:
		return nil, extractionErr(kind, "unsupported source kind", nil)
	}
}

// FromWeb fetches a web page and extracts its visible text.
func (e *Extractor) FromWeb(ctx context.Context, url string) ([]DocumentUnit, error) {
	return e.web.extract(ctx, url)
}

// FromVideo extracts a transcript (or metadata fallback) for a video URL.
func (e *Extractor) FromVideo(ctx context.Context, url string) ([]DocumentUnit, error) {
	return e.video.extract(ctx, url, e.summarizer)
}

// KindForPath sniffs a source kind from a file extension. Returns false for
// extensions the pipeline does not recognize.
func KindForPath(path string) (SourceKind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF, true
	case ".docx", ".doc":
		return KindWord, true
	case ".xlsx", ".xls":
		return KindExcel, true
	case ".csv":
		return KindCSV, true
	case ".txt", ".md":
		return KindText, true
	case ".go", ".py", ".js", ".ts", ".java", ".c", ".cpp", ".h", ".rs", ".rb", ".sh", ".sql", ".json", ".yaml", ".yml", ".toml", ".html", ".css":
		return KindCode, true
	default:
		return "", false
	}
}
