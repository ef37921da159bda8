package extract

import (
	"os"
	"strings"
	"unicode/utf8"
)

// extractPlainText reads a text or code file as UTF-8. Content that does not
// decode is an error, never a silent empty unit.
func extractPlainText(path string, kind SourceKind) ([]DocumentUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, extractionErr(kind, "failed to read file", err)
	}

	if !utf8.Valid(data) {
		return nil, extractionErr(kind, "file is not valid UTF-8", nil)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, extractionErr(kind, "file is empty", nil)
	}

	return []DocumentUnit{{
		Content:    content,
		SourceKind: kind,
		SourceURI:  path,
		Title:      titleFromFilename(path),
		Extra:      map[string]string{},
	}}, nil
}
