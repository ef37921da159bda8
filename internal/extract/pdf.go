package extract

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns one unit per document (whole-document policy; page
// boundaries carry no meaning for retrieval here).
func extractPDF(path string) ([]DocumentUnit, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, extractionErr(KindPDF, "failed to open PDF", err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, extractionErr(KindPDF, "failed to read PDF text", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return nil, extractionErr(KindPDF, "failed to read PDF text", err)
	}

	content := strings.TrimSpace(buf.String())
	if content == "" {
		return nil, extractionErr(KindPDF, "PDF contains no extractable text", nil)
	}

	return []DocumentUnit{{
		Content:    content,
		SourceKind: KindPDF,
		SourceURI:  path,
		Title:      titleFromFilename(path),
		Extra:      map[string]string{"pages": "all"},
	}}, nil
}

// titleFromFilename derives a readable title from a file path.
func titleFromFilename(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}
