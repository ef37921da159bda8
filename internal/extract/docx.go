package extract

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strings"
)

// extractDocx reads the text of a .docx file. Legacy binary .doc files are
// not supported and reported as an extraction error.
func extractDocx(path string) ([]DocumentUnit, error) {
	if strings.HasSuffix(strings.ToLower(path), ".doc") {
		return nil, extractionErr(KindWord, "legacy .doc format is not supported, convert to .docx", nil)
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, extractionErr(KindWord, "failed to open document archive", err)
	}
	defer reader.Close()

	content, err := docxDocumentText(&reader.Reader)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, extractionErr(KindWord, "document contains no text", nil)
	}

	title := docxTitle(&reader.Reader)
	if title == "" {
		title = titleFromFilename(path)
	}

	return []DocumentUnit{{
		Content:    content,
		SourceKind: KindWord,
		SourceURI:  path,
		Title:      title,
		Extra:      map[string]string{},
	}}, nil
}

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

func docxDocumentText(reader *zip.Reader) (string, error) {
	raw, err := readZipFile(reader, "word/document.xml")
	if err != nil {
		return "", extractionErr(KindWord, "failed to read word/document.xml", err)
	}
	if raw == nil {
		return "", extractionErr(KindWord, "archive has no word/document.xml, not a docx file", nil)
	}

	var doc docxDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return "", extractionErr(KindWord, "malformed document XML", err)
	}

	var sb strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			sb.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, t := range run.Text {
				sb.WriteString(t.Content)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func docxTitle(reader *zip.Reader) string {
	raw, err := readZipFile(reader, "docProps/core.xml")
	if err != nil || raw == nil {
		return ""
	}
	var core struct {
		Title string `xml:"title"`
	}
	if err := xml.Unmarshal(raw, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}

func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, nil
}
