package extract

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel serializes every sheet of a workbook into a readable
// tab-separated block. Sheets are concatenated with a header naming each one.
func extractExcel(path string) ([]DocumentUnit, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xls") {
		return nil, extractionErr(KindExcel, "legacy .xls format is not supported, convert to .xlsx", nil)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, extractionErr(KindExcel, "failed to open workbook", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, extractionErr(KindExcel, fmt.Sprintf("failed to read sheet %q", sheet), err)
		}
		if len(rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("=== Sheet: %s ===\n", sheet))
		writeTable(&sb, rows)
	}

	content := strings.TrimSpace(sb.String())
	if content == "" {
		return nil, extractionErr(KindExcel, "workbook contains no data", nil)
	}

	return []DocumentUnit{{
		Content:    content,
		SourceKind: KindExcel,
		SourceURI:  path,
		Title:      titleFromFilename(path),
		Extra:      map[string]string{"sheets": fmt.Sprintf("%d", len(f.GetSheetList()))},
	}}, nil
}

// extractCSV serializes a CSV file as a single tabular block.
func extractCSV(path string) ([]DocumentUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, extractionErr(KindCSV, "failed to open file", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // tolerate ragged rows
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, extractionErr(KindCSV, "malformed CSV", err)
	}
	if len(rows) == 0 {
		return nil, extractionErr(KindCSV, "file contains no rows", nil)
	}

	var sb strings.Builder
	writeTable(&sb, rows)

	return []DocumentUnit{{
		Content:    strings.TrimSpace(sb.String()),
		SourceKind: KindCSV,
		SourceURI:  path,
		Title:      titleFromFilename(path),
		Extra:      map[string]string{"rows": fmt.Sprintf("%d", len(rows))},
	}}, nil
}

func writeTable(sb *strings.Builder, rows [][]string) {
	for _, row := range rows {
		sb.WriteString(strings.Join(row, "\t"))
		sb.WriteString("\n")
	}
}
