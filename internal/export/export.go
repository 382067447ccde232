// Package export renders breakdowns as XLSX workbooks.
package export

import (
	"fmt"
	"strings"

	"docbreak/internal/annotation"
	"docbreak/internal/store"

	"github.com/xuri/excelize/v2"
)

const (
	sectionsSheet = "Sections"
	infoSheet     = "Info"
)

// BreakdownXLSX returns a workbook with one row per section and an info sheet
// describing where the breakdown came from. docNames maps document ids to
// display names; missing ids are shown as is.
func BreakdownXLSX(b *store.Breakdown, docNames map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1"; rename it rather than leave it empty.
	if err := f.SetSheetName("Sheet1", sectionsSheet); err != nil {
		return nil, err
	}
	headers := []string{"#", "Title", "Content", "Source"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sectionsSheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sectionsSheet, "A1", "D1", style)
	}
	wrap, _ := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})

	for i, sec := range b.Sections {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sectionsSheet, cell, v)
		}
		write(1, i+1)
		write(2, sec.Title)
		write(3, sec.Content)
		write(4, formatLocation(sec.Source))
	}
	if n := len(b.Sections); n > 0 && wrap != 0 {
		last, _ := excelize.CoordinatesToCellName(3, n+1)
		_ = f.SetCellStyle(sectionsSheet, "C2", last, wrap)
	}
	_ = f.SetColWidth(sectionsSheet, "A", "A", 5)
	_ = f.SetColWidth(sectionsSheet, "B", "B", 32)
	_ = f.SetColWidth(sectionsSheet, "C", "C", 90)
	_ = f.SetColWidth(sectionsSheet, "D", "D", 18)
	_ = f.SetPanes(sectionsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.NewSheet(infoSheet); err != nil {
		return nil, err
	}
	names := make([]string, len(b.DocumentIDs))
	for i, id := range b.DocumentIDs {
		if n, ok := docNames[id]; ok && n != "" {
			names[i] = n
		} else {
			names[i] = id
		}
	}
	info := [][2]any{
		{"Breakdown ID", b.ID},
		{"Kind", b.Kind},
		{"Documents", strings.Join(names, ", ")},
		{"Model", b.ModelUsed},
		{"Strategy", b.Strategy},
		{"Sections", b.TotalSections},
		{"Created", b.CreatedAt.Format("2006-01-02 15:04:05")},
	}
	for i, kv := range info {
		_ = f.SetCellValue(infoSheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(infoSheet, fmt.Sprintf("B%d", i+1), kv[1])
	}
	_ = f.SetColWidth(infoSheet, "A", "A", 16)
	_ = f.SetColWidth(infoSheet, "B", "B", 60)

	idx, _ := f.GetSheetIndex(sectionsSheet)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// formatLocation renders a source location as "p. 3, line 2", "para 4" or
// "line 7".
func formatLocation(loc *annotation.Location) string {
	if loc == nil || loc.IsZero() {
		return ""
	}
	switch {
	case loc.Page > 0 && loc.Line > 0:
		return fmt.Sprintf("p. %d, line %d", loc.Page, loc.Line)
	case loc.Page > 0:
		return fmt.Sprintf("p. %d", loc.Page)
	case loc.Paragraph > 0:
		return fmt.Sprintf("para %d", loc.Paragraph)
	case loc.Line > 0:
		return fmt.Sprintf("line %d", loc.Line)
	}
	return ""
}
