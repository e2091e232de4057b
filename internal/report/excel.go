package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type ExcelExporter struct {
	Path    string
	BaseURL string
}

func NewExcelExporter(path, baseURL string) *ExcelExporter {
	return &ExcelExporter{Path: path, BaseURL: baseURL}
}

// Export writes a dashboard sheet plus one sheet per section.
func (e *ExcelExporter) Export(sections []Section) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "#000000", Style: 1},
			{Type: "right", Color: "#000000", Style: 1},
			{Type: "top", Color: "#000000", Style: 1},
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})

	used := map[string]bool{strings.ToLower("Dashboard"): true}
	sheetNames := make([]string, len(sections))
	for i, s := range sections {
		sheetNames[i] = uniqueSheetName(sanitizeSheetName(s.Name()), used)
	}

	if err := e.createDashboardSheet(f, "Dashboard", sections, sheetNames, headerStyle); err != nil {
		return fmt.Errorf("failed to create dashboard: %w", err)
	}

	for i, s := range sections {
		if err := e.createSectionSheet(f, sheetNames[i], s, headerStyle); err != nil {
			return fmt.Errorf("failed to create sheet for %s: %w", s.Name(), err)
		}
	}

	if idx, err := f.GetSheetIndex("Dashboard"); err == nil {
		f.SetActiveSheet(idx)
	}
	_ = f.DeleteSheet("Sheet1")

	if err := f.SaveAs(e.Path); err != nil {
		return fmt.Errorf("failed to save excel file: %w", err)
	}

	return nil
}

func (e *ExcelExporter) createDashboardSheet(f *excelize.File, sheetName string, sections []Section, sheetNames []string, headerStyle int) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	headers := []string{"Section", "SLA", "Description", "Issues"}
	for col, header := range headers {
		cell := cellName(col+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	total := 0
	for i, s := range sections {
		row := i + 2
		f.SetCellValue(sheetName, cellName(1, row), s.Name())
		f.SetCellHyperLink(sheetName, cellName(1, row), fmt.Sprintf("'%s'!A1", sheetNames[i]), "Location")
		f.SetCellValue(sheetName, cellName(2, row), s.Head.SLA)
		f.SetCellValue(sheetName, cellName(3, row), s.Head.Description)
		f.SetCellValue(sheetName, cellName(4, row), len(s.Rows))
		total += len(s.Rows)
	}

	totalRow := len(sections) + 2
	f.SetCellValue(sheetName, cellName(1, totalRow), "Total")
	f.SetCellValue(sheetName, cellName(4, totalRow), total)
	f.SetCellStyle(sheetName, cellName(1, totalRow), cellName(4, totalRow), headerStyle)

	f.SetColWidth(sheetName, "A", "A", 30)
	f.SetColWidth(sheetName, "B", "B", 10)
	f.SetColWidth(sheetName, "C", "C", 45)
	f.SetColWidth(sheetName, "D", "D", 10)

	return nil
}

func (e *ExcelExporter) createSectionSheet(f *excelize.File, sheetName string, s Section, headerStyle int) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	headers := []string{
		"#",
		"Issue",
		"Subject",
		"Project",
		"Priority",
		"Created",
		"Expired",
	}

	for col, header := range headers {
		cell := cellName(col+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, r := range s.Rows {
		row := i + 2
		project := r.Project
		if project == "" {
			project = s.Head.Project
		}

		f.SetCellValue(sheetName, cellName(1, row), i+1)
		f.SetCellValue(sheetName, cellName(2, row), fmt.Sprintf("#%d", r.ID))
		f.SetCellHyperLink(sheetName, cellName(2, row), IssueURL(e.BaseURL, r.ID), "External")
		f.SetCellValue(sheetName, cellName(3, row), r.Subject)
		f.SetCellValue(sheetName, cellName(4, row), project)
		f.SetCellValue(sheetName, cellName(5, row), r.Priority)
		f.SetCellValue(sheetName, cellName(6, row), r.Created.Format("2006-01-02 15:04"))
		f.SetCellValue(sheetName, cellName(7, row), r.Delta)
	}

	f.SetColWidth(sheetName, "A", "A", 5)
	f.SetColWidth(sheetName, "B", "B", 10)
	f.SetColWidth(sheetName, "C", "C", 50)
	f.SetColWidth(sheetName, "D", "D", 20)
	f.SetColWidth(sheetName, "E", "E", 12)
	f.SetColWidth(sheetName, "F", "G", 18)

	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return nil
}

func cellName(col, row int) string {
	return fmt.Sprintf("%s%d", columnLetter(col), row)
}

func columnLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}

func sanitizeSheetName(name string) string {
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	name = strings.ReplaceAll(name, "?", "")
	name = strings.ReplaceAll(name, "*", "")
	name = strings.ReplaceAll(name, ":", "-")
	name = strings.ReplaceAll(name, "'", "")
	name = strings.ReplaceAll(name, "[", "(")
	name = strings.ReplaceAll(name, "]", ")")

	if name == "" {
		name = "Section"
	}

	runes := []rune(name)
	if len(runes) > 31 {
		name = string(runes[:31])
	}

	return name
}

// uniqueSheetName appends a counter to name until it is unused. Sheet
// names compare case-insensitively, so used is keyed by lower case.
func uniqueSheetName(name string, used map[string]bool) string {
	candidate := name
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		runes := []rune(name)
		if len(runes)+len(suffix) > 31 {
			runes = runes[:31-len(suffix)]
		}
		candidate = string(runes) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
