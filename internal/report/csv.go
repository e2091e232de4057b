package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type CSVExporter struct {
	OutputDir string
	BaseURL   string
	// Now stamps the file names; time.Now when nil.
	Now func() time.Time
}

func NewCSVExporter(outputDir, baseURL string) *CSVExporter {
	return &CSVExporter{OutputDir: outputDir, BaseURL: baseURL}
}

// Export writes an issue list and a per-section dashboard into OutputDir.
// It returns the paths of the written files.
func (e *CSVExporter) Export(sections []Section) ([]string, error) {
	if err := os.MkdirAll(e.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	timestamp := now().Format("2006-01-02_15-04-05")

	issues := filepath.Join(e.OutputDir, fmt.Sprintf("alarm_%s_issues.csv", timestamp))
	if err := e.exportIssueList(issues, sections); err != nil {
		return nil, fmt.Errorf("failed to export issue list: %w", err)
	}

	dashboard := filepath.Join(e.OutputDir, fmt.Sprintf("alarm_%s_dashboard.csv", timestamp))
	if err := e.exportDashboard(dashboard, sections); err != nil {
		return nil, fmt.Errorf("failed to export dashboard: %w", err)
	}

	return []string{issues, dashboard}, nil
}

func (e *CSVExporter) exportIssueList(filename string, sections []Section) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"#",
		"Section",
		"Issue",
		"Subject",
		"Project",
		"Priority",
		"Created",
		"Expired",
		"URL",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	n := 0
	for _, s := range sections {
		for _, r := range s.Rows {
			n++
			project := r.Project
			if project == "" {
				project = s.Head.Project
			}
			row := []string{
				fmt.Sprintf("%d", n),
				s.Name(),
				fmt.Sprintf("%d", r.ID),
				r.Subject,
				project,
				r.Priority,
				formatCreated(r.Created),
				r.Delta,
				IssueURL(e.BaseURL, r.ID),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func (e *CSVExporter) exportDashboard(filename string, sections []Section) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"Section", "SLA", "Description", "Issues"}); err != nil {
		return err
	}

	total := 0
	for _, s := range sections {
		row := []string{
			s.Name(),
			s.Head.SLA,
			s.Head.Description,
			fmt.Sprintf("%d", len(s.Rows)),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		total += len(s.Rows)
	}

	if err := writer.Write([]string{"Total", "", "", fmt.Sprintf("%d", total)}); err != nil {
		return err
	}

	writer.Flush()
	return writer.Error()
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
