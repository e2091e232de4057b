package report

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"os"

	"github.com/zeebo/errs"
)

//go:embed "templates"
var templateFS embed.FS

var templates = template.Must(template.New("report").Funcs(template.FuncMap{
	"issueURL": IssueURL,
}).ParseFS(templateFS, "templates/*.tmpl"))

func renderSection(w io.Writer, baseURL string, s Section) error {
	data := struct {
		Section
		BaseURL string
	}{
		Section: s,
		BaseURL: baseURL,
	}
	return templates.ExecuteTemplate(w, "section", data)
}

// Page wraps the accumulated sections in the mail page template.
func (r *Report) Page() (string, error) {
	var buf bytes.Buffer
	data := map[string]any{
		"Body": template.HTML(r.html.String()),
	}
	if err := templates.ExecuteTemplate(&buf, "page", data); err != nil {
		return "", errs.New("failed to render page: %w", err)
	}
	return buf.String(), nil
}

// WritePage saves the rendered page to path.
func (r *Report) WritePage(path string) error {
	page, err := r.Page()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(page), 0644); err != nil {
		return errs.New("failed to write HTML report: %w", err)
	}
	return nil
}
