package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/errs"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const consoleWidth = 80

// Report accumulates the sections of one run. HTML is always rendered;
// the console table only when a console writer is set.
type Report struct {
	baseURL  string
	console  io.Writer
	html     bytes.Buffer
	sections []Section
	hasData  bool
}

// New creates a report linking issues under baseURL. console may be nil.
func New(baseURL string, console io.Writer) *Report {
	return &Report{
		baseURL: strings.TrimRight(baseURL, "/"),
		console: console,
	}
}

// AddSection renders head, rows and foot of one section. An empty rows
// slice still renders the head and foot.
func (r *Report) AddSection(head Head, rows []Row) error {
	if len(rows) > 0 {
		r.hasData = true
	}
	section := Section{Head: head, Rows: rows}
	r.sections = append(r.sections, section)

	if r.console != nil {
		writeConsole(r.console, section)
	}

	if err := renderSection(&r.html, r.baseURL, section); err != nil {
		return errs.New("failed to render section %q: %w", section.Name(), err)
	}
	return nil
}

// HasData reports whether any row was added during the run.
func (r *Report) HasData() bool {
	return r.hasData
}

// Sections returns the sections added so far.
func (r *Report) Sections() []Section {
	return r.sections
}

// Fragment returns the accumulated HTML sections.
func (r *Report) Fragment() string {
	return r.html.String()
}

func writeConsole(w io.Writer, s Section) {
	title := s.Head.Title
	if title != "" {
		title = " " + cases.Title(language.English).String(title) + " "
	}
	fmt.Fprintln(w, center(title, consoleWidth, '='))
	if s.Head.Project != "" {
		fmt.Fprintln(w, center(s.Head.Project, consoleWidth, ' '))
	}
	if s.Head.SLA != "" {
		fmt.Fprintln(w, center(s.Head.SLA, consoleWidth, ' '))
	}
	fmt.Fprintln(w, center(s.Head.Description, consoleWidth, '-'))

	if s.Head.ShowProject {
		fmt.Fprintf(w, "%5s | %-32.32s | %-16.16s | %-6.6s | %-11s | %s\n", "id", "Subject", "Project", "Priority", "Created", "Expired")
	} else {
		fmt.Fprintf(w, "%5s | %-32.32s | %-6.6s | %-11s | %s\n", "id", "Subject", "Priority", "Created", "Expired")
	}

	for _, row := range s.Rows {
		created := row.Created.Format("02/01 15:04")
		if s.Head.ShowProject {
			fmt.Fprintf(w, "%5d | %-32.32s | %-16.16s | %-6.6s | %-11s | %s\n", row.ID, row.Subject, row.Project, row.Priority, created, row.Delta)
		} else {
			fmt.Fprintf(w, "%5d | %-32.32s | %-6.6s | %-11s | %s\n", row.ID, row.Subject, row.Priority, created, row.Delta)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", consoleWidth))
}

// center pads s on both sides with fill up to width runes; the odd rune
// of padding goes to the right.
func center(s string, width int, fill rune) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	pad := width - n
	left := pad / 2
	return strings.Repeat(string(fill), left) + s + strings.Repeat(string(fill), pad-left)
}
