package report

import (
	"fmt"
	"strings"
	"time"
)

// Head describes one report section.
type Head struct {
	Title       string
	Project     string
	SLA         string
	Description string
	// ShowProject adds a project column, for sections spanning projects.
	ShowProject bool
}

// Row is one issue line.
type Row struct {
	ID       int
	Subject  string
	Priority string
	Project  string
	// Created is a local wall-clock time.
	Created time.Time
	Delta   string
}

type Section struct {
	Head Head
	Rows []Row
}

// Name identifies the section in summaries and exports.
func (s Section) Name() string {
	if s.Head.Project != "" {
		return s.Head.Project
	}
	return s.Head.Title
}

// IssueURL links an issue on the tracker.
func IssueURL(baseURL string, id int) string {
	return fmt.Sprintf("%s/issues/%d", strings.TrimRight(baseURL, "/"), id)
}
