package redmine

// SLAField is the name of the project custom field carrying the SLA tier.
const SLAField = "SLA"

type NamedRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type CustomField struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// String returns the field value when it is a plain string.
func (f CustomField) String() string {
	if s, ok := f.Value.(string); ok {
		return s
	}
	return ""
}

type Project struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	Identifier   string        `json:"identifier"`
	CustomFields []CustomField `json:"custom_fields"`
}

// SLA returns the project's SLA tier, or "" when the project is not
// subject to SLA tracking.
func (p Project) SLA() string {
	for _, f := range p.CustomFields {
		if f.Name == SLAField {
			return f.String()
		}
	}
	return ""
}

type Issue struct {
	ID        int      `json:"id"`
	Subject   string   `json:"subject"`
	Project   NamedRef `json:"project"`
	Status    NamedRef `json:"status"`
	Priority  NamedRef `json:"priority"`
	CreatedOn string   `json:"created_on"`
	DueDate   *string  `json:"due_date"`
}

// HasDueDate reports whether due_date is present and non-empty.
func (i Issue) HasDueDate() bool {
	return i.DueDate != nil && *i.DueDate != ""
}

// IssuePatch holds the issue fields written back by UpdateIssue.
type IssuePatch struct {
	DueDate string `json:"due_date,omitempty"`
}

type ProjectsResponse struct {
	Projects   []Project `json:"projects"`
	TotalCount int       `json:"total_count"`
	Offset     int       `json:"offset"`
	Limit      int       `json:"limit"`
}

type IssuesResponse struct {
	Issues     []Issue `json:"issues"`
	TotalCount int     `json:"total_count"`
	Offset     int     `json:"offset"`
	Limit      int     `json:"limit"`
}

type issueUpdate struct {
	Issue IssuePatch `json:"issue"`
}
