package redmine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_NewQueryIsSeeded(t *testing.T) {
	q := NewQuery()

	assert.Equal(t, "sort=id&limit=100", q.Encode())
}

func Test_QueryKeepsInsertionOrder(t *testing.T) {
	q := NewQuery().
		Set("project_id", 7).
		Set("status_id", 1).
		Set("created_on", "<=2024-01-01T00:00:00Z")

	assert.Equal(t,
		"http://redmine.local/issues.json?sort=id&limit=100&project_id=7&status_id=1&created_on=<=2024-01-01T00:00:00Z",
		q.URL("http://redmine.local", "issues.json"),
	)
}

func Test_QueryOverwriteKeepsPosition(t *testing.T) {
	q := NewQuery().Set("status_id", 1).Set("sort", "created_on")

	assert.Equal(t, "sort=created_on&limit=100&status_id=1", q.Encode())
	v, ok := q.Get("sort")
	assert.True(t, ok)
	assert.Equal(t, "created_on", v)
}

func Test_QueryURLJoinsSlashes(t *testing.T) {
	q := NewQuery()

	assert.Equal(t, "http://r/projects.json?sort=id&limit=100", q.URL("http://r/", "/projects.json"))

	var empty *Query
	assert.Equal(t, "http://r/projects.json", empty.URL("http://r", "projects.json"))
}
