package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Afrawles/redmine-alarm/internal/redmine"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func Test_NoActionPrintsHelp(t *testing.T) {
	out, err := runCmd(t)

	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "--wdd")
	assert.Contains(t, out, "/etc/redmine-alarm.conf")
}

func Test_ActionsAreExclusive(t *testing.T) {
	_, err := runCmd(t, "--new", "--fix")

	assert.Error(t, err)
}

func newTestTracker(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/issues.json", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get(redmine.APIKeyHeader) != "cli-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"issues":[
			{"id":42,"subject":"needs a plan","priority":{"id":2,"name":"Normal"},"created_on":"2024-01-01T00:00:00Z","project":{"id":1,"name":"Core"}}
		],"total_count":1}`)
	}).Methods(http.MethodGet)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, url string) string {
	t.Helper()
	t.Setenv("REDMINE_URL", "")
	t.Setenv("REDMINE_API_KEY", "")
	conf := filepath.Join(dir, "alarm.conf")
	require.NoError(t, os.WriteFile(conf, []byte(fmt.Sprintf("[redmine]\nurl = %q\napi-key = cli-key\n", url)), 0600))
	return conf
}

func Test_ListWithoutDueDate(t *testing.T) {
	srv := newTestTracker(t)
	dir := t.TempDir()
	conf := writeConfig(t, dir, srv.URL)

	page := filepath.Join(dir, "report.html")
	out, err := runCmd(t, "-c", conf, "--wdd", "-o", page, "--csv", dir)
	require.NoError(t, err)

	assert.Contains(t, out, page+" (HTML)")
	assert.Contains(t, out, "(CSV)")

	html, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Contains(t, string(html), srv.URL+"/issues/42")
	assert.Contains(t, string(html), "needs a plan")
}

func Test_TablesOnlyWhenVerbose(t *testing.T) {
	srv := newTestTracker(t)
	conf := writeConfig(t, t.TempDir(), srv.URL)

	out, err := runCmd(t, "-c", conf, "--wdd")
	require.NoError(t, err)
	assert.NotContains(t, out, "needs a plan")

	out, err = runCmd(t, "-c", conf, "--wdd", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "needs a plan")
	assert.Contains(t, out, "   42 | needs a plan")
}
