package redmine

import (
	"fmt"
	"strings"
)

// PageLimit is the number of items requested per listing call. Only the
// first page is ever read.
const PageLimit = 100

// Query accumulates query-string parameters in insertion order.
// Values are sent as they are, without URL encoding: callers only pass
// numeric ids, enum strings and pre-formatted date filters.
type Query struct {
	keys   []string
	values map[string]string
}

// NewQuery returns a query seeded with sort=id and limit=PageLimit.
func NewQuery() *Query {
	q := &Query{values: make(map[string]string)}
	return q.Set("sort", "id").Set("limit", PageLimit)
}

// Set adds or overwrites a parameter. An overwritten key keeps its
// original position.
func (q *Query) Set(key string, value any) *Query {
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.values[key] = fmt.Sprint(value)
	return q
}

// Get returns the value of key.
func (q *Query) Get(key string) (string, bool) {
	v, ok := q.values[key]
	return v, ok
}

// Encode joins the parameters as k1=v1&k2=v2.
func (q *Query) Encode() string {
	parts := make([]string, 0, len(q.keys))
	for _, k := range q.keys {
		parts = append(parts, k+"="+q.values[k])
	}
	return strings.Join(parts, "&")
}

// URL builds <base>/<path>?<params>.
func (q *Query) URL(base, path string) string {
	u := joinURL(base, path)
	if q == nil || len(q.keys) == 0 {
		return u
	}
	return u + "?" + q.Encode()
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
