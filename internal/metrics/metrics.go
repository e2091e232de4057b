package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/zeebo/errs"
)

// Registry holds the counters of a single run. It is pushed to a
// Pushgateway at the end of the run when one is configured.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	TrackerRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redmine_alarm_tracker_requests_total",
			Help: "Total number of requests sent to the tracker",
		},
		[]string{"method", "result"},
	)

	IssuesReported = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redmine_alarm_issues_reported_total",
			Help: "Total number of issues listed in reports",
		},
		[]string{"report"},
	)

	DueDatesFixed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redmine_alarm_due_dates_fixed_total",
			Help: "Total number of due date updates attempted",
		},
		[]string{"result"},
	)

	Mails = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redmine_alarm_mails_total",
			Help: "Total number of report mails by outcome",
		},
		[]string{"result"},
	)
)

// Push sends the registry to the Pushgateway at url under job.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, job).Gatherer(Registry).PushContext(ctx)
	return errs.Wrap(err)
}

// Reset zeroes every counter.
func Reset() {
	TrackerRequests.Reset()
	IssuesReported.Reset()
	DueDatesFixed.Reset()
	Mails.Reset()
}
