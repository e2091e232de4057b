// Package alarm runs the tracker reports and mails the result.
package alarm

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Afrawles/redmine-alarm/internal/config"
	"github.com/Afrawles/redmine-alarm/internal/logging"
	"github.com/Afrawles/redmine-alarm/internal/mailer"
	"github.com/Afrawles/redmine-alarm/internal/metrics"
	"github.com/Afrawles/redmine-alarm/internal/redmine"
	"github.com/Afrawles/redmine-alarm/internal/report"
)

const (
	// SubjectWithoutDueDate replaces the configured subject for the
	// due-date report.
	SubjectWithoutDueDate = "WARNING: Redmine issues without due date"

	// DueDateOffset is the number of days between creation and the due
	// date assigned by FixMissingDueDates.
	DueDateOffset = 14

	// StatusNew is the tracker id of the New status.
	StatusNew = 1
)

// Notifier delivers a rendered report page.
type Notifier interface {
	Send(ctx context.Context, subject, html string) error
}

// Progress is notified while due dates are fixed.
type Progress interface {
	ChangeMax(max int)
	Add(n int) error
	Finish() error
}

type Application struct {
	Config   *config.Config
	Logger   *zap.Logger
	Client   *redmine.Client
	Report   *report.Report
	Notifier Notifier
	Progress Progress

	subject string
}

// New wires the application from cfg. Console tables go to console when it
// is not nil.
func New(cfg *config.Config, log *zap.Logger, console io.Writer) *Application {
	log = logging.OrNop(log)

	client := redmine.NewClient(cfg.Redmine.URL, cfg.Redmine.APIKey,
		redmine.WithLogger(log),
		redmine.WithRateLimit(cfg.Redmine.RateLimit),
		redmine.WithDebug(cfg.Debug),
	)

	return &Application{
		Config:   cfg,
		Logger:   log,
		Client:   client,
		Report:   report.New(cfg.Redmine.URL, console),
		Notifier: mailer.New(cfg.Mail, log),
		subject:  cfg.Mail.Subject,
	}
}

// Subject is the subject the next mail will carry.
func (app *Application) Subject() string {
	return app.subject
}

// ListNewIssuesBySLA adds one section per SLA-tracked project with the New
// issues older than the project's SLA window.
func (app *Application) ListNewIssuesBySLA(ctx context.Context) {
	projects := app.Client.Projects(ctx)
	if !projects.Ok() {
		app.Logger.Warn("no projects to check")
	}

	for _, project := range projects.Value {
		tier := project.SLA()
		if tier == "" {
			app.Logger.Debug("project has no SLA", zap.String("project", project.Name))
			continue
		}

		q := redmine.NewQuery().
			Set("project_id", project.ID).
			Set("status_id", StatusNew).
			Set("created_on", redmine.SLACutoff(tier))
		issues := app.Client.Issues(ctx, q)

		head := report.Head{
			Project:     project.Name,
			SLA:         tier,
			Description: redmine.SLADescription(tier),
		}
		rows := app.rows(issues.Value)
		app.addSection(head, rows, "new")
	}
}

// ListIssuesWithoutDueDate adds a single tracker-wide section with the open
// issues lacking a due date, and switches the mail subject accordingly.
func (app *Application) ListIssuesWithoutDueDate(ctx context.Context) {
	app.subject = SubjectWithoutDueDate

	issues := app.Client.Issues(ctx, redmine.NewQuery().Set("status_id", "open"))

	head := report.Head{
		Title:       "issues without due date",
		Description: "Open issues without due date",
		ShowProject: true,
	}
	rows := app.rows(withoutDueDate(issues.Value))
	app.addSection(head, rows, "without_due_date")
}

// FixMissingDueDates assigns created_on + DueDateOffset days to every open
// issue lacking a due date. A failed update does not stop the others.
func (app *Application) FixMissingDueDates(ctx context.Context) (fixed, failed int) {
	issues := app.Client.Issues(ctx, redmine.NewQuery().Set("status_id", "open"))
	missing := withoutDueDate(issues.Value)

	if app.Progress != nil {
		if len(missing) > 0 {
			app.Progress.ChangeMax(len(missing))
		}
		defer app.Progress.Finish()
	}

	for _, issue := range missing {
		if err := app.fixDueDate(ctx, issue); err != nil {
			failed++
			metrics.DueDatesFixed.WithLabelValues("error").Inc()
		} else {
			fixed++
			metrics.DueDatesFixed.WithLabelValues("ok").Inc()
		}
		if app.Progress != nil {
			_ = app.Progress.Add(1)
		}
	}

	app.Logger.Info("due dates fixed", zap.Int("fixed", fixed), zap.Int("failed", failed))
	return fixed, failed
}

func (app *Application) fixDueDate(ctx context.Context, issue redmine.Issue) error {
	due, err := redmine.DueDateFrom(issue.CreatedOn, DueDateOffset)
	if err != nil {
		app.Logger.Error("bad created_on", zap.Int("issue", issue.ID), zap.String("created_on", issue.CreatedOn), zap.Error(err))
		return err
	}

	if err := app.Client.UpdateIssue(ctx, issue.ID, redmine.IssuePatch{DueDate: due}); err != nil {
		return err
	}

	app.Logger.Info("due date set", zap.Int("issue", issue.ID), zap.String("due_date", due))
	return nil
}

// SendMail mails the report page when at least one issue was listed. It
// reports whether a mail went out; delivery errors are only logged.
func (app *Application) SendMail(ctx context.Context) bool {
	if !app.Report.HasData() {
		app.Logger.Info("nothing to report, mail not sent")
		metrics.Mails.WithLabelValues("skipped").Inc()
		return false
	}

	page, err := app.Report.Page()
	if err != nil {
		app.Logger.Error("could not render mail", zap.Error(err))
		metrics.Mails.WithLabelValues("error").Inc()
		return false
	}

	if app.Config.Debug {
		app.Logger.Debug("mail page", zap.String("html", page))
	}

	err = app.Notifier.Send(ctx, app.subject, page)

	var authErr *mailer.AuthError
	var refusedErr *mailer.RecipientsRefusedError
	switch {
	case err == nil:
		metrics.Mails.WithLabelValues("sent").Inc()
		return true
	case errors.As(err, &authErr):
		app.Logger.Error("send mail: authentication failed",
			zap.Int("code", authErr.Code),
			zap.String("message", authErr.Message))
		metrics.Mails.WithLabelValues("auth_error").Inc()
	case errors.As(err, &refusedErr):
		fields := make([]zap.Field, 0, len(refusedErr.Refused))
		for addr, e := range refusedErr.Refused {
			fields = append(fields, zap.String(addr, e.Error()))
		}
		app.Logger.Error("send mail: all recipients refused", fields...)
		metrics.Mails.WithLabelValues("refused").Inc()
	default:
		app.Logger.Error("send mail failed", zap.Error(err))
		metrics.Mails.WithLabelValues("error").Inc()
	}
	return false
}

// Summary logs the row count of every section of the run.
func (app *Application) Summary() {
	stats := app.Report.Statistics()
	p := message.NewPrinter(language.English)

	for _, s := range stats.Sections {
		app.Logger.Info(p.Sprintf("%s: %d issues", s.Name, s.Rows))
	}
	app.Logger.Info(p.Sprintf("%d issues in %d sections", stats.Total, len(stats.Sections)),
		zap.Int("total", stats.Total))
}

func (app *Application) addSection(head report.Head, rows []report.Row, kind string) {
	metrics.IssuesReported.WithLabelValues(kind).Add(float64(len(rows)))
	if err := app.Report.AddSection(head, rows); err != nil {
		app.Logger.Error("could not render section", zap.Error(err))
	}
}

func (app *Application) rows(issues []redmine.Issue) []report.Row {
	rows := make([]report.Row, 0, len(issues))
	for _, issue := range issues {
		created, err := redmine.ParseDate(issue.CreatedOn, true)
		if err != nil {
			app.Logger.Warn("skipping issue with bad created_on", zap.Int("issue", issue.ID), zap.Error(err))
			continue
		}
		delta, _ := redmine.ElapsedString(issue.CreatedOn)

		rows = append(rows, report.Row{
			ID:       issue.ID,
			Subject:  issue.Subject,
			Priority: issue.Priority.Name,
			Project:  issue.Project.Name,
			Created:  created,
			Delta:    delta,
		})
	}
	return rows
}

func withoutDueDate(issues []redmine.Issue) []redmine.Issue {
	var out []redmine.Issue
	for _, issue := range issues {
		if !issue.HasDueDate() {
			out = append(out, issue)
		}
	}
	return out
}
