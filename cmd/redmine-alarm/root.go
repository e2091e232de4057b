package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Afrawles/redmine-alarm/internal/alarm"
	"github.com/Afrawles/redmine-alarm/internal/config"
	"github.com/Afrawles/redmine-alarm/internal/logging"
	"github.com/Afrawles/redmine-alarm/internal/metrics"
	"github.com/Afrawles/redmine-alarm/internal/report"
)

const progName = "redmine-alarm"

type options struct {
	config  string
	listNew bool
	listWDD bool
	fix     bool
	send    bool
	debug   bool
	verbose bool
	output  string
	xlsx    string
	csv     string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   progName,
		Short: "Report Redmine issues breaching their SLA",
		Long: `redmine-alarm lists New issues older than their project's SLA window,
open issues without a due date, or assigns the missing due dates,
and can mail the resulting report.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVarP(&opts.config, "config", "c", config.DefaultPath(progName), "Config file")
	f.BoolVarP(&opts.listNew, "new", "n", false, "List New issues older than their SLA")
	f.BoolVarP(&opts.listWDD, "wdd", "w", false, "List open issues without due date")
	f.BoolVarP(&opts.fix, "fix", "f", false, "Fix the due date")
	f.BoolVarP(&opts.send, "send", "s", false, "Send notifications")
	f.BoolVarP(&opts.debug, "debug", "d", false, "Debug output")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	f.StringVarP(&opts.output, "output", "o", "", "Write the HTML report to this file")
	f.StringVar(&opts.xlsx, "xlsx", "", "Write an Excel report to this file")
	f.StringVar(&opts.csv, "csv", "", "Write CSV reports into this directory")
	cmd.MarkFlagsMutuallyExclusive("new", "wdd", "fix")

	return cmd
}

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, opts *options, stdout, stderr io.Writer) error {
	if !opts.listNew && !opts.listWDD && !opts.fix {
		return cmd.Help()
	}

	log, err := logging.New(opts.verbose, opts.debug)
	if err != nil {
		fmt.Fprintf(stderr, "logger setup failed: %v\n", err)
		log = zap.NewNop()
	}
	defer func() { _ = log.Sync() }()

	cfg := config.Load(opts.config, log)
	cfg.Verbose = opts.verbose
	cfg.Debug = opts.debug
	if opts.debug {
		log.Debug("config", zap.Any("config", cfg.Masked()))
	}

	// Tables are printed only in verbose mode.
	var console io.Writer
	if opts.verbose {
		console = stdout
	}

	app := alarm.New(cfg, log, console)
	ctx := cmd.Context()

	switch {
	case opts.listNew:
		runListing(console, stderr, "Checking SLA projects", func() { app.ListNewIssuesBySLA(ctx) })
	case opts.listWDD:
		runListing(console, stderr, "Fetching open issues", func() { app.ListIssuesWithoutDueDate(ctx) })
	case opts.fix:
		bar := newCounter(stderr, "Fixing due dates")
		app.Progress = bar
		fixed, failed := app.FixMissingDueDates(ctx)
		fmt.Fprintf(stdout, "\nDue dates fixed: %d, failed: %d\n", fixed, failed)
	}

	export(app, cfg, log, stdout, opts)

	if opts.send {
		app.SendMail(ctx)
	}

	app.Summary()

	if err := metrics.Push(ctx, cfg.Metrics.Pushgateway, cfg.Metrics.Job); err != nil {
		log.Warn("could not push metrics", zap.String("pushgateway", cfg.Metrics.Pushgateway), zap.Error(err))
	}

	return nil
}

// runListing shows a spinner while fn runs, unless tables are being
// printed to the console.
func runListing(console, stderr io.Writer, description string, fn func()) {
	if console != nil {
		fn()
		return
	}
	bar := newSpinner(stderr, description)
	defer finishBar(bar)
	fn()
}

func export(app *alarm.Application, cfg *config.Config, log *zap.Logger, stdout io.Writer, opts *options) {
	sections := app.Report.Sections()

	if opts.output != "" {
		if err := app.Report.WritePage(opts.output); err != nil {
			log.Error("failed to export HTML", zap.Error(err))
		} else {
			fmt.Fprintf(stdout, "  -> %s (HTML)\n", opts.output)
		}
	}

	if opts.xlsx != "" {
		if err := report.NewExcelExporter(opts.xlsx, cfg.Redmine.URL).Export(sections); err != nil {
			log.Error("failed to export Excel", zap.Error(err))
		} else {
			fmt.Fprintf(stdout, "  -> %s (Excel)\n", opts.xlsx)
		}
	}

	if opts.csv != "" {
		files, err := report.NewCSVExporter(opts.csv, cfg.Redmine.URL).Export(sections)
		if err != nil {
			log.Error("failed to export CSV", zap.Error(err))
		}
		for _, file := range files {
			fmt.Fprintf(stdout, "  -> %s (CSV)\n", file)
		}
	}
}
