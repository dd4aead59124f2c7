// Command jobmarket loads a job postings CSV into a relational store and
// reports on it: pay by experience, in-demand titles, remote work, the
// manager premium and a static HTML dashboard.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"jobmarket/internal/metrics"
	"jobmarket/internal/metrics/datadog"
	"jobmarket/internal/metrics/prompush"

	// every backend is compiled in; the pipeline file picks one.
	_ "jobmarket/internal/storage/all"
)

const defaultPushgatewayURL = "http://localhost:9091"

// app holds the global flags and what they set up for the subcommands.
type app struct {
	verbose        bool
	metricsBackend string
	pushgatewayURL string

	log *slog.Logger
	// stopMetrics flushes and detaches the metrics backend. Always set
	// after PersistentPreRunE.
	stopMetrics func()
	// logOut is where the tint handler writes; tests point it at a buffer.
	logOut io.Writer
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	a := &app{logOut: os.Stderr}
	root := a.rootCmd()
	err := root.ExecuteContext(context.Background())
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobmarket",
		Short:         "Data science job market analysis",
		Long:          "jobmarket ingests a job postings CSV into sqlite (or another SQL store) and prints salary, demand and remote-work reports or renders an HTML dashboard.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.log = newLogger(a.logOut, a.verbose)
			a.stopMetrics = a.setupMetrics(cmd.Name())
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs")
	root.PersistentFlags().StringVar(&a.metricsBackend, "metrics-backend", "", "metrics backend: none, datadog or pushgateway (default $METRICS_BACKEND, else none)")
	root.PersistentFlags().StringVar(&a.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (default $PUSHGATEWAY_URL, else "+defaultPushgatewayURL+")")

	root.AddCommand(
		a.fetchCmd(),
		a.probeCmd(),
		a.ingestCmd(),
		a.verifyCmd(),
		a.reportCmd(),
		a.dashboardCmd(),
	)
	return root
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// setupMetrics installs the selected backend and returns its shutdown
// func. A backend that fails to start is logged and metrics stay off.
func (a *app) setupMetrics(command string) func() {
	noop := func() {}

	// flag, then env, then none
	name := a.metricsBackend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	job := "jobmarket_" + command

	switch name {
	case "", "none":
		a.log.Debug("metrics disabled")
		return noop

	case "pushgateway":
		url := a.pushgatewayURL
		if url == "" {
			url = os.Getenv("PUSHGATEWAY_URL")
		}
		if url == "" {
			url = defaultPushgatewayURL
		}
		b, err := prompush.NewBackend(job, url)
		if err != nil {
			a.log.Warn("metrics: pushgateway backend unavailable; metrics disabled", "error", err)
			return noop
		}
		a.log.Debug("metrics enabled", "backend", name, "url", url, "job", job)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				a.log.Warn("metrics: push failed", "error", err)
			}
			metrics.SetBackend(nil)
		}

	case "datadog":
		tags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			a.log.Warn("metrics: datadog backend unavailable; metrics disabled", "error", err)
			return noop
		}
		a.log.Debug("metrics enabled", "backend", name, "job", job, "tags", tags)
		metrics.SetBackend(b)
		return func() {
			// Close stops the flush loop and submits what is buffered.
			if err := b.Close(); err != nil {
				a.log.Warn("metrics: datadog flush failed", "error", err)
			}
			metrics.SetBackend(nil)
		}

	default:
		a.log.Warn("metrics: unknown backend; metrics disabled", "backend", name)
		return noop
	}
}
