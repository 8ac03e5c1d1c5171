// Command jobbench drives synthetic download pipelines through the job
// scheduler and prints per job type statistics.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gavv/monotime"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/MiSTer-devel/downloader/lib/config"
	"github.com/MiSTer-devel/downloader/lib/job"
	"github.com/MiSTer-devel/downloader/lib/report"
	"github.com/MiSTer-devel/downloader/lib/scheduler"
	"github.com/MiSTer-devel/downloader/pkg/autoid"
	"github.com/MiSTer-devel/downloader/pkg/clock"
	"github.com/MiSTer-devel/downloader/pkg/notifier"
	"github.com/MiSTer-devel/downloader/pkg/promutil"
)

type benchFlags struct {
	configFile       string
	threads          int
	failPolicy       string
	timeout          time.Duration
	logLevel         string
	progressInterval time.Duration
	showMetrics      bool
	workload         workloadOptions
}

func (f *benchFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configFile, "config", "c", "", "path of a TOML scheduler config file")
	fs.IntVar(&f.threads, "threads", 0, "worker pool size, 0 or 1 runs single-threaded")
	fs.StringVar(&f.failPolicy, "fail-policy", "", "fail-fast or fail-gracefully")
	fs.DurationVar(&f.timeout, "timeout", 0, "run timeout, 0 disables it")
	fs.StringVar(&f.logLevel, "log-level", "", "log level")
	fs.DurationVar(&f.progressInterval, "progress-interval", 2*time.Second, "interval between progress log lines")
	fs.BoolVar(&f.showMetrics, "metrics", false, "print the prometheus metrics of the run")

	fs.IntVar(&f.workload.Databases, "databases", 4, "number of databases to process")
	fs.IntVar(&f.workload.Files, "files", 50, "number of files per database")
	fs.Float64Var(&f.workload.FailRate, "fail-rate", 0.05, "probability that a fetch fails")
	fs.IntVar(&f.workload.MaxRetries, "max-retries", 2, "retries of a failed fetch before falling back to the mirror")
	fs.Int64Var(&f.workload.Seed, "seed", 1, "seed of the failure injection")
	fs.DurationVar(&f.workload.WorkDelay, "work-delay", time.Millisecond, "simulated I/O time of every job")
}

// resolveConfig layers the flags that were set on top of the config file.
func (f *benchFlags) resolveConfig(fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configFile != "" {
		var err error
		if cfg, err = config.LoadFile(f.configFile); err != nil {
			return cfg, err
		}
	}
	if fs.Changed("threads") {
		cfg.Threads = f.threads
	}
	if fs.Changed("fail-policy") {
		cfg.FailPolicy = config.FailPolicy(f.failPolicy)
	}
	if fs.Changed("timeout") {
		cfg.Timeout.Duration = f.timeout
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg.Adjust(), nil
}

func (f *benchFlags) validate() error {
	w := f.workload
	switch {
	case w.Databases <= 0:
		return errors.New("--databases must be positive")
	case w.Files < 0:
		return errors.New("--files must not be negative")
	case w.FailRate < 0 || w.FailRate > 1:
		return errors.New("--fail-rate must be between 0 and 1")
	case w.MaxRetries < 0:
		return errors.New("--max-retries must not be negative")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	flags := &benchFlags{}
	cmd := &cobra.Command{
		Use:   "jobbench",
		Short: "Run synthetic download pipelines through the job scheduler",
		Long: `Run synthetic download pipelines through the job scheduler.

Every database fans out into file fetches. A failed fetch is retried and
then replaced by a fetch from a mirror. Every fetched file is verified,
and a finalize job per database waits until no job tagged with that
database is in progress.

Examples:
  # Eight threads, 10% injected failures
  jobbench --threads 8 --fail-rate 0.1

  # Deterministic single-threaded run aborting on the first failure
  jobbench --threads 1 --fail-policy fail-fast
`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			cfg, err := flags.resolveConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if err := config.InitLogger(cfg.Log); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBench(ctx, cmd.OutOrStdout(), cfg, flags)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

const maxPrintedFailures = 10

func runBench(ctx context.Context, out io.Writer, cfg config.Config, flags *benchFlags) error {
	stats := report.NewStats()
	reg := promutil.NewRegistry()

	runID := autoid.NewUUIDAllocator().AllocID()
	metrics := report.NewMetrics(reg, runID, clock.New())
	defer metrics.Close()
	events := report.NewEvents()
	defer events.Close()
	failures := collectFailures(events.Subscribe())

	s := scheduler.New(cfg,
		scheduler.WithRunID(runID),
		scheduler.WithReporter(report.Multi(stats, report.NewLog(flags.progressInterval, stats), metrics, events)))

	w := newWorkload(flags.workload)
	if err := s.RegisterWorkers(w.workers(s)...); err != nil {
		return err
	}
	s.PushJobs(w.roots())

	start := monotime.Now()
	runErr := s.Execute(ctx)
	elapsed := monotime.Since(start)

	if err := events.Flush(context.Background()); err != nil {
		log.L().Warn("flush job events failed", zap.Error(err))
	}
	events.Close()
	failed := <-failures

	fmt.Fprintf(out, "run %s finished in %s (config: %s)\n", runID, elapsed, cfg)
	for _, ts := range stats.Snapshot() {
		fmt.Fprintln(out, ts)
	}
	total := stats.Summary()
	fmt.Fprintf(out, "total: started=%d completed=%d failed=%d retried=%d cancelled=%d\n",
		total.Started, total.Completed, total.Failed, total.Retried, total.Cancelled)
	for _, r := range w.results() {
		fmt.Fprintln(out, r)
	}
	for i, ev := range failed {
		if i == maxPrintedFailures {
			fmt.Fprintf(out, "... and %d more failures\n", len(failed)-i)
			break
		}
		fmt.Fprintf(out, "failed: %s: %s\n", job.Describe(ev.Job), ev.Err)
	}

	if flags.showMetrics {
		if err := writeMetrics(out, reg); err != nil {
			log.L().Warn("write metrics failed", zap.String("run-id", runID), zap.Error(err))
		}
	}
	if runErr != nil {
		fmt.Fprintf(out, "run aborted: %s\n", runErr)
	}
	return runErr
}

// collectFailures keeps the failure events seen by rcv and hands them over
// once the event stream is closed.
func collectFailures(rcv *notifier.Receiver[report.Event]) <-chan []report.Event {
	done := make(chan []report.Event, 1)
	go func() {
		var failed []report.Event
		for ev := range rcv.C {
			if ev.Kind == report.EventFailed {
				failed = append(failed, ev)
			}
		}
		done <- failed
	}()
	return done
}

func writeMetrics(out io.Writer, reg *promutil.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.Trace(err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
