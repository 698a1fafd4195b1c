package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tap_notify/internal/config"
	"tap_notify/internal/domain"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

var errInvalidFlag = errors.New("invalid flag value")

type runFlags struct {
	configPath string
	runID      int64
	stream     string
	start      string
	runTime    float64
	records    int64
	comments   string
	batchEnd   string
	metricsOut string
}

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
}

func NewRootCmd(stdout io.Writer, stderr io.Writer) *cobra.Command {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:           "tapnotify",
		Short:         "Report tap sync runs to the audit stream and notification channels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.CompletionOptions.HiddenDefaultCmd = true
	bindRunFlags(root, flags)

	load := func() (*env, error) {
		cfg, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		return &env{
			cfg:    cfg,
			logger: setupLogger(cfg.LogLevel, stderr),
			stdout: stdout,
		}, nil
	}

	root.AddCommand(
		newReportCmd(flags, load),
		newAuditCmd(flags, load),
		newSlackCmd(flags, load),
		newEmailCmd(flags, load),
		newMigrateCmd(load),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(stdout, "tapnotify %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
			},
		},
	)

	return root
}

func bindRunFlags(cmd *cobra.Command, flags *runFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to YAML config (defaults to environment variables)")
	pf.Int64Var(&flags.runID, "run-id", 0, "run identifier")
	pf.StringVar(&flags.stream, "stream", "", "name of the stream the run synced")
	pf.StringVar(&flags.start, "start", "", "run start time (RFC3339)")
	pf.Float64Var(&flags.runTime, "run-time", 0, "run duration in seconds")
	pf.Int64Var(&flags.records, "records", 0, "number of records synced")
	pf.StringVar(&flags.comments, "comments", "", "failure comments; empty means the run succeeded")
	pf.StringVar(&flags.batchEnd, "batch-end", "", "batch end time (RFC3339); defaults to start plus run time, else now")
	pf.StringVar(&flags.metricsOut, "metrics-out", "", "write Prometheus metrics in text format to this file")
}

// runSummary builds the run from flags. A batch end without a run time
// supplies the duration.
func (f *runFlags) runSummary() (domain.RunSummary, time.Time, error) {
	start, err := parseTime("start", f.start)
	if err != nil {
		return domain.RunSummary{}, time.Time{}, err
	}
	batchEnd, err := parseTime("batch-end", f.batchEnd)
	if err != nil {
		return domain.RunSummary{}, time.Time{}, err
	}
	if f.runTime < 0 {
		return domain.RunSummary{}, time.Time{}, fmt.Errorf("%w: run-time must not be negative", errInvalidFlag)
	}

	run := domain.RunSummary{
		RunID:       f.runID,
		StartTime:   start,
		RunTime:     time.Duration(f.runTime * float64(time.Second)),
		RecordCount: f.records,
		Comments:    f.comments,
	}
	if run.RunTime == 0 && !start.IsZero() && batchEnd.After(start) {
		run.RunTime = batchEnd.Sub(start)
	}

	if err := run.Validate(); err != nil {
		return domain.RunSummary{}, time.Time{}, err
	}
	return run, batchEnd, nil
}

func parseTime(name, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", errInvalidFlag, name, err)
	}
	return t, nil
}

func setupLogger(level string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(w, opts)
	return slog.New(handler)
}
