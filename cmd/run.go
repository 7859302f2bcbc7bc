package cmd

import (
	"os"
	"strings"

	"github.com/conneroisu/staticpress/internal/config"
	"github.com/conneroisu/staticpress/internal/errors"
	"github.com/conneroisu/staticpress/internal/logging"
	"github.com/conneroisu/staticpress/internal/metrics"
	"github.com/conneroisu/staticpress/internal/site"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <task>...",
	Short: "Run one or more tasks",
	Long: `Run the named tasks in order. Each task runs its prerequisites first, and
a task shared by several requested tasks runs only once.

Examples:
  staticpress run build           # Clean, fetch dependencies and build everything
  staticpress run css js          # Rebuild stylesheets and scripts only
  staticpress run serve           # Serve the current output until interrupted
  staticpress run deploy          # Production build, then publish to S3`,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeTasks,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTasks(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// reportedError marks an error that was already logged with its details.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

type app struct {
	cfg    *config.Config
	logger logging.Logger
	site   *site.Site
}

// newApp loads the configuration and declares the site for cmd.
func newApp(cmd *cobra.Command) (*app, error) {
	if configErr != nil {
		return nil, errors.NewConfigError(configErr.Error()).WithFile(configErrFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.NewConfigError(err.Error())
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, errors.NewConfigError(err.Error())
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    os.Stderr,
		Component: "staticpress",
	})

	recorder := metrics.NewPrometheusRecorder(prometheus.NewRegistry())
	s, err := site.New(cfg,
		site.WithLogger(logger),
		site.WithRecorder(recorder),
		site.WithMetricsHandler(recorder.Handler()),
		site.WithOutput(cmd.OutOrStdout()),
	)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, site: s}, nil
}

func runTasks(cmd *cobra.Command, names []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := a.site.Run(ctx, names...); err != nil {
		errors.Report(ctx, a.logger, err)
		return &reportedError{err: err}
	}
	return nil
}

func completeTasks(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	for _, task := range a.site.Graph().Tasks() {
		if strings.HasPrefix(task.Name, toComplete) {
			names = append(names, task.Name+"\t"+task.Description)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
