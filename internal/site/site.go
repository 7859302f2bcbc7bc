// Package site declares the build: which globs feed which transform, which
// tasks depend on which, and how the dev server, watcher and publisher are
// wired to the configuration.
package site

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/conneroisu/staticpress/internal/config"
	"github.com/conneroisu/staticpress/internal/errors"
	"github.com/conneroisu/staticpress/internal/logging"
	"github.com/conneroisu/staticpress/internal/metrics"
	"github.com/conneroisu/staticpress/internal/publish"
	"github.com/conneroisu/staticpress/internal/server"
	"github.com/conneroisu/staticpress/internal/taskgraph"
	"github.com/conneroisu/staticpress/internal/transform"
	"github.com/google/uuid"
)

// Site owns the task graph for one configuration.
type Site struct {
	cfg        *config.Config
	base       logging.Logger
	logger     logging.Logger
	recorder   metrics.Recorder
	metrics    http.Handler
	out        io.Writer
	store      publish.ObjectStore
	transforms []*transform.Transform
	graph      *taskgraph.Graph

	mu         sync.Mutex
	mode       config.Mode
	phase      Phase
	history    []Phase
	invocation string
	started    map[string]time.Time
	server     *server.Server
}

// Option configures a Site.
type Option func(*Site)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Site) { s.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder metrics.Recorder) Option {
	return func(s *Site) { s.recorder = recorder }
}

// WithMetricsHandler mounts h at /metrics on the dev server.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Site) { s.metrics = h }
}

// WithOutput sets where the publish report is printed.
func WithOutput(w io.Writer) Option {
	return func(s *Site) { s.out = w }
}

// WithObjectStore replaces the S3 store the deploy task publishes to.
func WithObjectStore(store publish.ObjectStore) Option {
	return func(s *Site) { s.store = store }
}

// New declares the transforms and tasks for cfg and validates the graph.
func New(cfg *config.Config, opts ...Option) (*Site, error) {
	s := &Site{
		cfg:     cfg,
		out:     io.Discard,
		mode:    cfg.Mode(),
		phase:   PhaseIdle,
		started: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	s.base = s.logger
	if s.recorder == nil {
		s.recorder = metrics.NoopRecorder{}
	}

	s.transforms = Transforms(cfg)
	s.graph = s.declare()
	s.graph.OnStart = s.taskStarted
	s.graph.OnFinish = s.taskFinished

	if err := s.graph.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Graph returns the declared task graph.
func (s *Site) Graph() *taskgraph.Graph {
	return s.graph
}

// Transform returns the declaration named name.
func (s *Site) Transform(name string) (*transform.Transform, bool) {
	for _, t := range s.transforms {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Mode returns the build mode of the current invocation.
func (s *Site) Mode() config.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// InvocationID identifies the current or last invocation in logs.
func (s *Site) InvocationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invocation
}

// Run executes the named tasks. Invocations that include deploy build in
// production mode whatever the configured mode. When a dev server was
// started and no task kept the process busy, Run serves until ctx is done.
func (s *Site) Run(ctx context.Context, names ...string) error {
	order, err := s.graph.Order(names...)
	if err != nil {
		return err
	}

	mode := s.cfg.Mode()
	if slices.Contains(order, TaskDeploy) {
		if err := s.cfg.ValidatePublish(); err != nil {
			return errors.NewConfigError(err.Error())
		}
		mode = mode.Production()
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.mode = mode
	s.invocation = id
	s.phase = PhaseIdle
	s.history = nil
	s.mu.Unlock()

	s.logger = s.base.With("invocation", id)
	s.logger.Info(ctx, "Running tasks", "tasks", names, "mode", mode.String())
	defer s.stopServer()

	if err := s.graph.Run(ctx, names...); err != nil {
		return err
	}

	if srv := s.devServer(); srv != nil && ctx.Err() == nil {
		s.logger.Info(ctx, "Serving until interrupted", "url", srv.URL())
		select {
		case <-ctx.Done():
		case err, ok := <-srv.Errors():
			if ok {
				return err
			}
		}
	}
	return nil
}

func (s *Site) devServer() *server.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

func (s *Site) stopServer() {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, err, "Dev server did not shut down cleanly")
	}
}

func (s *Site) taskStarted(ctx context.Context, name string) {
	s.mu.Lock()
	s.started[name] = time.Now()
	s.mu.Unlock()
	s.logger.Info(ctx, "Starting '"+name+"'")
}

func (s *Site) taskFinished(ctx context.Context, name string, err error) {
	s.mu.Lock()
	elapsed := time.Since(s.started[name])
	delete(s.started, name)
	s.mu.Unlock()

	s.recorder.ObserveTaskDuration(name, elapsed)

	switch {
	case err == nil:
		s.recorder.IncTaskResult(name, metrics.ResultSuccess)
		s.logger.Info(ctx, "Finished '"+name+"'", "duration_ms", elapsed.Milliseconds())
	case stderrors.Is(err, context.Canceled):
		s.recorder.IncTaskResult(name, metrics.ResultCanceled)
		s.logger.Info(ctx, "Canceled '"+name+"'", "duration_ms", elapsed.Milliseconds())
	default:
		s.recorder.IncTaskResult(name, metrics.ResultFailed)
		s.logger.Error(ctx, err, "'"+name+"' errored", "duration_ms", elapsed.Milliseconds())
	}
}
