package site

import (
	"context"
	stderrors "errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/staticpress/internal/deps"
	"github.com/conneroisu/staticpress/internal/errors"
	"github.com/conneroisu/staticpress/internal/logging"
	"github.com/conneroisu/staticpress/internal/publish"
	"github.com/conneroisu/staticpress/internal/server"
	"github.com/conneroisu/staticpress/internal/taskgraph"
	"github.com/conneroisu/staticpress/internal/transform"
	"github.com/conneroisu/staticpress/internal/watcher"
)

// Task names.
const (
	TaskClean   = "clean"
	TaskDeps    = "deps"
	TaskBuild   = "build"
	TaskServe   = "serve"
	TaskWatch   = "watch"
	TaskRun     = "run"
	TaskDefault = "default"
	TaskDeploy  = "deploy"
)

func (s *Site) declare() *taskgraph.Graph {
	g := taskgraph.New()

	g.Add(taskgraph.Task{
		Name:        TaskClean,
		Description: "Remove the output directory",
		Action:      s.clean,
	})
	g.Add(taskgraph.Task{
		Name:        TaskDeps,
		Description: "Fetch declared packages and copy them into the output",
		Action:      s.fetchDeps,
	})

	descriptions := map[string]string{
		TaskStyles:  "Copy or minify stylesheets",
		TaskScripts: "Copy or minify scripts",
		TaskImages:  "Copy or optimize images",
		TaskViews:   "Render templates and Markdown pages",
	}
	for _, t := range s.transforms {
		t := t
		g.Add(taskgraph.Task{
			Name:        t.Name,
			Description: descriptions[t.Name],
			Action: func(ctx context.Context) error {
				s.setPhase(ctx, PhaseTransforming)
				_, err := s.runTransform(ctx, t)
				return err
			},
		})
	}

	g.Add(taskgraph.Task{
		Name:        TaskBuild,
		Description: "Build the whole site",
		Deps:        []string{TaskClean, TaskDeps, TaskStyles, TaskScripts, TaskImages, TaskViews},
	})
	g.Add(taskgraph.Task{
		Name:        TaskServe,
		Description: "Serve the output directory with live reload",
		Action:      s.serve,
	})
	g.Add(taskgraph.Task{
		Name:        TaskWatch,
		Description: "Build, serve and rebuild on change",
		Deps:        []string{TaskBuild, TaskServe},
		Action:      s.watch,
	})
	g.Add(taskgraph.Task{
		Name:        TaskRun,
		Description: "Alias for watch",
		Deps:        []string{TaskWatch},
	})
	g.Add(taskgraph.Task{
		Name:        TaskDefault,
		Description: "Alias for run",
		Deps:        []string{TaskRun},
	})
	g.Add(taskgraph.Task{
		Name:        TaskDeploy,
		Description: "Build in production mode and publish to S3",
		Deps:        []string{TaskClean, TaskDeps, TaskStyles, TaskScripts, TaskImages, TaskViews},
		Action:      s.deploy,
	})

	return g
}

// clean removes the output root. A missing root is fine.
func (s *Site) clean(ctx context.Context) error {
	s.setPhase(ctx, PhaseCleaning)
	if err := os.RemoveAll(s.cfg.Output); err != nil {
		return errors.NewIOError("removing output directory", s.cfg.Output, err)
	}
	return nil
}

func (s *Site) fetchDeps(ctx context.Context) error {
	s.setPhase(ctx, PhaseFetching)
	_, err := s.installDeps(ctx)
	return err
}

// installDeps fetches the declared packages and copies them into the output.
// It returns the installed files relative to the output root.
func (s *Site) installDeps(ctx context.Context) ([]string, error) {
	manifest, err := deps.LoadManifest(s.cfg.SourcePath(s.cfg.Deps.Manifest))
	if err != nil {
		return nil, err
	}
	if len(manifest.Packages) == 0 {
		s.logger.Debug(ctx, "No dependencies declared", "manifest", s.cfg.Deps.Manifest)
		return nil, nil
	}

	fetcher := &deps.Fetcher{
		Manifest: manifest,
		CacheDir: s.cfg.SourcePath(s.cfg.Deps.CacheDir),
		Dest:     s.cfg.OutputPath(s.cfg.Deps.Dest),
		Clean:    s.cfg.Deps.Clean,
		Depth:    s.cfg.Deps.Depth,
		Refresh:  s.cfg.Deps.Refresh,
		Logger:   s.logger,
	}
	if err := fetcher.Fetch(ctx); err != nil {
		return nil, err
	}
	installed, err := fetcher.Install(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Dependencies installed", "packages", len(manifest.Packages), "files", len(installed))
	files := make([]string, 0, len(installed))
	for _, rel := range installed {
		files = append(files, path.Join(s.cfg.Deps.Dest, rel))
	}
	return files, nil
}

func (s *Site) transformOptions() transform.Options {
	return transform.Options{
		Mode:   s.Mode(),
		Source: s.cfg.Source,
		Output: s.cfg.Output,
	}
}

func (s *Site) runTransform(ctx context.Context, t *transform.Transform) (*transform.Result, error) {
	opts := s.transformOptions()
	perf := logging.StartOperation(s.logger, t.Name)
	result, err := t.Run(ctx, opts)
	if err != nil {
		perf.EndWithError(ctx, err, "mode", opts.Mode.String())
		return result, err
	}

	if len(result.Files) == 0 {
		s.logger.Debug(ctx, "No sources matched", "transform", t.Name, "patterns", t.Patterns)
		return result, nil
	}

	s.recorder.AddTransformOutput(t.Name, len(result.Files), result.BytesIn, result.BytesOut)
	perf.End(ctx, "files", len(result.Files), "mode", opts.Mode.String(),
		"bytes_in", result.BytesIn, "bytes_out", result.BytesOut)
	return result, nil
}

// serve starts the dev server and completes once it is listening.
func (s *Site) serve(ctx context.Context) error {
	s.setPhase(ctx, PhaseServing)

	if s.devServer() != nil {
		return nil
	}

	srv := server.New(server.Options{
		Host:         s.cfg.Server.Host,
		Port:         s.cfg.Server.Port,
		Root:         s.cfg.Output,
		LiveReload:   s.cfg.Server.LiveReload,
		InjectScript: s.Mode().Debug,
		Metrics:      s.metrics,
	}, s.logger, s.recorder)

	if err := os.MkdirAll(s.cfg.Output, 0o755); err != nil {
		return errors.NewIOError("creating output directory", s.cfg.Output, err)
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	return nil
}

// watch re-runs the owning transform for every source change and tells the
// browser which outputs changed. It returns when ctx is done.
func (s *Site) watch(ctx context.Context) error {
	fw, err := s.newWatcher()
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return errors.NewWatchError(fw.Root(), err)
	}
	defer fw.Stop()

	s.logger.Info(ctx, "Watching for changes", "root", fw.Root())
	<-ctx.Done()
	return nil
}

func (s *Site) newWatcher() (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(s.cfg.Source, s.cfg.Watch.Debounce, s.logger)
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{s.cfg.Output, s.cfg.SourcePath(s.cfg.Deps.CacheDir)} {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, errors.NewWatchError(dir, err)
		}
		fw.Ignore(abs)
	}
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoTempFilter)

	rules := make([]watcher.Rule, 0, len(s.transforms)+1)
	for _, t := range s.transforms {
		rules = append(rules, s.rebuildRule(t))
	}
	if rule, ok := s.depsRule(); ok {
		rules = append(rules, rule)
	}
	if err := fw.WatchRules(rules); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	return fw, nil
}

func (s *Site) rebuildRule(t *transform.Transform) watcher.Rule {
	return watcher.Rule{
		Name:     t.Name,
		Patterns: t.WatchPatterns(),
		OnChange: func(ctx context.Context, _ []watcher.ChangeEvent) error {
			result, err := s.runTransform(ctx, t)
			if err != nil {
				return inTask(t.Name, err)
			}
			if srv := s.devServer(); srv != nil {
				srv.Broadcast(result.Files...)
			}
			return nil
		},
	}
}

// inTask names the task whose rebuild failed. Rebuilds run outside the task
// graph, so nothing else records it.
func inTask(name string, err error) error {
	var se *errors.SiteError
	if stderrors.As(err, &se) && se.Task == "" {
		se.WithTask(name)
	}
	return err
}

// depsRule re-installs dependencies when the manifest changes. The cache
// directory stays ignored since fetching writes to it. A manifest outside
// the source tree is not watched.
func (s *Site) depsRule() (watcher.Rule, bool) {
	manifest, err := filepath.Rel(s.cfg.Source, s.cfg.SourcePath(s.cfg.Deps.Manifest))
	if err != nil || manifest == ".." || strings.HasPrefix(manifest, ".."+string(filepath.Separator)) {
		return watcher.Rule{}, false
	}

	return watcher.Rule{
		Name:     TaskDeps,
		Patterns: []string{filepath.ToSlash(manifest)},
		OnChange: func(ctx context.Context, _ []watcher.ChangeEvent) error {
			files, err := s.installDeps(ctx)
			if err != nil {
				return inTask(TaskDeps, err)
			}
			if srv := s.devServer(); srv != nil && len(files) > 0 {
				srv.Broadcast(files...)
			}
			return nil
		},
	}, true
}

func (s *Site) deploy(ctx context.Context) error {
	s.setPhase(ctx, PhasePublishing)
	defer s.setPhase(ctx, PhaseIdle)

	store := s.store
	if store == nil {
		creds, required := s.cfg.Publish.CredentialsFile, true
		if creds == "" {
			creds, required = publish.DefaultCredentialsFile, false
		}
		s3, err := publish.NewS3Store(ctx, publish.S3Options{
			Bucket:              s.cfg.Publish.Bucket,
			Region:              s.cfg.Publish.Region,
			Endpoint:            s.cfg.Publish.Endpoint,
			CredentialsFile:     s.cfg.SourcePath(creds),
			CredentialsRequired: required,
		})
		if err != nil {
			return errors.NewPublishError("connecting to bucket "+s.cfg.Publish.Bucket, err)
		}
		store = s3
	}

	publisher := publish.NewPublisher(store, publish.Options{
		Prefix:       s.cfg.Publish.Prefix,
		CacheControl: s.cfg.Publish.CacheControl,
		FailFast:     s.cfg.Publish.FailFast,
	}, s.logger, s.recorder)

	report, err := publisher.Publish(ctx, s.cfg.Output)
	if report != nil {
		report.Print(s.out)
	}
	return err
}
