// Package internal contains the core implementation packages for staticpress.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the staticpress CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - config: Configuration loading, validation and the build Mode
//   - errors: Typed site errors and the per-file error collector
//   - logging: Structured logging on top of log/slog
//   - transform: Glob resolution and the views, styles, scripts and images transforms
//   - deps: Dependency manifest, git fetcher and vendor copy
//   - taskgraph: Named tasks with ordered prerequisites and completion futures
//   - watcher: File system monitoring with debouncing and glob rules
//   - server: Static file server, live reload hub and script injection
//   - publish: S3 upload, sync and the publish report
//   - metrics: Prometheus recorder for tasks, transforms, publishing and live reload
//   - site: The declarations tying the packages above to one configuration
//   - version: Build identity of the binary
//
// # Inter-Package Communication
//
//   - site declares the task graph and runs it for each invocation
//   - taskgraph starts a task only once its prerequisites have completed
//   - transform receives the Mode explicitly on every call
//   - watcher re-runs the owning transform and the server tells the browser
//   - publish uploads the output tree produced by the transforms
package internal
