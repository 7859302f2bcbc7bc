// Package metrics records build, publish and live-reload activity. Components
// take a Recorder and default to NoopRecorder, so metrics stay optional.
package metrics

import "time"

// ResultLabel enumerates task result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for tasks, transforms, publishing and
// live reload.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	AddTransformOutput(transform string, files int, bytesIn, bytesOut int64)
	IncPublishResult(action string)
	SetLiveReloadClients(n int)
	IncLiveReloadBroadcast()
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration)         {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)                 {}
func (NoopRecorder) AddTransformOutput(string, int, int64, int64)      {}
func (NoopRecorder) IncPublishResult(string)                           {}
func (NoopRecorder) SetLiveReloadClients(int)                          {}
func (NoopRecorder) IncLiveReloadBroadcast()                           {}
