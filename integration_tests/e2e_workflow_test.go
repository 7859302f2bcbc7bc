//go:build integration
// +build integration

package integration_tests

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/staticpress/internal/config"
	"github.com/conneroisu/staticpress/internal/server"
	"github.com/conneroisu/staticpress/internal/site"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	styles = "body {\n  color: red;\n}\n"
	script = "function greet(name) {\n  return 'hello ' + name;\n}\n"
	layout = `{{define "layout"}}<!DOCTYPE html><html><head><title>{{.Site.Title}}</title></head><body>{{template "content" .}}</body></html>{{end}}`
	page   = "{{template \"layout\" .}}{{define \"content\"}}\n  <h1>Home</h1>\n{{end}}"
	post   = "# First post\n\nHello *world*.\n"
)

// E2ETestSystem is a source tree, its configuration and a bucket to deploy to.
type E2ETestSystem struct {
	SourceDir string
	Config    *config.Config
	Bucket    *Bucket
	Port      int
}

// NewE2ETestSystem creates a complete site with every asset kind.
func NewE2ETestSystem(t *testing.T, debug bool) *E2ETestSystem {
	t.Helper()
	IsolateAWS(t)

	src := t.TempDir()
	WriteFile(t, src, "assets/css/site.css", styles)
	WriteFile(t, src, "assets/js/app.js", script)
	WriteFile(t, src, "views/includes/layout.html", layout)
	WriteFile(t, src, "views/index.html", page)
	WriteFile(t, src, "views/blog/first.md", post)
	WriteFile(t, src, "aws.json", `{"key":"AKIDEXAMPLE","secret":"secret"}`)

	bucket := NewBucket("www.example.com")
	s3 := httptest.NewServer(bucket)
	t.Cleanup(s3.Close)

	port, err := FindAvailablePort()
	require.NoError(t, err)

	v := viper.New()
	v.Set("source", src)
	v.Set("output", t.TempDir()+"/dist")
	v.Set("debug", fmt.Sprint(debug))
	v.Set("site.title", "Press")
	v.Set("server.host", "127.0.0.1")
	v.Set("server.port", port)
	v.Set("watch.debounce", "50ms")
	v.Set("publish.bucket", bucket.Name)
	v.Set("publish.endpoint", s3.URL)
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)

	return &E2ETestSystem{SourceDir: src, Config: cfg, Bucket: bucket, Port: port}
}

func (sys *E2ETestSystem) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", sys.Port)
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, url)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestE2E_DevelopmentWorkflow(t *testing.T) {
	sys := NewE2ETestSystem(t, true)
	s, err := site.New(sys.Config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, site.TaskDefault) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("default task did not stop")
		}
	}()

	health, err := WaitForServerReadiness(ctx, sys.URL(), nil)
	require.NoError(t, err)
	assert.True(t, health.LiveReload)

	t.Run("pages carry the live reload script", func(t *testing.T) {
		home := get(t, sys.URL()+"/")
		assert.Contains(t, home, "<title>Press</title>")
		assert.Contains(t, home, server.LiveReloadScriptPath)

		blog := get(t, sys.URL()+"/blog/first.html")
		assert.Contains(t, blog, "<em>world</em>")
	})

	t.Run("assets are served unminified", func(t *testing.T) {
		assert.Equal(t, styles, get(t, sys.URL()+"/assets/css/site.css"))
		assert.Equal(t, script, get(t, sys.URL()+"/assets/js/app.js"))
	})

	t.Run("edits reach the browser", func(t *testing.T) {
		// Let the watcher register before touching sources.
		time.Sleep(200 * time.Millisecond)

		dialCtx, dialCancel := context.WithTimeout(ctx, 2*time.Second)
		defer dialCancel()
		conn, _, err := websocket.Dial(dialCtx, "ws://127.0.0.1:"+fmt.Sprint(sys.Port)+"/livereload", &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": {sys.URL()}},
		})
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")

		WriteFile(t, sys.SourceDir, "views/index.html", strings.Replace(page, "Home", "Welcome", 1))

		readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
		defer readCancel()
		_, data, err := conn.Read(readCtx)
		require.NoError(t, err)

		var msg server.UpdateMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "reload", msg.Type)
		assert.Contains(t, get(t, sys.URL()+"/"), "Welcome")
	})
}

func TestE2E_DeployWorkflow(t *testing.T) {
	sys := NewE2ETestSystem(t, true)
	var report strings.Builder
	s, err := site.New(sys.Config, site.WithOutput(&report))
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background(), site.TaskDeploy))
	assert.Equal(t, []string{
		"assets/css/site.css",
		"assets/js/app.js",
		"blog/first.html",
		"index.html",
	}, sys.Bucket.Keys())
	assert.Contains(t, report.String(), "4 created, 0 updated, 0 skipped, 0 deleted, 0 failed")

	body, header, ok := sys.Bucket.Object("assets/css/site.css")
	require.True(t, ok)
	assert.Equal(t, "body{color:red}", string(body), "deploy always builds in production")
	assert.Equal(t, "max-age=2592000, public", header.Get("Cache-Control"))
	assert.True(t, strings.HasPrefix(header.Get("Content-Type"), "text/css"))

	_, header, _ = sys.Bucket.Object("index.html")
	assert.True(t, strings.HasPrefix(header.Get("Content-Type"), "text/html"))

	t.Run("unchanged files are skipped", func(t *testing.T) {
		report.Reset()
		puts := sys.Bucket.Puts()
		require.NoError(t, s.Run(context.Background(), site.TaskDeploy))
		assert.Equal(t, puts, sys.Bucket.Puts())
		assert.Contains(t, report.String(), "0 created, 0 updated, 4 skipped, 0 deleted, 0 failed")
	})

	t.Run("remote-only objects are deleted", func(t *testing.T) {
		report.Reset()
		sys.Bucket.Seed("old/page.html", []byte("gone"))
		require.NoError(t, s.Run(context.Background(), site.TaskDeploy))
		assert.Contains(t, report.String(), "[delete] old/page.html")
		assert.NotContains(t, sys.Bucket.Keys(), "old/page.html")
	})
}
