package transform

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/staticpress/internal/config"
	"github.com/conneroisu/staticpress/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOptions(t *testing.T, debug bool) Options {
	t.Helper()
	return Options{
		Mode:   config.Mode{Debug: debug},
		Source: t.TempDir(),
		Output: filepath.Join(t.TempDir(), "dist"),
	}
}

func readOutput(t *testing.T, opts Options, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(opts.Output, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestTransformRunMirrorsPaths(t *testing.T) {
	opts := newOptions(t, true)
	writeTree(t, opts.Source, map[string]string{
		"assets/js/app.js":        "var a = 1;",
		"assets/js/vendor/lib.js": "var b = 2;",
	})

	tr := &Transform{
		Name:      "scripts",
		Patterns:  []string{"assets/js/**/*.js"},
		Base:      "assets/js",
		Dest:      "assets/js",
		Processor: Copy{},
	}

	result, err := tr.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"assets/js/app.js", "assets/js/vendor/lib.js"}, result.Files)
	assert.Equal(t, "var a = 1;", readOutput(t, opts, "assets/js/app.js"))
	assert.Equal(t, "var b = 2;", readOutput(t, opts, "assets/js/vendor/lib.js"))
	assert.Equal(t, int64(20), result.BytesIn)
	assert.Equal(t, result.BytesIn, result.BytesOut)
}

func TestTransformEmptyGlobProducesNothing(t *testing.T) {
	opts := newOptions(t, false)

	tr := &Transform{
		Name:      "styles",
		Patterns:  []string{"assets/css/*.css"},
		Base:      "assets/css",
		Dest:      "assets/css",
		Processor: NewMinify(MediaCSS),
	}

	result, err := tr.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, result.Files)

	_, err = os.Stat(opts.Output)
	assert.True(t, os.IsNotExist(err), "no output directory should be created")
}

type failingProcessor struct{}

func (failingProcessor) Process(context.Context, Source, Options) (Output, error) {
	return Output{}, stderrors.New("unexpected token at 1:5")
}

func TestTransformFailureIsReported(t *testing.T) {
	opts := newOptions(t, false)
	writeTree(t, opts.Source, map[string]string{"assets/js/broken.js": "var = ;"})

	tr := &Transform{
		Name:      "scripts",
		Patterns:  []string{"assets/js/*.js"},
		Base:      "assets/js",
		Dest:      "assets/js",
		Processor: failingProcessor{},
	}

	_, err := tr.Run(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrTransformFailed))
	assert.Contains(t, err.Error(), "assets/js/broken.js")
	assert.Contains(t, err.Error(), "unexpected token")
}

func TestTransformHonoursCancellation(t *testing.T) {
	opts := newOptions(t, true)
	writeTree(t, opts.Source, map[string]string{"assets/js/app.js": "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := &Transform{Name: "scripts", Patterns: []string{"assets/js/*.js"}, Base: "assets/js", Processor: Copy{}}
	_, err := tr.Run(ctx, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatchPatternsDefaultToPatterns(t *testing.T) {
	tr := &Transform{Patterns: []string{"a/*.css"}}
	assert.Equal(t, []string{"a/*.css"}, tr.WatchPatterns())

	tr.Watch = []string{"a/**"}
	assert.Equal(t, []string{"a/**"}, tr.WatchPatterns())
}

func TestRelativeOutsideBase(t *testing.T) {
	tr := &Transform{Base: "assets/css"}
	assert.Equal(t, "site.css", tr.relative("assets/css/site.css"))
	assert.Equal(t, "print/site.css", tr.relative("assets/css/print/site.css"))
	assert.Equal(t, "other.css", tr.relative("styles/other.css"))

	tr.Base = ""
	assert.Equal(t, "styles/other.css", tr.relative("styles/other.css"))
}

func TestTransformRejectsOutputCollisions(t *testing.T) {
	opts := newOptions(t, true)
	writeTree(t, opts.Source, map[string]string{
		"assets/css/site.css": "a{}",
		"styles/site.css":     "b{}",
		"styles/print.css":    "c{}",
	})

	tr := &Transform{
		Name:      "styles",
		Patterns:  []string{"assets/css/*.css", "styles/*.css"},
		Base:      "assets/css",
		Dest:      "assets/css",
		Processor: Copy{},
	}

	_, err := tr.Run(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrTransformFailed))
	assert.Contains(t, err.Error(), "assets/css/site.css")
	assert.Contains(t, err.Error(), "styles/site.css")
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	name := filepath.Join(t.TempDir(), "nested", "file.txt")

	require.NoError(t, WriteFile(name, []byte("first")))
	require.NoError(t, WriteFile(name, []byte("second")))

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(name))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestMinifyByMode(t *testing.T) {
	css := "body {\n  color: #ff0000;\n  margin: 0px;\n}\n"
	src := Source{Path: "assets/css/site.css", Rel: "site.css", Data: []byte(css)}
	p := NewMinify(MediaCSS)

	debug, err := p.Process(context.Background(), src, Options{Mode: config.Mode{Debug: true}})
	require.NoError(t, err)
	assert.Equal(t, css, string(debug.Data))

	prod, err := p.Process(context.Background(), src, Options{})
	require.NoError(t, err)
	assert.Less(t, len(prod.Data), len(css))
	assert.NotContains(t, string(prod.Data), "\n")
	assert.Equal(t, "site.css", prod.Rel)
}

func TestMinifyScripts(t *testing.T) {
	js := "function add(first, second) {\n  // sum\n  return first + second;\n}\n"
	p := NewMinify(MediaJS)

	out, err := p.Process(context.Background(), Source{Rel: "app.js", Data: []byte(js)}, Options{})
	require.NoError(t, err)
	assert.Less(t, len(out.Data), len(js))
	assert.NotContains(t, string(out.Data), "// sum")
}

func TestMinifyRejectsMalformedScript(t *testing.T) {
	p := NewMinify(MediaJS)

	_, err := p.Process(context.Background(), Source{Rel: "bad.js", Data: []byte("function ( {")}, Options{})
	assert.Error(t, err)
}

func TestSmallest(t *testing.T) {
	assert.Equal(t, []byte("ab"), smallest([]byte("abc"), []byte("ab")))
	assert.Equal(t, []byte("abc"), smallest([]byte("abc"), []byte("abcd")))
	assert.Equal(t, []byte("abc"), smallest([]byte("abc"), []byte("xyz")))
}
