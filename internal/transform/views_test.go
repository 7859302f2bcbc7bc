package transform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewsTransform(site SiteData) *Transform {
	return &Transform{
		Name:      "views",
		Patterns:  []string{"views/**/*.html", "views/**/*.md", "views/**/*.markdown", "!views/includes/**"},
		Base:      "views",
		Processor: NewViews("views/includes/*.html", site),
	}
}

func TestViewsRenderWithPartials(t *testing.T) {
	opts := newOptions(t, true)
	writeTree(t, opts.Source, map[string]string{
		"views/includes/head.html": `{{define "head"}}<head><title>{{.Site.Title}} | {{title .Page.Name}}</title><link rel="stylesheet" href="{{asset "assets/css/site.css"}}"></head>{{end}}`,
		"views/about.html":         `<html>{{template "head" .}}<body>{{if .Debug}}debug{{end}}</body></html>`,
	})

	tr := viewsTransform(SiteData{Title: "Press", BaseURL: "/blog"})
	result, err := tr.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"about.html"}, result.Files)

	html := readOutput(t, opts, "about.html")
	assert.Contains(t, html, "<title>Press | About</title>")
	assert.Contains(t, html, `href="/blog/assets/css/site.css"`)
	assert.Contains(t, html, "debug")

	_, err = os.Stat(filepath.Join(opts.Output, "includes"))
	assert.True(t, os.IsNotExist(err), "includes must not be emitted")
}

func TestViewsMarkdownLayout(t *testing.T) {
	opts := newOptions(t, true)
	writeTree(t, opts.Source, map[string]string{
		"views/includes/layout.html": `{{define "markdown"}}<article data-page="{{.Page.Path}}">{{.Content}}</article>{{end}}`,
		"views/posts/hello.md":       "# Hello\n\nSome *text* and a | table |\n",
	})

	_, err := viewsTransform(SiteData{}).Run(context.Background(), opts)
	require.NoError(t, err)

	html := readOutput(t, opts, "posts/hello.html")
	assert.Contains(t, html, `<article data-page="posts/hello.html">`)
	assert.Contains(t, html, "<h1>Hello</h1>")
	assert.Contains(t, html, "<em>text</em>")
}

func TestViewsMarkdownWithoutLayout(t *testing.T) {
	opts := newOptions(t, true)
	writeTree(t, opts.Source, map[string]string{"views/readme.markdown": "Plain paragraph."})

	_, err := viewsTransform(SiteData{}).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "<p>Plain paragraph.</p>\n", readOutput(t, opts, "readme.html"))
}

func TestViewsProductionMinifies(t *testing.T) {
	page := "<html>\n  <body>\n    <p>\n      Hello   world\n    </p>\n  </body>\n</html>\n"

	debugOpts := newOptions(t, true)
	writeTree(t, debugOpts.Source, map[string]string{"views/index.html": page})
	_, err := viewsTransform(SiteData{}).Run(context.Background(), debugOpts)
	require.NoError(t, err)

	prodOpts := newOptions(t, false)
	writeTree(t, prodOpts.Source, map[string]string{"views/index.html": page})
	_, err = viewsTransform(SiteData{}).Run(context.Background(), prodOpts)
	require.NoError(t, err)

	debug := readOutput(t, debugOpts, "index.html")
	prod := readOutput(t, prodOpts, "index.html")
	assert.Equal(t, page, debug)
	assert.Less(t, len(prod), len(debug))
	assert.Contains(t, prod, "Hello world")
}

func TestViewsTemplateErrorIsTransformFailure(t *testing.T) {
	opts := newOptions(t, true)
	writeTree(t, opts.Source, map[string]string{"views/bad.html": `{{template "missing" .}}`})

	_, err := viewsTransform(SiteData{}).Run(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "views/bad.html")
}

func TestViewsBrokenPartial(t *testing.T) {
	opts := newOptions(t, true)
	writeTree(t, opts.Source, map[string]string{
		"views/includes/head.html": `{{define "head"}}`,
		"views/index.html":         `ok`,
	})

	_, err := viewsTransform(SiteData{}).Run(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing partial views/includes/head.html")
}

func TestAssetURL(t *testing.T) {
	testCases := []struct {
		base     string
		asset    string
		expected string
	}{
		{"", "assets/app.js", "/assets/app.js"},
		{"/", "/assets/app.js", "/assets/app.js"},
		{"https://cdn.example.com", "app.js", "https://cdn.example.com/app.js"},
		{"/site/", "app.js", "/site/app.js"},
	}

	for _, tc := range testCases {
		v := NewViews("", SiteData{BaseURL: tc.base})
		assert.Equal(t, tc.expected, v.assetURL(tc.asset))
	}
}
