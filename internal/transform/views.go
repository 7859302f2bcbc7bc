package transform

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MarkdownLayout is the partial that wraps rendered Markdown pages when an
// include defines it.
const MarkdownLayout = "markdown"

// SiteData is exposed to templates as .Site.
type SiteData struct {
	Title   string
	BaseURL string
}

// PageInfo is exposed to templates as .Page.
type PageInfo struct {
	Name string // file name without extension
	Path string // output path relative to the site root
	URL  string
}

// PageData is the data every view is executed with.
type PageData struct {
	Site    SiteData
	Page    PageInfo
	Debug   bool
	Content template.HTML
}

// Views compiles html/template pages and Markdown pages into HTML. Partials
// matched by Includes are parsed into every page and never emitted on their
// own. Debug mode leaves the rendered HTML as is; production minifies it.
type Views struct {
	Includes string
	Site     SiteData

	md       goldmark.Markdown
	m        *minify.M
	partials *template.Template
}

// NewViews creates a views processor.
func NewViews(includes string, site SiteData) *Views {
	return &Views{
		Includes: includes,
		Site:     site,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Footnote),
		),
		m: NewMinifier(),
	}
}

func (v *Views) funcs() template.FuncMap {
	title := cases.Title(language.English)
	return template.FuncMap{
		"title": title.String,
		"asset": v.assetURL,
		"markdown": func(s string) (template.HTML, error) {
			html, err := v.renderMarkdown([]byte(s))
			return template.HTML(html), err
		},
	}
}

// assetURL joins p onto the site's base URL.
func (v *Views) assetURL(p string) string {
	base := v.Site.BaseURL
	if base == "" {
		base = "/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(p, "/")
}

// Prepare parses the partials shared by every page.
func (v *Views) Prepare(_ context.Context, opts Options) error {
	root := template.New("").Funcs(v.funcs())

	if v.Includes != "" {
		files, err := Resolve(opts.Source, []string{v.Includes})
		if err != nil {
			return err
		}
		for _, file := range files {
			data, err := os.ReadFile(filepath.Join(opts.Source, filepath.FromSlash(file)))
			if err != nil {
				return err
			}
			if _, err := root.New(path.Base(file)).Parse(string(data)); err != nil {
				return fmt.Errorf("parsing partial %s: %w", file, err)
			}
		}
	}

	v.partials = root
	return nil
}

// Process implements Processor.
func (v *Views) Process(_ context.Context, src Source, opts Options) (Output, error) {
	if v.partials == nil {
		if err := v.Prepare(context.Background(), opts); err != nil {
			return Output{}, err
		}
	}

	ext := path.Ext(src.Rel)
	rel := strings.TrimSuffix(src.Rel, ext) + ".html"
	data := PageData{
		Site:  v.Site,
		Debug: opts.Mode.Debug,
		Page: PageInfo{
			Name: strings.TrimSuffix(path.Base(src.Rel), ext),
			Path: rel,
			URL:  v.assetURL(rel),
		},
	}

	var rendered []byte
	var err error
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		rendered, err = v.renderMarkdownPage(src.Data, data)
	default:
		rendered, err = v.renderTemplatePage(src.Path, src.Data, data)
	}
	if err != nil {
		return Output{}, err
	}

	if !opts.Mode.Debug {
		minified, err := v.m.Bytes(MediaHTML, rendered)
		if err != nil {
			return Output{}, fmt.Errorf("minifying html: %w", err)
		}
		rendered = smallest(rendered, minified)
	}

	return Output{Rel: rel, Data: rendered}, nil
}

func (v *Views) renderTemplatePage(name string, body []byte, data PageData) ([]byte, error) {
	page, err := v.partials.Clone()
	if err != nil {
		return nil, err
	}
	tmpl, err := page.New(name).Parse(string(body))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Views) renderMarkdownPage(body []byte, data PageData) ([]byte, error) {
	html, err := v.renderMarkdown(body)
	if err != nil {
		return nil, err
	}

	layout := v.partials.Lookup(MarkdownLayout)
	if layout == nil {
		return html, nil
	}

	page, err := v.partials.Clone()
	if err != nil {
		return nil, err
	}
	data.Content = template.HTML(html)

	var buf bytes.Buffer
	if err := page.ExecuteTemplate(&buf, MarkdownLayout, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Views) renderMarkdown(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.md.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.Bytes(), nil
}
