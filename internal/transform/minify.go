package transform

import (
	"context"
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	mhtml "github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

// Media types understood by the minifier.
const (
	MediaCSS  = "text/css"
	MediaHTML = "text/html"
	MediaJS   = "application/javascript"
	MediaSVG  = "image/svg+xml"
)

// NewMinifier returns a minifier for HTML, CSS, JavaScript and SVG. HTML
// minification also compresses inline styles and scripts.
func NewMinifier() *minify.M {
	m := minify.New()
	m.AddFunc(MediaCSS, css.Minify)
	m.Add(MediaHTML, &mhtml.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.AddFunc(MediaSVG, svg.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`), js.Minify)
	return m
}

// Minify is the processor for styles and scripts: identity in debug mode,
// minification in production.
type Minify struct {
	MediaType string
	m         *minify.M
}

// NewMinify creates a Minify processor for mediaType.
func NewMinify(mediaType string) *Minify {
	return &Minify{MediaType: mediaType, m: NewMinifier()}
}

// Process implements Processor.
func (p *Minify) Process(_ context.Context, src Source, opts Options) (Output, error) {
	if opts.Mode.Debug {
		return Output{Rel: src.Rel, Data: src.Data}, nil
	}

	out, err := p.m.Bytes(p.MediaType, src.Data)
	if err != nil {
		return Output{}, err
	}
	return Output{Rel: src.Rel, Data: smallest(src.Data, out)}, nil
}

// smallest returns optimized unless it is not strictly smaller than original.
func smallest(original, optimized []byte) []byte {
	if len(optimized) < len(original) {
		return optimized
	}
	return original
}
