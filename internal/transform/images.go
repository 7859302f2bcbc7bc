package transform

import (
	"bytes"
	"context"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"github.com/tdewolff/minify/v2"
)

// Images copies images in debug mode and re-encodes them in production.
// Raster formats are decoded and encoded again with the strongest lossless
// settings available (PNG, GIF) or at a fixed quality (JPEG); SVG is
// minified; anything else, including ICO, is copied. The optimized encoding
// is kept only when it is strictly smaller than the source.
type Images struct {
	JPEGQuality int
	m           *minify.M
}

// NewImages creates an image processor.
func NewImages(jpegQuality int) *Images {
	return &Images{JPEGQuality: jpegQuality, m: NewMinifier()}
}

// Process implements Processor.
func (p *Images) Process(_ context.Context, src Source, opts Options) (Output, error) {
	if opts.Mode.Debug {
		return Output{Rel: src.Rel, Data: src.Data}, nil
	}

	optimized, err := p.optimize(strings.ToLower(path.Ext(src.Rel)), src.Data)
	if err != nil {
		return Output{}, err
	}
	return Output{Rel: src.Rel, Data: smallest(src.Data, optimized)}, nil
}

func (p *Images) optimize(ext string, data []byte) ([]byte, error) {
	var buf bytes.Buffer

	switch ext {
	case ".png":
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding png: %w", err)
		}
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}

	case ".jpg", ".jpeg":
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding jpeg: %w", err)
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality()}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}

	case ".gif":
		anim, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding gif: %w", err)
		}
		if err := gif.EncodeAll(&buf, anim); err != nil {
			return nil, fmt.Errorf("encoding gif: %w", err)
		}

	case ".svg":
		out, err := p.m.Bytes(MediaSVG, data)
		if err != nil {
			return nil, fmt.Errorf("minifying svg: %w", err)
		}
		return out, nil

	default:
		return data, nil
	}

	return buf.Bytes(), nil
}

func (p *Images) quality() int {
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		return jpeg.DefaultQuality
	}
	return p.JPEGQuality
}
