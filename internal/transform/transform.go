// Package transform turns source assets into output files. A Transform
// resolves its glob patterns under the source root and passes each match
// through a Processor, writing the result to a mirrored path under the
// output root. The build Mode travels in Options on every call: debug keeps
// output readable, production compresses and optimizes it.
package transform

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/staticpress/internal/config"
	"github.com/conneroisu/staticpress/internal/errors"
)

// Options are passed to every transform invocation.
type Options struct {
	Mode   config.Mode
	Source string // source root
	Output string // output root
}

// Source is one matched input file.
type Source struct {
	// Path is the slash-separated path relative to the source root.
	Path string
	// Rel is Path made relative to the transform's base directory.
	Rel  string
	Data []byte
}

// Output is one file to be written under the transform's destination.
type Output struct {
	Rel  string
	Data []byte
}

// Processor converts a single source file.
type Processor interface {
	Process(ctx context.Context, src Source, opts Options) (Output, error)
}

// Preparer is implemented by processors that need per-run setup, such as
// parsing shared template partials, before any file is processed.
type Preparer interface {
	Prepare(ctx context.Context, opts Options) error
}

// Transform is a static declaration mapping source globs to an output directory.
type Transform struct {
	Name      string
	Patterns  []string
	Watch     []string
	Base      string
	Dest      string
	Processor Processor
}

// Result summarizes one run of a transform.
type Result struct {
	Name     string
	Files    []string // written paths, relative to the output root
	BytesIn  int64
	BytesOut int64
}

// WatchPatterns returns the globs whose changes should re-run the transform.
func (t *Transform) WatchPatterns() []string {
	if len(t.Watch) > 0 {
		return t.Watch
	}
	return t.Patterns
}

// Run resolves the transform's patterns and processes every match. The
// first processor failure aborts the run with a transform error, as do two
// sources mapping to the same output path.
func (t *Transform) Run(ctx context.Context, opts Options) (*Result, error) {
	files, err := Resolve(opts.Source, t.Patterns)
	if err != nil {
		return nil, errors.NewIOError("resolving "+t.Name+" sources", opts.Source, err)
	}

	result := &Result{Name: t.Name}
	if len(files) == 0 {
		return result, nil
	}

	if p, ok := t.Processor.(Preparer); ok {
		if err := p.Prepare(ctx, opts); err != nil {
			return nil, errors.NewTransformError(t.Name, "", err)
		}
	}

	// written maps each output path to the source that produced it.
	written := make(map[string]string, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		data, err := os.ReadFile(filepath.Join(opts.Source, filepath.FromSlash(file)))
		if err != nil {
			return result, errors.NewIOError("reading source", file, err)
		}

		out, err := t.Processor.Process(ctx, Source{Path: file, Rel: t.relative(file), Data: data}, opts)
		if err != nil {
			return result, errors.NewTransformError(t.Name, file, err)
		}

		dest := path.Join(t.Dest, out.Rel)
		if prev, ok := written[dest]; ok {
			return result, errors.NewTransformError(t.Name, file,
				fmt.Errorf("output %s is also produced by %s", dest, prev))
		}
		written[dest] = file
		if err := WriteFile(filepath.Join(opts.Output, filepath.FromSlash(dest)), out.Data); err != nil {
			return result, errors.NewIOError("writing output", dest, err)
		}

		result.Files = append(result.Files, dest)
		result.BytesIn += int64(len(data))
		result.BytesOut += int64(len(out.Data))
	}

	return result, nil
}

// relative strips the base directory from a source path. A path outside the
// base keeps only its file name.
func (t *Transform) relative(file string) string {
	base := cleanPattern(t.Base)
	if base == "." || base == "" {
		return file
	}
	if strings.HasPrefix(file, base+"/") {
		return strings.TrimPrefix(file, base+"/")
	}
	return path.Base(file)
}

// WriteFile writes data to name through a temporary file and a rename, so a
// concurrent reader sees either the previous or the new content.
func WriteFile(name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

// Copy is the identity processor.
type Copy struct{}

// Process returns the source unchanged.
func (Copy) Process(_ context.Context, src Source, _ Options) (Output, error) {
	return Output{Rel: src.Rel, Data: src.Data}, nil
}
