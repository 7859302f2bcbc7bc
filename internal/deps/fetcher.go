package deps

import (
	"context"
	"os"
	"path/filepath"

	"github.com/conneroisu/staticpress/internal/errors"
	"github.com/conneroisu/staticpress/internal/logging"
	"github.com/conneroisu/staticpress/internal/transform"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Fetcher clones declared packages into a cache directory and copies them
// into the output tree.
type Fetcher struct {
	Manifest *Manifest
	// CacheDir holds one clone per package.
	CacheDir string
	// Dest is the vendor directory inside the output tree.
	Dest string
	// Clean removes Dest before installing so no stale version survives.
	Clean bool
	// Depth limits clone history; 0 clones everything.
	Depth int
	// Refresh ignores existing clones.
	Refresh bool

	Logger logging.Logger
}

// Fetch makes sure every package is present in the cache at its declared
// ref. Any failure aborts with a fetch error.
func (f *Fetcher) Fetch(ctx context.Context) error {
	if f.Manifest == nil || len(f.Manifest.Packages) == 0 {
		f.logger().Debug(ctx, "No dependencies declared")
		return nil
	}

	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return errors.NewIOError("creating dependency cache", f.CacheDir, err)
	}

	for _, name := range f.Manifest.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.ensure(ctx, name, f.Manifest.Packages[name]); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) ensure(ctx context.Context, name string, pkg Package) error {
	dir := filepath.Join(f.CacheDir, name)
	log := f.logger().With("package", name, "url", pkg.URL, "ref", pkg.Ref)

	if !f.Refresh {
		if hash, ok := cached(dir, pkg); ok {
			log.Debug(ctx, "Reusing cached dependency", "commit", hash.String()[:8])
			return nil
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return errors.NewIOError("removing stale dependency", dir, err)
	}

	var lastErr error
	for _, ref := range candidateRefs(pkg.Ref) {
		opts := &git.CloneOptions{
			URL:           pkg.URL,
			ReferenceName: ref,
			SingleBranch:  true,
			Depth:         f.Depth,
		}

		repo, err := git.PlainCloneContext(ctx, dir, false, opts)
		if err == nil {
			if head, herr := repo.Head(); herr == nil {
				log.Info(ctx, "Fetched dependency", "commit", head.Hash().String()[:8])
			}
			return nil
		}

		lastErr = err
		_ = os.RemoveAll(dir)
		if ctx.Err() != nil {
			break
		}
		log.Debug(ctx, "Clone attempt failed", "reference", ref.String(), "error", err.Error())
	}

	return errors.NewFetchError(name, lastErr)
}

// candidateRefs lists the references a manifest ref may name: a tag first,
// then a branch. An empty ref clones the remote HEAD.
func candidateRefs(ref string) []plumbing.ReferenceName {
	if ref == "" {
		return []plumbing.ReferenceName{""}
	}
	return []plumbing.ReferenceName{
		plumbing.NewTagReferenceName(ref),
		plumbing.NewBranchReferenceName(ref),
	}
}

// cached reports whether dir already holds a clone of pkg checked out at its
// ref, returning the commit.
func cached(dir string, pkg Package) (plumbing.Hash, bool) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return plumbing.ZeroHash, false
	}

	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil || len(remote.Config().URLs) == 0 || remote.Config().URLs[0] != pkg.URL {
		return plumbing.ZeroHash, false
	}

	head, err := repo.Head()
	if err != nil {
		return plumbing.ZeroHash, false
	}
	if pkg.Ref == "" {
		return head.Hash(), true
	}

	for _, name := range candidateRefs(pkg.Ref) {
		ref, err := repo.Reference(name, true)
		if err != nil {
			continue
		}
		hash := ref.Hash()
		// Annotated tags point at a tag object; compare the commit it tags.
		if tag, err := repo.TagObject(hash); err == nil {
			hash = tag.Target
		}
		if hash == head.Hash() {
			return hash, true
		}
	}
	return plumbing.ZeroHash, false
}

// Install copies every cached package into Dest/<name>, leaving out
// repository metadata. It returns the written paths relative to Dest.
func (f *Fetcher) Install(ctx context.Context) ([]string, error) {
	if f.Clean {
		if err := os.RemoveAll(f.Dest); err != nil {
			return nil, errors.NewIOError("cleaning vendor directory", f.Dest, err)
		}
	}
	if f.Manifest == nil {
		return nil, nil
	}

	var installed []string
	for _, name := range f.Manifest.Names() {
		if err := ctx.Err(); err != nil {
			return installed, err
		}

		pkg := f.Manifest.Packages[name]
		src := filepath.Join(f.CacheDir, name)

		patterns := pkg.Files
		if len(patterns) == 0 {
			patterns = []string{"**"}
		}
		patterns = append(append([]string(nil), patterns...), "!.git/**")

		files, err := transform.Resolve(src, patterns)
		if err != nil {
			return installed, errors.NewIOError("resolving package files", src, err)
		}

		for _, file := range files {
			data, err := os.ReadFile(filepath.Join(src, filepath.FromSlash(file)))
			if err != nil {
				return installed, errors.NewIOError("reading package file", file, err)
			}
			rel := filepath.ToSlash(filepath.Join(name, filepath.FromSlash(file)))
			if err := transform.WriteFile(filepath.Join(f.Dest, filepath.FromSlash(rel)), data); err != nil {
				return installed, errors.NewIOError("installing package file", rel, err)
			}
			installed = append(installed, rel)
		}

		f.logger().Debug(ctx, "Installed dependency", "package", name, "files", len(files))
	}

	return installed, nil
}

func (f *Fetcher) logger() logging.Logger {
	if f.Logger == nil {
		return logging.NewNopLogger()
	}
	return f.Logger
}
