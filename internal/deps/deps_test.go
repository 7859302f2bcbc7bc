package deps

import (
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/staticpress/internal/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a repository with one commit containing files and a
// lightweight tag v1.0.0 on it.
func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	// Cloning from a local path goes through the git binary.
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	w, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, w.AddGlob("."))

	hash, err := w.Commit("Initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	_, err = repo.CreateTag("v1.0.0", hash, nil)
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, hash, head.Hash())

	return dir
}

func defaultBranch(t *testing.T, dir string) string {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	return head.Name().Short()
}

func newFetcher(t *testing.T, packages map[string]Package) *Fetcher {
	t.Helper()
	root := t.TempDir()
	return &Fetcher{
		Manifest: &Manifest{Packages: packages},
		CacheDir: filepath.Join(root, "components"),
		Dest:     filepath.Join(root, "dist", "assets", "vendor"),
		Clean:    true,
	}
}

var widgetFiles = map[string]string{
	"README.md":         "# widgets",
	"dist/widgets.css":  ".w{}",
	"dist/widgets.js":   "var w;",
	"src/widgets.scss":  ".w { }",
	"dist/fonts/w.woff": "font",
}

func TestFetchTagAndInstallFiles(t *testing.T) {
	remote := initRepo(t, widgetFiles)
	f := newFetcher(t, map[string]Package{
		"widgets": {URL: remote, Ref: "v1.0.0", Files: []string{"dist/*.css", "dist/*.js"}},
	})

	ctx := context.Background()
	require.NoError(t, f.Fetch(ctx))

	installed, err := f.Install(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets/dist/widgets.css", "widgets/dist/widgets.js"}, installed)

	data, err := os.ReadFile(filepath.Join(f.Dest, "widgets", "dist", "widgets.css"))
	require.NoError(t, err)
	assert.Equal(t, ".w{}", string(data))

	_, err = os.Stat(filepath.Join(f.Dest, "widgets", "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchBranchAndInstallEverything(t *testing.T) {
	remote := initRepo(t, widgetFiles)
	f := newFetcher(t, map[string]Package{
		"widgets": {URL: remote, Ref: defaultBranch(t, remote)},
	})

	ctx := context.Background()
	require.NoError(t, f.Fetch(ctx))

	installed, err := f.Install(ctx)
	require.NoError(t, err)
	assert.Len(t, installed, len(widgetFiles))
	for _, rel := range installed {
		assert.NotContains(t, rel, ".git/")
	}

	_, err = os.Stat(filepath.Join(f.Dest, "widgets", ".git"))
	assert.True(t, os.IsNotExist(err), "repository metadata must not be installed")
}

func TestFetchReusesMatchingClone(t *testing.T) {
	remote := initRepo(t, widgetFiles)
	f := newFetcher(t, map[string]Package{
		"widgets": {URL: remote, Ref: "v1.0.0"},
	})
	ctx := context.Background()
	require.NoError(t, f.Fetch(ctx))

	marker := filepath.Join(f.CacheDir, "widgets", "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("kept"), 0o644))

	require.NoError(t, f.Fetch(ctx))
	_, err := os.Stat(marker)
	assert.NoError(t, err, "a clone at the right ref is reused")

	f.Refresh = true
	require.NoError(t, f.Fetch(ctx))
	_, err = os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "refresh re-clones")
}

func TestFetchRecloneWhenURLChanges(t *testing.T) {
	first := initRepo(t, map[string]string{"a.js": "a"})
	second := initRepo(t, map[string]string{"b.js": "b"})

	f := newFetcher(t, map[string]Package{"lib": {URL: first}})
	ctx := context.Background()
	require.NoError(t, f.Fetch(ctx))

	f.Manifest.Packages["lib"] = Package{URL: second}
	require.NoError(t, f.Fetch(ctx))

	_, err := os.Stat(filepath.Join(f.CacheDir, "lib", "b.js"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.CacheDir, "lib", "a.js"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchFailure(t *testing.T) {
	remote := initRepo(t, widgetFiles)
	testCases := []struct {
		name string
		pkg  Package
	}{
		{name: "missing repository", pkg: Package{URL: filepath.Join(t.TempDir(), "nope")}},
		{name: "unknown ref", pkg: Package{URL: remote, Ref: "v9.9.9"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFetcher(t, map[string]Package{"broken": tc.pkg})

			err := f.Fetch(context.Background())
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrFetchFailed))
			assert.Contains(t, err.Error(), "broken")

			_, statErr := os.Stat(filepath.Join(f.CacheDir, "broken"))
			assert.True(t, os.IsNotExist(statErr), "failed clones are removed")
		})
	}
}

func TestFetchWithoutPackages(t *testing.T) {
	f := newFetcher(t, nil)
	require.NoError(t, f.Fetch(context.Background()))

	_, err := os.Stat(f.CacheDir)
	assert.True(t, os.IsNotExist(err))
}

func TestInstallCleansVendorDirectory(t *testing.T) {
	f := newFetcher(t, nil)
	stale := filepath.Join(f.Dest, "old", "old.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	f.Clean = false
	_, err := f.Install(context.Background())
	require.NoError(t, err)
	_, err = os.Stat(stale)
	assert.NoError(t, err)

	f.Clean = true
	_, err = f.Install(context.Background())
	require.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestCandidateRefs(t *testing.T) {
	assert.Len(t, candidateRefs(""), 1)

	refs := candidateRefs("2.1.0")
	require.Len(t, refs, 2)
	assert.Equal(t, "refs/tags/2.1.0", refs[0].String())
	assert.Equal(t, "refs/heads/2.1.0", refs[1].String())
}
