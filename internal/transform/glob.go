package transform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// splitPatterns separates include patterns from "!"-prefixed exclude patterns.
func splitPatterns(patterns []string) (include, exclude []string) {
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			exclude = append(exclude, cleanPattern(strings.TrimPrefix(p, "!")))
			continue
		}
		include = append(include, cleanPattern(p))
	}
	return include, exclude
}

func cleanPattern(p string) string {
	p = strings.TrimPrefix(p, "./")
	return path.Clean(p)
}

// Resolve expands patterns against the source root and returns the matching
// regular files as slash-separated paths relative to root, sorted and
// de-duplicated. A pattern that matches nothing contributes nothing; that is
// not an error.
func Resolve(root string, patterns []string) ([]string, error) {
	include, exclude := splitPatterns(patterns)
	fsys := os.DirFS(root)

	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			if isNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("resolving %q: %w", pattern, err)
		}
		for _, m := range matches {
			if excluded(exclude, m) {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}

	sort.Strings(files)
	return files, nil
}

// Matches reports whether rel (slash-separated, relative to the source root)
// is selected by patterns, honouring exclusions.
func Matches(patterns []string, rel string) bool {
	include, exclude := splitPatterns(patterns)
	rel = cleanPattern(rel)
	if excluded(exclude, rel) {
		return false
	}
	for _, p := range include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// BaseDirs returns the static directory prefix of every include pattern,
// de-duplicated. These are the directories a watcher needs to observe.
func BaseDirs(patterns []string) []string {
	include, _ := splitPatterns(patterns)
	seen := make(map[string]struct{})
	var dirs []string
	for _, p := range include {
		base, _ := doublestar.SplitPattern(p)
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		dirs = append(dirs, base)
	}
	sort.Strings(dirs)
	return dirs
}

func excluded(exclude []string, rel string) bool {
	for _, p := range exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
