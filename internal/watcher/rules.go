package watcher

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/staticpress/internal/transform"
)

// Rule owns a set of source globs. A batch containing matching changes is
// passed to OnChange with only the matching events.
type Rule struct {
	Name     string
	Patterns []string
	OnChange func(ctx context.Context, events []ChangeEvent) error
}

// Match returns the events selected by the rule's patterns.
func (r Rule) Match(events []ChangeEvent) []ChangeEvent {
	var matched []ChangeEvent
	for _, ev := range events {
		if transform.Matches(r.Patterns, ev.Rel) {
			matched = append(matched, ev)
		}
	}
	return matched
}

// WatchRules registers rules and watches the base directory of every rule
// pattern. A base directory that does not exist yet is covered by watching
// its nearest existing parent, so creating it is noticed.
func (fw *FileWatcher) WatchRules(rules []Rule) error {
	var patterns []string
	for _, r := range rules {
		patterns = append(patterns, r.Patterns...)
	}

	var globs []string
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") || strings.ContainsAny(p, "*?[{") {
			globs = append(globs, p)
			continue
		}
		// A single file only needs its directory.
		if err := fw.watchBase(path.Dir(p), false); err != nil {
			return err
		}
	}
	for _, dir := range transform.BaseDirs(globs) {
		if err := fw.watchBase(dir, true); err != nil {
			return err
		}
	}

	fw.AddHandler(func(ctx context.Context, events []ChangeEvent) error {
		for _, rule := range rules {
			matched := rule.Match(events)
			if len(matched) == 0 {
				continue
			}
			fw.logger.Info(ctx, "Source changed", "rule", rule.Name, "files", len(matched))
			if err := rule.OnChange(ctx, matched); err != nil {
				fw.logger.Error(ctx, err, "Rebuild failed", "rule", rule.Name)
			}
		}
		return nil
	})
	return nil
}

func (fw *FileWatcher) watchBase(dir string, recursive bool) error {
	full := filepath.Join(fw.root, filepath.FromSlash(dir))
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		if !recursive {
			return fw.AddPath(dir)
		}
		return fw.AddRecursive(dir)
	}

	for parent := path.Dir(dir); ; parent = path.Dir(parent) {
		full := filepath.Join(fw.root, filepath.FromSlash(parent))
		if info, err := os.Stat(full); err == nil && info.IsDir() {
			return fw.AddPath(parent)
		}
		if parent == "." || parent == "/" {
			return fw.AddPath(".")
		}
	}
}
