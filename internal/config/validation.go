package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// validateConfig validates configuration values for safety and correctness
func validateConfig(config *Config) error {
	if err := validateRoots(config); err != nil {
		return err
	}

	assets := map[string]AssetConfig{
		"views":   config.Views.AssetConfig,
		"styles":  config.Styles,
		"scripts": config.Scripts,
		"images":  config.Images.AssetConfig,
	}
	for name, asset := range assets {
		if err := validateAssetConfig(&asset); err != nil {
			return fmt.Errorf("%s config: %w", name, err)
		}
	}
	if config.Views.Includes != "" && !doublestar.ValidatePattern(config.Views.Includes) {
		return fmt.Errorf("views config: invalid includes pattern %q", config.Views.Includes)
	}

	if config.Images.JPEGQuality < 1 || config.Images.JPEGQuality > 100 {
		return fmt.Errorf("images config: jpeg_quality %d is not in range 1-100", config.Images.JPEGQuality)
	}

	if err := validateRelative("deps.dest", config.Deps.Dest); err != nil {
		return err
	}
	if config.Deps.CacheDir == "" {
		return fmt.Errorf("deps config: cache_dir must not be empty")
	}
	if config.Deps.Depth < 0 {
		return fmt.Errorf("deps config: depth must not be negative")
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("watch config: debounce must not be negative")
	}

	return nil
}

// validateRoots guards the output root. clean deletes it recursively, so it
// must never be the source tree or one of its ancestors.
func validateRoots(config *Config) error {
	if strings.TrimSpace(config.Output) == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	if config.Source == "" {
		config.Source = "."
	}

	out, err := filepath.Abs(config.Output)
	if err != nil {
		return fmt.Errorf("resolving output directory: %w", err)
	}
	src, err := filepath.Abs(config.Source)
	if err != nil {
		return fmt.Errorf("resolving source directory: %w", err)
	}

	if out == filepath.Dir(out) {
		return fmt.Errorf("output directory %q is a filesystem root", config.Output)
	}
	if out == src {
		return fmt.Errorf("output directory %q is the source directory", config.Output)
	}
	if rel, err := filepath.Rel(out, src); err == nil && !strings.HasPrefix(rel, "..") {
		return fmt.Errorf("output directory %q contains the source directory", config.Output)
	}

	return nil
}

func validateAssetConfig(config *AssetConfig) error {
	if len(config.Patterns) == 0 {
		return fmt.Errorf("at least one pattern is required")
	}
	for _, p := range append(append([]string{}, config.Patterns...), config.Watch...) {
		p = strings.TrimPrefix(p, "!")
		if err := validatePath(p); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}
	return validateRelative("dest", config.Dest)
}

// validateRelative allows "" (the output root itself) or a relative path
// that stays inside the root.
func validateRelative(field, path string) error {
	if path == "" {
		return nil
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("%s should be a relative path: %s", field, path)
	}
	if err := validatePath(path); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// validatePath rejects traversal and shell metacharacters in configured paths.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	for _, segment := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if segment == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Port 0 lets the OS pick, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// ValidatePublish checks the settings that only the deploy task needs.
func (c *Config) ValidatePublish() error {
	if strings.TrimSpace(c.Publish.Bucket) == "" {
		return fmt.Errorf("publish.bucket is required to deploy")
	}
	if c.Publish.CacheControl == "" {
		return fmt.Errorf("publish.cache_control must not be empty")
	}
	if strings.HasPrefix(c.Publish.Prefix, "/") {
		return fmt.Errorf("publish.prefix must not start with '/'")
	}
	return nil
}
