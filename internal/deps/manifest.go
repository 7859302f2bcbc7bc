// Package deps fetches the third-party front-end packages a site declares in
// its manifest and installs them into the output tree.
package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/staticpress/internal/errors"
	"gopkg.in/yaml.v3"
)

// Package is one declared dependency.
type Package struct {
	// URL is any location go-git can clone from.
	URL string `yaml:"url"`
	// Ref is a tag or branch name. Empty means the remote's default branch.
	Ref string `yaml:"ref,omitempty"`
	// Files limits installation to matching globs relative to the
	// repository root. Empty installs the whole working tree.
	Files []string `yaml:"files,omitempty"`
}

// Manifest is the parsed dependency manifest.
//
//	packages:
//	  normalize:
//	    url: https://github.com/necolas/normalize.css.git
//	    ref: "8.0.1"
//	    files: ["normalize.css"]
type Manifest struct {
	Packages map[string]Package `yaml:"packages"`
}

// LoadManifest reads the manifest at path. A missing manifest yields an
// empty one: there is simply nothing to fetch.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, errors.NewManifestError(path, err)
	}

	return ParseManifest(path, data)
}

// ParseManifest decodes and validates manifest data. path is only used in errors.
func ParseManifest(path string, data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.NewManifestError(path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, errors.NewManifestError(path, err)
	}
	return &m, nil
}

// Validate checks that every package has a usable name and URL.
func (m *Manifest) Validate() error {
	for _, name := range m.Names() {
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("invalid package name %q", name)
		}
		pkg := m.Packages[name]
		if strings.TrimSpace(pkg.URL) == "" {
			return fmt.Errorf("package %q: url is required", name)
		}
		for _, f := range pkg.Files {
			if filepath.IsAbs(f) || strings.Contains(f, "..") {
				return fmt.Errorf("package %q: file pattern %q must stay inside the package", name, f)
			}
		}
	}
	return nil
}

// Names returns the package names in sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Packages))
	for name := range m.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
