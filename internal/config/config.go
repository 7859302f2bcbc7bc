// Package config provides configuration management for staticpress using
// Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// The configuration system supports a .staticpress.yml file, environment
// variable overrides with the STATICPRESS_ prefix, .env files, and
// validation. It declares which glob patterns feed which asset transform,
// where the output root lives, how the dev server listens and where the
// site is published. The build Mode (debug versus production) is derived
// from the DEBUG environment variable and threaded explicitly into every
// transform.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Debug   bool          `mapstructure:"-"`
	Source  string        `mapstructure:"source"`
	Output  string        `mapstructure:"output"`
	Site    SiteConfig    `mapstructure:"site"`
	Views   ViewsConfig   `mapstructure:"views"`
	Styles  AssetConfig   `mapstructure:"styles"`
	Scripts AssetConfig   `mapstructure:"scripts"`
	Images  ImagesConfig  `mapstructure:"images"`
	Deps    DepsConfig    `mapstructure:"deps"`
	Server  ServerConfig  `mapstructure:"server"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Publish PublishConfig `mapstructure:"publish"`
	Log     LogConfig     `mapstructure:"log"`
}

type SiteConfig struct {
	Title   string `mapstructure:"title"`
	BaseURL string `mapstructure:"base_url"`
}

// AssetConfig declares one transform: the globs it reads, the directory its
// outputs are made relative to, and where under the output root they land.
type AssetConfig struct {
	Patterns []string `mapstructure:"patterns"`
	Watch    []string `mapstructure:"watch"`
	Base     string   `mapstructure:"base"`
	Dest     string   `mapstructure:"dest"`
}

type ViewsConfig struct {
	AssetConfig `mapstructure:",squash"`
	Includes    string `mapstructure:"includes"`
}

type ImagesConfig struct {
	AssetConfig `mapstructure:",squash"`
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

type DepsConfig struct {
	Manifest string `mapstructure:"manifest"`
	CacheDir string `mapstructure:"cache_dir"`
	Dest     string `mapstructure:"dest"`
	Clean    bool   `mapstructure:"clean"`
	Depth    int    `mapstructure:"depth"`
	Refresh  bool   `mapstructure:"refresh"`
}

type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	LiveReload bool   `mapstructure:"live_reload"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type PublishConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	CacheControl    string `mapstructure:"cache_control"`
	CredentialsFile string `mapstructure:"credentials_file"`
	FailFast        bool   `mapstructure:"fail_fast"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Mode selects between pretty/uncompressed and minified/optimized outputs.
type Mode struct {
	Debug bool
}

// Production returns the optimized mode regardless of the receiver.
func (m Mode) Production() Mode {
	return Mode{Debug: false}
}

// String returns "debug" or "production".
func (m Mode) String() string {
	if m.Debug {
		return "debug"
	}
	return "production"
}

// Mode returns the build mode selected at startup.
func (c *Config) Mode() Mode {
	return Mode{Debug: c.Debug}
}

// ParseDebug interprets the value of the DEBUG environment variable. Boolean
// spellings are honoured; any other non-empty value turns debug mode on.
func ParseDebug(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return true
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source", ".")
	v.SetDefault("output", "./dist")

	v.SetDefault("site.title", "")
	v.SetDefault("site.base_url", "/")

	v.SetDefault("views.patterns", []string{"views/**/*.html", "views/**/*.md", "views/**/*.markdown", "!views/includes/**"})
	v.SetDefault("views.watch", []string{"views/**/*.html", "views/**/*.md", "views/**/*.markdown"})
	v.SetDefault("views.base", "views")
	v.SetDefault("views.dest", "")
	v.SetDefault("views.includes", "views/includes/*.html")

	v.SetDefault("styles.patterns", []string{"assets/css/*.css"})
	v.SetDefault("styles.base", "assets/css")
	v.SetDefault("styles.dest", "assets/css")

	v.SetDefault("scripts.patterns", []string{"assets/js/*.js"})
	v.SetDefault("scripts.base", "assets/js")
	v.SetDefault("scripts.dest", "assets/js")

	v.SetDefault("images.patterns", []string{"assets/images/*.{ico,png,jpg,jpeg,gif,svg}"})
	v.SetDefault("images.watch", []string{"assets/images/**"})
	v.SetDefault("images.base", "assets/images")
	v.SetDefault("images.dest", "assets/images")
	v.SetDefault("images.jpeg_quality", 85)

	v.SetDefault("deps.manifest", "deps.yaml")
	v.SetDefault("deps.cache_dir", "components")
	v.SetDefault("deps.dest", "assets/vendor")
	v.SetDefault("deps.clean", true)
	v.SetDefault("deps.depth", 1)
	v.SetDefault("deps.refresh", false)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.live_reload", true)

	v.SetDefault("watch.debounce", "300ms")

	v.SetDefault("publish.region", "us-east-1")
	v.SetDefault("publish.cache_control", "max-age=2592000, public")
	v.SetDefault("publish.credentials_file", "")
	v.SetDefault("publish.fail_fast", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads, defaults and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// DEBUG follows "set means on" rather than strict boolean parsing.
	config.Debug = ParseDebug(v.GetString("debug"))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SourcePath joins rel onto the source root. Absolute paths are returned
// unchanged.
func (c *Config) SourcePath(rel string) string {
	path := filepath.FromSlash(rel)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.Source, path)
}

// OutputPath joins rel onto the output root.
func (c *Config) OutputPath(rel string) string {
	return filepath.Join(c.Output, filepath.FromSlash(rel))
}

// ServerAddr returns the host:port the dev server binds to.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
