package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.False(t, cfg.Debug)
	assert.Equal(t, "./dist", cfg.Output)
	assert.Equal(t, ".", cfg.Source)
	assert.Equal(t, []string{"assets/css/*.css"}, cfg.Styles.Patterns)
	assert.Equal(t, "assets/css", cfg.Styles.Dest)
	assert.Equal(t, "views", cfg.Views.Base)
	assert.Equal(t, "views/includes/*.html", cfg.Views.Includes)
	assert.Contains(t, cfg.Views.Patterns, "!views/includes/**")
	assert.Contains(t, cfg.Views.Patterns, "views/**/*.markdown")
	assert.Contains(t, cfg.Views.Watch, "views/**/*.markdown")
	assert.Equal(t, 85, cfg.Images.JPEGQuality)
	assert.Equal(t, []string{"assets/images/**"}, cfg.Images.Watch)
	assert.Equal(t, "assets/vendor", cfg.Deps.Dest)
	assert.True(t, cfg.Deps.Clean)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "localhost:3000", cfg.ServerAddr())
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "max-age=2592000, public", cfg.Publish.CacheControl)
	assert.Empty(t, cfg.Publish.CredentialsFile)
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	v.Set("output", "public")
	v.Set("server.port", 8081)
	v.Set("styles.patterns", []string{"styles/**/*.css"})
	v.Set("watch.debounce", "1s")
	v.Set("publish.bucket", "www.example.com")

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "public", cfg.Output)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, []string{"styles/**/*.css"}, cfg.Styles.Patterns)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "www.example.com", cfg.Publish.Bucket)
	assert.Equal(t, filepath.Join("public", "assets", "css"), cfg.OutputPath("assets/css"))
}

func TestParseDebug(t *testing.T) {
	testCases := []struct {
		value    string
		expected bool
	}{
		{"", false},
		{"  ", false},
		{"0", false},
		{"false", false},
		{"FALSE", false},
		{"1", true},
		{"true", true},
		{"yes", true},
		{"anything", true},
	}

	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseDebug(tc.value))
		})
	}
}

func TestDebugFromEnvironment(t *testing.T) {
	t.Setenv(DebugEnv, "yes")

	v := viper.New()
	require.NoError(t, BindEnv(v))

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "debug", cfg.Mode().String())
}

func TestPrefixedEnvironmentOverride(t *testing.T) {
	t.Setenv("STATICPRESS_SERVER_PORT", "4000")
	t.Setenv("STATICPRESS_OUTPUT", "site")

	v := viper.New()
	require.NoError(t, BindEnv(v))

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "site", cfg.Output)
	assert.False(t, cfg.Debug)
}

func TestModeProductionOverridesDebug(t *testing.T) {
	mode := Mode{Debug: true}

	assert.True(t, mode.Debug)
	assert.False(t, mode.Production().Debug)
	assert.Equal(t, "production", mode.Production().String())
}

func TestSourcePath(t *testing.T) {
	src := t.TempDir()
	elsewhere := filepath.Join(t.TempDir(), "secrets", "aws.json")
	cfg := &Config{Source: src}

	assert.Equal(t, filepath.Join(src, "deps.yaml"), cfg.SourcePath("deps.yaml"))
	assert.Equal(t, filepath.Join(src, "views", "index.html"), cfg.SourcePath("views/index.html"))
	assert.Equal(t, elsewhere, cfg.SourcePath(elsewhere), "absolute paths are not rebased")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"output is source", "output", "."},
		{"empty output", "output", ""},
		{"output is root", "output", "/"},
		{"port out of range", "server.port", 70000},
		{"negative port", "server.port", -1},
		{"host injection", "server.host", "localhost;rm"},
		{"pattern traversal", "styles.patterns", []string{"../secrets/*.css"}},
		{"no patterns", "scripts.patterns", []string{}},
		{"absolute dest", "images.dest", "/etc"},
		{"jpeg quality", "images.jpeg_quality", 0},
		{"bad includes", "views.includes", "views/[.html"},
		{"negative debounce", "watch.debounce", "-1s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tc.key, tc.value)

			cfg, err := LoadFrom(v)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestOutputContainingSourceIsRejected(t *testing.T) {
	dir := t.TempDir()
	v := viper.New()
	v.Set("source", filepath.Join(dir, "site", "src"))
	v.Set("output", filepath.Join(dir, "site"))

	_, err := LoadFrom(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains the source directory")
}

func TestValidatePublish(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Error(t, cfg.ValidatePublish())

	cfg.Publish.Bucket = "www.example.com"
	assert.NoError(t, cfg.ValidatePublish())

	cfg.Publish.Prefix = "/site"
	assert.Error(t, cfg.ValidatePublish())
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STATICPRESS_TEST_A=from-env\nSTATICPRESS_TEST_B=from-env\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("STATICPRESS_TEST_C=from-local\n"), 0o644))

	t.Setenv("STATICPRESS_TEST_B", "preset")
	t.Cleanup(func() {
		os.Unsetenv("STATICPRESS_TEST_A")
		os.Unsetenv("STATICPRESS_TEST_C")
	})

	loaded, err := LoadEnvFiles(dir)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	assert.Equal(t, "from-env", os.Getenv("STATICPRESS_TEST_A"))
	assert.Equal(t, "preset", os.Getenv("STATICPRESS_TEST_B"))
	assert.Equal(t, "from-local", os.Getenv("STATICPRESS_TEST_C"))
}

func TestLoadEnvFilesMissing(t *testing.T) {
	loaded, err := LoadEnvFiles(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
