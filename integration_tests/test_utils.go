//go:build integration
// +build integration

package integration_tests

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestServerConfig contains configuration for waiting on a dev server
type TestServerConfig struct {
	ReadinessTimeout    time.Duration
	HealthCheckInterval time.Duration
}

// DefaultTestConfig returns a default test configuration
func DefaultTestConfig() *TestServerConfig {
	return &TestServerConfig{
		ReadinessTimeout:    10 * time.Second,
		HealthCheckInterval: 50 * time.Millisecond,
	}
}

// HealthResponse represents the structure of health check response
type HealthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Root       string    `json:"root"`
	LiveReload bool      `json:"livereload"`
	Clients    int       `json:"clients"`
}

// WaitForServerReadiness polls /health until the server reports healthy.
func WaitForServerReadiness(ctx context.Context, baseURL string, config *TestServerConfig) (*HealthResponse, error) {
	if config == nil {
		config = DefaultTestConfig()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, config.ReadinessTimeout)
	defer cancel()

	ticker := time.NewTicker(config.HealthCheckInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-timeoutCtx.Done():
			return nil, fmt.Errorf("server readiness timeout after %v: %w", config.ReadinessTimeout, lastErr)
		case <-ticker.C:
			health, err := checkServerHealth(baseURL)
			if err != nil {
				lastErr = err
				continue
			}
			return health, nil
		}
	}
}

func checkServerHealth(baseURL string) (*HealthResponse, error) {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	if health.Status != "healthy" {
		return nil, fmt.Errorf("server status is %s", health.Status)
	}
	return &health, nil
}

// FindAvailablePort finds an available port for testing
func FindAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// WriteFile writes content under dir, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Bucket is an in-memory S3 bucket served with path-style addressing. It
// supports the object listing, upload and batch delete calls.
type Bucket struct {
	Name string

	mu      sync.Mutex
	objects map[string][]byte
	headers map[string]http.Header
	puts    int
}

// NewBucket creates an empty bucket.
func NewBucket(name string) *Bucket {
	return &Bucket{
		Name:    name,
		objects: make(map[string][]byte),
		headers: make(map[string]http.Header),
	}
}

var deleteKeyPattern = regexp.MustCompile(`<Key>([^<]+)</Key>`)

func (b *Bucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+b.Name), "/")
	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, b.listing(r.URL.Query().Get("prefix")))

	case r.Method == http.MethodPut && key != "":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.objects[key] = body
		b.headers[key] = r.Header.Clone()
		b.puts++
		w.Header().Set("ETag", `"`+etag(body)+`"`)

	case r.Method == http.MethodPost && r.URL.Query().Has("delete"):
		body, _ := io.ReadAll(r.Body)
		for _, m := range deleteKeyPattern.FindAllStringSubmatch(string(body), -1) {
			delete(b.objects, m[1])
			delete(b.headers, m[1])
		}
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)

	default:
		http.Error(w, "unexpected request "+r.Method+" "+r.URL.String(), http.StatusBadRequest)
	}
}

func (b *Bucket) listing(prefix string) string {
	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&sb, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>",
		b.Name, prefix, len(keys))
	for _, key := range keys {
		fmt.Fprintf(&sb, `<Contents><Key>%s</Key><ETag>"%s"</ETag><Size>%d</Size></Contents>`,
			key, etag(b.objects[key]), len(b.objects[key]))
	}
	sb.WriteString("</ListBucketResult>")
	return sb.String()
}

// Object returns the stored body and upload headers of key.
func (b *Bucket) Object(key string) ([]byte, http.Header, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.objects[key]
	return body, b.headers[key], ok
}

// Keys returns the stored keys in order.
func (b *Bucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Seed stores an object as if an earlier deploy had uploaded it.
func (b *Bucket) Seed(key string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = body
}

// Puts counts uploads received.
func (b *Bucket) Puts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.puts
}

func etag(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// IsolateAWS keeps the SDK away from the developer's AWS configuration.
func IsolateAWS(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
}
