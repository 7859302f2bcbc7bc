package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// createTestDirStructure creates a source tree with the specified number of files
func createTestDirStructure(b *testing.B, fileCount int) string {
	b.Helper()
	root := b.TempDir()

	for i := 0; i < fileCount; i++ {
		dir := filepath.Join(root, "views", fmt.Sprintf("section_%d", i/10))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.Fatal(err)
		}
		name := filepath.Join(dir, fmt.Sprintf("page_%d.html", i))
		if err := os.WriteFile(name, []byte("<p>page</p>"), 0o644); err != nil {
			b.Fatal(err)
		}
	}

	return root
}

// BenchmarkFileWatcher_AddRecursive benchmarks directory scanning performance
func BenchmarkFileWatcher_AddRecursive(b *testing.B) {
	for _, size := range []int{100, 1000} {
		b.Run(fmt.Sprintf("files-%d", size), func(b *testing.B) {
			root := createTestDirStructure(b, size)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				fw, err := NewFileWatcher(root, 100*time.Millisecond, nil)
				if err != nil {
					b.Fatal(err)
				}
				if err := fw.AddRecursive("."); err != nil {
					b.Fatal(err)
				}
				_ = fw.Stop()
			}
		})
	}
}

// BenchmarkRule_Match benchmarks glob dispatch over a batch of events
func BenchmarkRule_Match(b *testing.B) {
	rule := Rule{Name: "views", Patterns: []string{"views/**/*.html", "views/**/*.md", "!views/includes/**"}}
	events := make([]ChangeEvent, 0, 200)
	for i := 0; i < 200; i++ {
		events = append(events, ChangeEvent{Rel: fmt.Sprintf("views/section_%d/page_%d.html", i/10, i)})
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = rule.Match(events)
	}
}

// BenchmarkDebouncer_Performance benchmarks debouncing performance
func BenchmarkDebouncer_Performance(b *testing.B) {
	debouncer := NewDebouncer(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-debouncer.output:
			}
		}
	}()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		event := ChangeEvent{
			Type:    EventTypeModified,
			Path:    fmt.Sprintf("file_%d.css", i%100),
			ModTime: time.Now(),
		}
		select {
		case debouncer.events <- event:
		default:
		}
	}
}
