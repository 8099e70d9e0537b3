// Package testutil holds shared fixtures for package tests: a thread-safe
// log buffer, directive document workspaces, mtime helpers and a recording
// Build Engine.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/hiermerge/internal/ctxlog"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Context returns a background context carrying a debug text logger that
// writes into the returned buffer. Set HIERMERGE_TEST_LOGS=true to echo the
// log when the test finishes.
func Context(t testing.TB) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() {
		if os.Getenv("HIERMERGE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return ctxlog.WithLogger(context.Background(), logger), buf
}

// Workspace creates a temporary directory and writes files into it. Keys
// are slash-separated paths relative to the workspace root.
func Workspace(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	WriteFiles(t, root, files)
	return root
}

// WriteFiles writes files below root, creating directories as needed.
func WriteFiles(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

var touchSeq atomic.Int64

// Touch moves path's modification time past the current time and past
// every earlier Touch in the test binary, whatever the filesystem's
// timestamp granularity.
func Touch(t testing.TB, path string) time.Time {
	t.Helper()
	n := touchSeq.Add(1)
	ts := time.Now().Add(time.Hour + time.Duration(n)*time.Second)
	require.NoError(t, os.Chtimes(path, ts, ts))
	return ts
}

// ModTime returns path's modification time, failing the test if absent.
func ModTime(t testing.TB, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.ModTime()
}
