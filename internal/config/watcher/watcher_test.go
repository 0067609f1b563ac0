package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "muxstorm.toml")
	other := filepath.Join(dir, "other.toml")

	w, err := New([]string{path}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(p string) { changed <- p })
	}()

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("mouse = true\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("mouse = false\n"), 0o600))

	select {
	case p := <-changed:
		assert.Equal(t, path, p)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case p := <-changed:
		t.Errorf("unexpected second report for %s", p)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcherClose(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "x.yaml")})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), func(string) {}) }()

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrWatcherClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	_, err := New([]string{"/nonexistent-muxstorm-dir/x.toml"})
	assert.Error(t, err)
}
