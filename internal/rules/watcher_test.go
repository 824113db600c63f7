package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan []string, 4)

	w, err := NewWatcher(dir, 20*time.Millisecond, func(names []string) {
		changes <- names
	}, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.yaml"), []byte("param: {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.yaml"), []byte("param: {a: b}\n"), 0o644))

	select {
	case names := <-changes:
		assert.Equal(t, []string{"en"}, names)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), 0, func([]string) {}, zap.NewNop())
	assert.Error(t, err)
}
