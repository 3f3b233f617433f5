package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "exports/tgstat_results_crypto_abc.txt", "text/plain", strings.NewReader("body"))
	require.NoError(t, err)

	wantPath := filepath.Join(dir, "exports", "tgstat_results_crypto_abc.txt")
	require.Equal(t, "file://"+wantPath, uri)

	content, err := os.ReadFile(wantPath)
	require.NoError(t, err)
	require.Equal(t, "body", string(content))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.txt", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewCreatesMissingBaseDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "artifacts")

	_, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
