package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskagent/deskagent/logging"
)

var _ Extractor = TextExtractor{}

func TestList_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt", "ignored.bin", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))

	listing := List(dir, TextExtractor{}.Extensions())
	assert.Equal(t, []string{"a.txt", "b.txt", "notes.md"}, listing.Files)
	assert.Equal(t, 3, listing.Count)
	assert.Equal(t, dir, listing.DocumentsDir)
}

func TestList_MissingDir(t *testing.T) {
	listing := List(filepath.Join(t.TempDir(), "nope"), []string{".txt"})
	assert.Empty(t, listing.Files)
	assert.Equal(t, 0, listing.Count)

	listing = List("", []string{".txt"})
	assert.Equal(t, 0, listing.Count)
}

func TestLoadContext(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.txt"), []byte("first document\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.txt"), []byte("second document"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("   \n"), 0o644))

	text := LoadContext(dir, TextExtractor{}, logging.NoOpLogger{})
	assert.Contains(t, text, "--- file: one.txt ---")
	assert.Contains(t, text, "first document")
	assert.Contains(t, text, "--- file: two.txt ---")
	assert.NotContains(t, text, "empty.txt")
}

func TestLoadContext_EmptyDir(t *testing.T) {
	assert.Empty(t, LoadContext(t.TempDir(), TextExtractor{}, nil))
}
