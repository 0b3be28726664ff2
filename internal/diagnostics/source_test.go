package diagnostics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceCache_Read(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "about.js")
	require.NoError(t, os.WriteFile(file, []byte("one\ntwo\n"), 0o600))

	cache := NewSourceCache(2)

	text, ok := cache.Read(file)
	require.True(t, ok)
	assert.Equal(t, "one\ntwo\n", text)
	assert.Equal(t, 1, cache.Len())

	// A rewrite with a different size is picked up.
	require.NoError(t, os.WriteFile(file, []byte("changed contents\n"), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(file, future, future))

	text, ok = cache.Read(file)
	require.True(t, ok)
	assert.Equal(t, "changed contents\n", text)

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}

func TestSourceCache_Absent(t *testing.T) {
	cache := NewSourceCache(0)

	_, ok := cache.Read("")
	assert.False(t, ok)

	_, ok = cache.Read(filepath.Join(t.TempDir(), "missing.js"))
	assert.False(t, ok)

	_, ok = cache.Read(t.TempDir())
	assert.False(t, ok, "directories are not sources")
}

func TestSourceCache_NilReceiverReadsThrough(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.js")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	var cache *SourceCache
	text, ok := cache.Read(file)
	require.True(t, ok)
	assert.Equal(t, "x", text)
}
