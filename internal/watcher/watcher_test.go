package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/previewd/internal/logging"
)

func TestFilters(t *testing.T) {
	assert.False(t, NoGitFilter("/site/.git/HEAD"))
	assert.True(t, NoGitFilter("/site/src/index.js"))

	assert.False(t, NoHotUpdateFilter("/site/public/abc.hot-update.json"))
	assert.True(t, NoHotUpdateFilter("/site/public/app.js"))

	assert.False(t, NoTempFilter("/site/src/index.js~"))
	assert.False(t, NoTempFilter("/site/src/.index.js.swp"))
	assert.True(t, NoTempFilter("/site/src/index.js"))

	filter := PathFilter("/site/.cache/pages.yml")
	assert.True(t, filter("/site/.cache/pages.yml"))
	assert.False(t, filter("/site/.cache/other.yml"))
}

func TestDebouncer_CoalescesByPath(t *testing.T) {
	d := &Debouncer{
		delay:  10 * time.Millisecond,
		events: make(chan ChangeEvent, 10),
		output: make(chan []ChangeEvent, 1),
	}

	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "b"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "a"})
	d.addEvent(ChangeEvent{Type: EventTypeDeleted, Path: "b"})

	select {
	case batch := <-d.output:
		require.Len(t, batch, 2)
		assert.Equal(t, "a", batch[0].Path)
		assert.Equal(t, "b", batch[1].Path)
		assert.Equal(t, EventTypeDeleted, batch[1].Type)
	case <-time.After(time.Second):
		t.Fatal("debouncer did not flush")
	}
}

func TestFileWatcher_DeliversWrites(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher(20*time.Millisecond, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = fw.Stop() })

	var mu sync.Mutex
	var seen []string
	fw.AddFilter(NoTempFilter)
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			seen = append(seen, filepath.Base(e.Path))
		}
		return nil
	})
	require.NoError(t, fw.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	fw.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte("<p>hi</p>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html~"), []byte("backup"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "page.html")
	assert.NotContains(t, seen, "page.html~")
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "renamed", EventTypeRenamed.String())
	assert.Equal(t, "unknown", EventType(42).String())
}

func TestAddRecursive_RejectsEmpty(t *testing.T) {
	fw, err := NewFileWatcher(time.Millisecond, logging.NewNopLogger())
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.AddRecursive(""))
	assert.Error(t, fw.AddRecursive(filepath.Join(t.TempDir(), "missing")))
}
