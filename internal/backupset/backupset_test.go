package backupset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionFileLayout(t *testing.T) {
	path := CollectionFile("/backups/run1", "app", "events")
	assert.Equal(t, filepath.Join("/backups/run1", "app", "events.json"), path)
	assert.Equal(t, "events", CollectionName(path))
}

func TestEnsureDirIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
}

func TestLockExcludesSecondRun(t *testing.T) {
	root := t.TempDir()

	lock, err := Acquire(context.Background(), root)
	require.NoError(t, err)
	defer lock.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = Acquire(ctx, root)
	assert.Error(t, err, "second run into the same set must not proceed")

	require.NoError(t, lock.Release())
	relock, err := Acquire(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, relock.Release())
}

func TestMetadataRoundTrip(t *testing.T) {
	root := t.TempDir()

	meta := NewMetadata()
	require.NotEmpty(t, meta.RunID)
	meta.Append(CollectionRecord{
		Database:   "app",
		Collection: "events",
		Documents:  42,
		SizeBytes:  1024,
		Success:    true,
		Duration:   3 * time.Second,
	})
	require.NoError(t, meta.Write(root))

	var loaded Metadata
	require.NoError(t, loaded.Load(filepath.Join(root, MetadataFilename)))
	assert.Equal(t, meta.RunID, loaded.RunID)
	require.Len(t, loaded.Records, 1)
	assert.Equal(t, meta.Records[0], loaded.Records[0])
}

func TestListCollectionsCountsAndSkips(t *testing.T) {
	root := t.TempDir()
	appDir := filepath.Join(root, "app")
	require.NoError(t, os.MkdirAll(appDir, 0o755))

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(appDir, name), []byte(content), 0o644))
	}
	write("events.json", `[{"a":1},{"a":2},{"a":3}]`)
	write("empty.json", "[\n\n]")
	write("broken.json", "[\n{\"a\":1}")

	// a stray file at the root is not a collection
	require.NoError(t, os.WriteFile(filepath.Join(root, MetadataFilename), []byte("{}"), 0o644))

	descs, err := ListCollections(root, nil)
	require.NoError(t, err)

	require.Len(t, descs, 2, "the truncated file is skipped")
	assert.Equal(t, "app", descs[0].Database)
	assert.Equal(t, "empty", descs[0].Collection)
	assert.Equal(t, int64(0), descs[0].Documents)
	assert.Equal(t, "events", descs[1].Collection)
	assert.Equal(t, int64(3), descs[1].Documents)
	assert.Greater(t, descs[1].SizeBytes, int64(0))
}
