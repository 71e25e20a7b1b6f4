package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rdjellab/mongosnap/internal/backupset"
	"github.com/rdjellab/mongosnap/internal/codec"
)

func testRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 2}
}

func backupOpts(dir string, batchSize int) BackupOptions {
	return BackupOptions{
		Database:   "app",
		Collection: "events",
		Dir:        dir,
		BatchSize:  batchSize,
		Retry:      testRetry(),
	}
}

func readBackupFile(t *testing.T, dir string) []bson.D {
	t.Helper()
	data, err := os.ReadFile(backupset.CollectionFile(dir, "app", "events"))
	require.NoError(t, err)
	docs, err := codec.UnmarshalArray(data)
	require.NoError(t, err)
	return docs
}

func TestBackupWritesValidArray(t *testing.T) {
	docs := seqDocs(10)
	src := newFakeSource(docs)
	dir := t.TempDir()

	res, err := Backup(context.Background(), src, backupOpts(dir, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Documents)

	raw, err := os.ReadFile(backupset.CollectionFile(dir, "app", "events"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("[\n")))
	assert.True(t, bytes.HasSuffix(raw, []byte("\n]")))

	require.Equal(t, docs, readBackupFile(t, dir))
}

func TestBackupBatchBoundaryInvariance(t *testing.T) {
	docs := seqDocs(10)
	var decoded [][]bson.D
	for _, batchSize := range []int{1, 7, 11} {
		dir := t.TempDir()
		src := newFakeSource(docs)
		res, err := Backup(context.Background(), src, backupOpts(dir, batchSize))
		require.NoError(t, err, "batch size %d", batchSize)
		require.Equal(t, int64(10), res.Documents)
		decoded = append(decoded, readBackupFile(t, dir))
	}
	assert.Equal(t, decoded[0], decoded[1])
	assert.Equal(t, decoded[1], decoded[2])
}

func TestBackupResumesAfterTransientFailure(t *testing.T) {
	docs := seqDocs(10)
	src := newFakeSource(docs)
	// first cursor dies after 4 documents; with batches of 3 only the first
	// 3 are on disk, so the retry must continue strictly after doc 2
	src.failures = []int{4}
	src.failErr = fmt.Errorf("%w: connection reset", ErrTransientConnection)
	dir := t.TempDir()

	res, err := Backup(context.Background(), src, backupOpts(dir, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Documents)

	got := readBackupFile(t, dir)
	require.Equal(t, docs, got, "no duplicates, no gaps, ascending order")

	require.Len(t, src.filters, 2)
	assert.Equal(t, bson.D{}, src.filters[0])
	assert.Equal(t, bson.D{
		{Key: "_id", Value: bson.D{{Key: "$gt", Value: seqID(2)}}},
	}, src.filters[1])
}

func TestBackupSurvivesRepeatedFailures(t *testing.T) {
	docs := seqDocs(20)
	src := newFakeSource(docs)
	src.failures = []int{5, 5, 5}
	src.failErr = fmt.Errorf("%w: connection reset", ErrTransientConnection)
	dir := t.TempDir()

	res, err := Backup(context.Background(), src, backupOpts(dir, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.Documents)
	require.Equal(t, docs, readBackupFile(t, dir))
}

func TestBackupRetriesExhausted(t *testing.T) {
	src := newFakeSource(seqDocs(10))
	src.failures = []int{1, 1, 1, 1, 1, 1}
	src.failErr = fmt.Errorf("%w: connection reset", ErrTransientConnection)
	dir := t.TempDir()

	opts := backupOpts(dir, 3)
	opts.Retry.MaxRetries = 2

	_, err := Backup(context.Background(), src, opts)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, src.finds, "initial attempt plus two retries")

	_, statErr := os.Stat(backupset.CollectionFile(dir, "app", "events"))
	assert.True(t, os.IsNotExist(statErr), "partial file must be removed")
}

func TestBackupNonTransientFailureFailsFast(t *testing.T) {
	src := newFakeSource(seqDocs(10))
	src.failures = []int{4}
	src.failErr = errors.New("cursor killed")
	dir := t.TempDir()

	_, err := Backup(context.Background(), src, backupOpts(dir, 3))
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, 1, src.finds)

	_, statErr := os.Stat(backupset.CollectionFile(dir, "app", "events"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBackupMissingCollection(t *testing.T) {
	src := newFakeSource(seqDocs(1))
	dir := t.TempDir()

	opts := backupOpts(dir, 3)
	opts.Collection = "nope"
	_, err := Backup(context.Background(), src, opts)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestBackupEmptyCollection(t *testing.T) {
	src := newFakeSource(nil)
	dir := t.TempDir()

	res, err := Backup(context.Background(), src, backupOpts(dir, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Documents)

	f, err := os.Open(backupset.CollectionFile(dir, "app", "events"))
	require.NoError(t, err)
	defer f.Close()
	n, err := codec.ValidateArray(f)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBackupUnwritableDestination(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not bind for root")
	}
	src := newFakeSource(seqDocs(1))
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	_, err := Backup(context.Background(), src, backupOpts(dir, 3))
	assert.ErrorIs(t, err, ErrDestinationUnwritable)
}

func TestBackupReportsProgressPerBatch(t *testing.T) {
	src := newFakeSource(seqDocs(10))
	dir := t.TempDir()

	var reported []int64
	opts := backupOpts(dir, 4)
	opts.Progress = func(done int64) { reported = append(reported, done) }

	_, err := Backup(context.Background(), src, opts)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 8, 10}, reported)
}

func TestBackupTypedValuesRoundTripThroughFile(t *testing.T) {
	docs := mixedDocs(7)
	src := newFakeSource(docs)
	dir := t.TempDir()

	_, err := Backup(context.Background(), src, backupOpts(dir, 3))
	require.NoError(t, err)
	require.Equal(t, docs, readBackupFile(t, dir))
}

// mixedDocs builds documents exercising every wire type plus nesting.
func mixedDocs(n int) []bson.D {
	docs := make([]bson.D, n)
	for i := range docs {
		docs[i] = bson.D{
			{Key: "_id", Value: seqID(i)},
			{Key: "name", Value: fmt.Sprintf("doc-%03d", i)},
			{Key: "count", Value: int64(i * 10)},
			{Key: "ratio", Value: float64(i) + 0.25},
			{Key: "active", Value: i%2 == 0},
			{Key: "note", Value: nil},
			{Key: "tags", Value: bson.A{"a", int64(i), nil}},
			{Key: "meta", Value: bson.D{
				{Key: "created", Value: seqDateTime(i)},
				{Key: "payload", Value: seqBinary(i)},
				{Key: "empty", Value: bson.D{}},
				{Key: "none", Value: bson.A{}},
			}},
		}
	}
	return docs
}

func seqDateTime(i int) any {
	return codec.Decode(codec.Encode(
		time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
	))
}

func seqBinary(i int) any {
	return codec.Decode(codec.Encode([]byte(strings.Repeat("x", i+1))))
}
