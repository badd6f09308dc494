package readinglog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type storedObject struct {
	data       []byte
	generation int64
}

// memBucket mimics Cloud Storage generation preconditions.
type memBucket struct {
	mu          sync.Mutex
	objects     map[string]storedObject
	writes      int
	beforeWrite func(b *memBucket, attempt int)
	writeErr    error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string]storedObject{}}
}

func (b *memBucket) Read(_ context.Context, name string) ([]byte, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[name]
	if !ok {
		return nil, 0, nil
	}
	return obj.data, obj.generation, nil
}

func (b *memBucket) Write(_ context.Context, name string, generation int64, data []byte) error {
	b.mu.Lock()
	b.writes++
	attempt := b.writes
	hook := b.beforeWrite
	b.mu.Unlock()

	if hook != nil {
		hook(b, attempt)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	if b.objects[name].generation != generation {
		return fmt.Errorf("finalize object: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})
	}
	b.objects[name] = storedObject{data: data, generation: generation + 1}
	return nil
}

func (b *memBucket) Close() error { return nil }

func (b *memBucket) put(name string, records []Record, generation int64) {
	data, _ := encode(records)
	b.mu.Lock()
	b.objects[name] = storedObject{data: data, generation: generation}
	b.mu.Unlock()
}

var gcsNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func value(v float64) *float64 { return &v }

func newTestGCSStore(b *memBucket) *GCSStore {
	return newGCSStore(b, "readinglog", 26*time.Hour, func() time.Time { return gcsNow })
}

func TestGCSStore_RetriesAfterLostGenerationRace(t *testing.T) {
	bucket := newMemBucket()
	bucket.beforeWrite = func(b *memBucket, attempt int) {
		if attempt == 1 {
			// Another instance writes between our read and our write.
			b.put("readinglog/gulmarg.json", []Record{
				{Timestamp: gcsNow.Add(-time.Hour).Unix(), PM25: value(8)},
			}, 7)
		}
	}
	store := newTestGCSStore(bucket)
	ctx := context.Background()

	err := store.Append(ctx, "gulmarg", Record{Timestamp: gcsNow.Unix(), PM25: value(12)})
	require.NoError(t, err)
	assert.Equal(t, 2, bucket.writes)
	assert.Equal(t, int64(8), bucket.objects["readinglog/gulmarg.json"].generation)

	records, err := store.Load(ctx, "gulmarg")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 8.0, *records[0].PM25)
	assert.Equal(t, 12.0, *records[1].PM25)
}

func TestGCSStore_GivesUpAfterRepeatedPreconditionFailures(t *testing.T) {
	bucket := newMemBucket()
	bucket.beforeWrite = func(b *memBucket, attempt int) {
		b.put("readinglog/gulmarg.json", nil, int64(100+attempt))
	}
	store := newTestGCSStore(bucket)

	err := store.Append(context.Background(), "gulmarg", Record{Timestamp: gcsNow.Unix(), PM25: value(12)})
	require.Error(t, err)
	assert.True(t, isPreconditionFailed(err))
	assert.Equal(t, maxWriteAttempts, bucket.writes)
}

func TestGCSStore_OtherWriteErrorsAreNotRetried(t *testing.T) {
	bucket := newMemBucket()
	bucket.writeErr = errors.New("bucket not found")
	store := newTestGCSStore(bucket)

	err := store.Append(context.Background(), "gulmarg", Record{Timestamp: gcsNow.Unix()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket not found")
	assert.Equal(t, 1, bucket.writes)
}

func TestGCSStore_AppendPrunesExpiredRecords(t *testing.T) {
	bucket := newMemBucket()
	bucket.put("readinglog/gulmarg.json", []Record{
		{Timestamp: gcsNow.Add(-30 * time.Hour).Unix(), PM25: value(50)},
	}, 3)
	store := newTestGCSStore(bucket)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "gulmarg", Record{Timestamp: gcsNow.Unix(), PM10: value(40)}))

	stored, err := decode(bucket.objects["readinglog/gulmarg.json"].data)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 40.0, *stored[0].PM10)
	assert.Nil(t, stored[0].PM25)
}

func TestGCSStore_LoadMissingAndCorrupt(t *testing.T) {
	bucket := newMemBucket()
	store := newTestGCSStore(bucket)
	ctx := context.Background()

	records, err := store.Load(ctx, "sonamarg")
	require.NoError(t, err)
	assert.Empty(t, records)

	bucket.objects["readinglog/sonamarg.json"] = storedObject{data: []byte("{not json"), generation: 1}
	_, err = store.Load(ctx, "sonamarg")
	assert.ErrorIs(t, err, ErrCorruptLog)

	_, err = store.Load(ctx, "../etc")
	assert.ErrorIs(t, err, ErrInvalidZoneID)
}
