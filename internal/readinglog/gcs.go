package readinglog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// maxWriteAttempts bounds retries after a concurrent writer won the
// generation race.
const maxWriteAttempts = 5

// objectBucket reads and conditionally writes whole objects.
type objectBucket interface {
	// Read returns the object data and generation; generation 0 means the
	// object does not exist yet.
	Read(ctx context.Context, name string) ([]byte, int64, error)

	// Write replaces the object only if its generation still matches.
	Write(ctx context.Context, name string, generation int64, data []byte) error

	Close() error
}

// GCSStore keeps one JSON object per zone in a Cloud Storage bucket.
// Writes are conditional on the generation that was read, so concurrent
// writers from other processes never lose records.
type GCSStore struct {
	objects   objectBucket
	prefix    string
	retention time.Duration
	now       func() time.Time
	locks     zoneLocks
}

// NewGCSStore creates a Cloud Storage client using application default
// credentials unless opts say otherwise.
func NewGCSStore(ctx context.Context, bucket, prefix string, retention time.Duration, now func() time.Time, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("reading log bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return newGCSStore(&gcsBucket{client: client, bucket: client.Bucket(bucket)}, prefix, retention, now), nil
}

func newGCSStore(objects objectBucket, prefix string, retention time.Duration, now func() time.Time) *GCSStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &GCSStore{
		objects:   objects,
		prefix:    prefix,
		retention: retention,
		now:       now,
	}
}

// Append implements Store. A lost generation race re-reads the object and
// tries again, up to maxWriteAttempts times.
func (s *GCSStore) Append(ctx context.Context, zoneID string, rec Record) error {
	if err := validateZoneID(zoneID); err != nil {
		return err
	}
	unlock := s.locks.lock(zoneID)
	defer unlock()

	name := s.objectName(zoneID)

	op := func() error {
		records, generation, err := s.read(ctx, name)
		if err != nil {
			return backoff.Permanent(err)
		}
		records = prune(append(records, rec), s.now(), s.retention)

		data, err := encode(records)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("encode reading log: %w", err))
		}

		err = s.objects.Write(ctx, name, generation, data)
		if isPreconditionFailed(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxWriteAttempts-1), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("append reading log %s: %w", zoneID, err)
	}
	return nil
}

// Load implements Store.
func (s *GCSStore) Load(ctx context.Context, zoneID string) ([]Record, error) {
	if err := validateZoneID(zoneID); err != nil {
		return nil, err
	}
	records, _, err := s.read(ctx, s.objectName(zoneID))
	if err != nil {
		return nil, fmt.Errorf("load reading log %s: %w", zoneID, err)
	}
	return prune(records, s.now(), s.retention), nil
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	return s.objects.Close()
}

func (s *GCSStore) objectName(zoneID string) string {
	return path.Join(s.prefix, zoneID+".json")
}

func (s *GCSStore) read(ctx context.Context, name string) ([]Record, int64, error) {
	data, generation, err := s.objects.Read(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	records, err := decode(data)
	if err != nil {
		return nil, 0, err
	}
	return records, generation, nil
}

// gcsBucket is the Cloud Storage objectBucket.
type gcsBucket struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

func (b *gcsBucket) Read(ctx context.Context, name string) ([]byte, int64, error) {
	reader, err := b.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open object: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, 0, fmt.Errorf("read object: %w", err)
	}
	return data, reader.Attrs.Generation, nil
}

func (b *gcsBucket) Write(ctx context.Context, name string, generation int64, data []byte) error {
	cond := storage.Conditions{GenerationMatch: generation}
	if generation == 0 {
		cond = storage.Conditions{DoesNotExist: true}
	}

	writer := b.bucket.Object(name).If(cond).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CacheControl = "no-cache"

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("write object: %w", err)
	}
	// Close finalizes the upload and reports precondition failures.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize object: %w", err)
	}
	return nil
}

func (b *gcsBucket) Close() error {
	return b.client.Close()
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
