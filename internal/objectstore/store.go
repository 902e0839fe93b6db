// Package objectstore stages uploaded files in S3-compatible storage until
// the transaction that owns them decides their fate.
//
// An upload is written under staging/{txID}/{name}. Commit copies it to the
// pre-allocated imports/{txID}/{name} key and removes the staging copy;
// Rollback deletes both keys. Both are safe to repeat.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/logger"
)

// Key prefixes for the two object states.
const (
	StagingPrefix = "staging/"
	FinalPrefix   = "imports/"
)

// DefaultFileName replaces a blank upload name.
const DefaultFileName = "import.yaml"

const defaultContentType = "application/octet-stream"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// StagedObject is an upload waiting for Commit or Rollback.
type StagedObject struct {
	StagingKey  string `json:"stagingKey"`
	FinalKey    string `json:"finalKey"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store implements the stage/commit/rollback protocol on one bucket.
// It is safe for concurrent use.
type Store struct {
	client S3API
	bucket string
	region string

	bucketReady atomic.Bool
	bucketMu    sync.Mutex
}

// New creates a store for bucket. The bucket is provisioned lazily on first use.
func New(client S3API, bucket, region string) *Store {
	return &Store{client: client, bucket: bucket, region: region}
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// SanitizeFileName keeps the last path element and replaces every character
// outside [A-Za-z0-9._-] with '_'. Blank names become DefaultFileName.
func SanitizeFileName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if strings.TrimSpace(name) == "" {
		return DefaultFileName
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "." || name == ".." {
		return DefaultFileName
	}
	return name
}

// StageUpload writes data under a fresh staging key. The returned object's
// FinalKey is already allocated.
func (s *Store) StageUpload(ctx context.Context, data []byte, originalFileName, contentType string) (*StagedObject, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	name := SanitizeFileName(originalFileName)
	if strings.TrimSpace(contentType) == "" {
		contentType = defaultContentType
	}
	txID := uuid.NewString()
	staged := &StagedObject{
		StagingKey:  StagingPrefix + txID + "/" + name,
		FinalKey:    FinalPrefix + txID + "/" + name,
		FileName:    name,
		ContentType: contentType,
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(staged.StagingKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, &StorageError{Op: "stage", Key: staged.StagingKey, Err: err}
	}

	logger.Debug("objectstore: staged upload", "key", staged.StagingKey, "bytes", len(data))
	return staged, nil
}

// Commit promotes the staged object to its final key and deletes the staging
// copy. On failure it rolls the object back and returns a *StorageError.
func (s *Store) Commit(ctx context.Context, staged *StagedObject) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(staged.FinalKey),
		CopySource:  aws.String(s.bucket + "/" + staged.StagingKey),
		ContentType: aws.String(staged.ContentType),
	})
	if err != nil {
		s.Rollback(ctx, staged)
		return &StorageError{Op: "commit copy", Key: staged.FinalKey, Err: err}
	}

	if err := s.deleteObject(ctx, staged.StagingKey); err != nil {
		s.Rollback(ctx, staged)
		return &StorageError{Op: "commit delete", Key: staged.StagingKey, Err: err}
	}

	logger.Debug("objectstore: committed upload", "key", staged.FinalKey)
	return nil
}

// Rollback deletes both keys of staged. Each delete is attempted on its own
// and failures are only logged, so Rollback never fails.
func (s *Store) Rollback(ctx context.Context, staged *StagedObject) {
	if staged == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, key := range []string{staged.StagingKey, staged.FinalKey} {
		if err := s.deleteObject(ctx, key); err != nil {
			logger.Warn("objectstore: rollback delete failed", "key", key, "error", err)
		}
	}
}

// GetObject opens key for reading. It returns an error wrapping
// domain.ErrNotFound when the key does not exist.
func (s *Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
		}
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	return out.Body, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, &StorageError{Op: "head", Key: key, Err: err}
	}
	return true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.deleteObject(ctx, key); err != nil {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// List returns every object under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var out []ObjectInfo
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &StorageError{Op: "list", Key: prefix, Err: err}
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

func (s *Store) deleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// ensureBucket provisions the bucket once. Concurrent first callers wait on
// the mutex; a failed attempt is retried by the next caller.
func (s *Store) ensureBucket(ctx context.Context) error {
	if s.bucketReady.Load() {
		return nil
	}
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady.Load() {
		return nil
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		if !isNotFound(err) {
			return &StorageError{Op: "head bucket", Key: s.bucket, Err: err}
		}
		in := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
		if s.region != "" && s.region != "us-east-1" {
			in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(s.region),
			}
		}
		if _, err := s.client.CreateBucket(ctx, in); err != nil && !isBucketOwned(err) {
			return &StorageError{Op: "create bucket", Key: s.bucket, Err: err}
		}
		logger.Info("objectstore: created bucket", "bucket", s.bucket)
	}

	s.bucketReady.Store(true)
	return nil
}
