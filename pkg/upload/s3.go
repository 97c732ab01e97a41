package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store stores uploads in AWS S3.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	client := s3.NewFromConfig(cfg)
//	store := upload.NewS3Store(client, "my-bucket", "uploads/", 50<<20)
type S3Store struct {
	client  *s3.Client
	bucket  string
	prefix  string
	maxSize int64
}

// NewS3Store creates a new S3 upload store.
//
// Parameters:
//   - client: AWS S3 client from aws-sdk-go-v2
//   - bucket: S3 bucket name
//   - prefix: Key prefix for uploads (e.g., "uploads/")
//   - maxSize: Maximum file size in bytes (0 = no limit)
func NewS3Store(client *s3.Client, bucket, prefix string, maxSize int64) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		maxSize: maxSize,
	}
}

// Save uploads the file to S3 under prefix+filename.
//
// The file is buffered in memory before the PutObject call. For large
// uploads prefer a store built on the S3 multipart upload API.
func (s *S3Store) Save(ctx context.Context, filename string, r io.Reader) (*SavedFile, error) {
	var buf bytes.Buffer
	written, err := copyLimited(&buf, r, s.maxSize)
	if err != nil {
		return nil, err
	}

	key := s.prefix + filename
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
		Metadata: map[string]string{
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 upload failed: %w", err)
	}

	return &SavedFile{
		Filename: filename,
		Size:     written,
		Path:     fmt.Sprintf("s3://%s/%s", s.bucket, key),
	}, nil
}

var _ Store = (*S3Store)(nil)
