package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Store keeps blobs in an S3 bucket and serves presigned download URLs.
type S3Store struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	keyPrefix  string
	presignTTL time.Duration
}

// NewS3Store creates an S3Store for the given bucket.
func NewS3Store(client *s3.Client, bucket, keyPrefix string, presignTTL time.Duration) *S3Store {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &S3Store{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     bucket,
		keyPrefix:  keyPrefix,
		presignTTL: presignTTL,
	}
}

func (s *S3Store) key(blobID string) string {
	return fmt.Sprintf("%s/%s.pdf", s.keyPrefix, blobID)
}

// Upload implements BlobStore.
func (s *S3Store) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	blobID := uuid.NewString()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(blobID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/pdf"),
		Metadata:    map[string]string{"filename": filename},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob to s3: %w", err)
	}
	return blobID, nil
}

// Download implements BlobStore.
func (s *S3Store) Download(ctx context.Context, blobID string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(blobID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", blobID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", blobID, err)
	}
	return data, nil
}

// GetDownloadURL implements BlobStore.
func (s *S3Store) GetDownloadURL(ctx context.Context, blobID string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(blobID)),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign blob %s: %w", blobID, err)
	}
	return req.URL, nil
}
