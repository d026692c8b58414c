package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ImageStore is the blob store boundary: write bytes under a key, get
// back a stable path they can later be served from.
type ImageStore interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
}

// S3Store stores image bytes in an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3-backed image store. A non-empty endpoint
// switches the client to a custom S3-compatible host with path-style
// addressing.
func NewS3Store(ctx context.Context, region, bucket, accessKey, secretKey, endpoint string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: bucket}, nil
}

// Save uploads the bytes under the given key and returns the object path.
func (s *S3Store) Save(ctx context.Context, key string, data []byte) (string, error) {
	contentType := http.DetectContentType(data)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return fmt.Sprintf("%s/%s", s.bucket, key), nil
}
