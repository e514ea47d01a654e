package objectstore

import (
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"
)

// ObjectWriter is the slice of S3-compatible storage the output archive needs.
type ObjectWriter interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error
}

type minioWriter struct {
	client *minio.Client
}

func (w minioWriter) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error {
	_, err := w.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	return err
}

// NewMinioOutputArchive archives run outputs into bucket through client.
func NewMinioOutputArchive(client *minio.Client, bucket string) (*OutputArchive, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	return NewOutputArchive(minioWriter{client: client}, bucket)
}
