package jsonfile

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/minio/minio-go/v7"
)

// LoadFile reads a dataset from the local filesystem.
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return Parse(data)
}

// ObjectGetter is the subset of *minio.Client used to fetch a dataset.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// LoadObject reads a dataset from an S3-compatible bucket.
func LoadObject(ctx context.Context, client ObjectGetter, bucket, object string) (*Dataset, error) {
	obj, err := client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset s3://%s/%s: %w", bucket, object, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset s3://%s/%s: %w", bucket, object, err)
	}
	return Parse(data)
}
