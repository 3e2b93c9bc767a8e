package minioctrl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"knowgo/src/core/kerr"
)

// DocumentsBucket is the default bucket document content lives in.
const DocumentsBucket = "knowledge-documents"

// ContentStore serves document content out of object storage. A content
// reference has the form "bucket-name/object-name".
type ContentStore struct {
	client *minio.Client
}

func NewContentStore(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*ContentStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %v", err)
	}

	return &ContentStore{
		client: client,
	}, nil
}

func (s *ContentStore) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return nil
}

// Read resolves a content reference to the stored text.
func (s *ContentStore) Read(ctx context.Context, ref string) (string, error) {
	const op = "minioctrl.ContentStore.Read"

	bucket, object := SplitRef(ref)
	if bucket == "" || object == "" {
		return "", kerr.Newf(kerr.KindValidation, op, "malformed content ref %q", ref)
	}

	obj, err := s.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get object: %v", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("failed to read object data: %v", err)
	}

	return string(data), nil
}

func (s *ContentStore) Put(ctx context.Context, bucketName, objectName string, data []byte) (string, error) {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, bucketName, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/plain",
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %v", err)
	}

	return bucketName + "/" + objectName, nil
}

func (s *ContentStore) Delete(ctx context.Context, ref string) error {
	bucket, object := SplitRef(ref)
	if bucket == "" || object == "" {
		return nil
	}

	err := s.client.RemoveObject(ctx, bucket, object, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %v", err)
	}

	return nil
}

// SplitRef splits "bucket-name/object-name" into its parts.
func SplitRef(ref string) (string, string) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
