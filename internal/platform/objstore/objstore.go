// Package objstore fetches submitted recordings from object storage.
// Submissions carry a file ID; when no local input path is reachable the
// worker materializes the object into its work directory before processing.
package objstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/voxnote/voxnote-api/internal/config"
)

// Storage wraps a MinIO client scoped to the recordings bucket.
type Storage struct {
	client *minio.Client
	bucket string
}

// New creates a Storage from config.
func New(cfg config.StorageConfig) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	return &Storage{client: client, bucket: cfg.Bucket}, nil
}

// FetchToDir downloads the object identified by fileID into dir and
// returns the local path.
func (s *Storage) FetchToDir(ctx context.Context, fileID, dir string) (string, error) {
	localPath := filepath.Join(dir, filepath.Base(fileID))

	if err := s.client.FGetObject(ctx, s.bucket, fileID, localPath, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to fetch object %q: %w", fileID, err)
	}

	return localPath, nil
}
