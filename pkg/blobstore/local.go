package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStore keeps blobs as files on local disk. It serves as the
// fallback backend when no remote storage is reachable; download URLs
// point back at this service's own download endpoint.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (l *LocalStore) path(blobID string) string {
	return filepath.Join(l.dir, blobID+".pdf")
}

// Upload implements BlobStore.
func (l *LocalStore) Upload(_ context.Context, data []byte, _ string) (string, error) {
	blobID := uuid.NewString()
	if err := os.WriteFile(l.path(blobID), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	return blobID, nil
}

// Download implements BlobStore.
func (l *LocalStore) Download(_ context.Context, blobID string) ([]byte, error) {
	data, err := os.ReadFile(l.path(blobID))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", blobID, err)
	}
	return data, nil
}

// GetDownloadURL implements BlobStore. Local blobs are only reachable
// through this service, so the URL is a relative API path.
func (l *LocalStore) GetDownloadURL(_ context.Context, blobID string) (string, error) {
	return fmt.Sprintf("/api/services/selfsign/documents/%s/download", blobID), nil
}
