// Package blobstore provides document blob storage backends behind one
// capability interface.
package blobstore

import "context"

// BlobStore stores signed document bytes and hands out retrieval URLs.
type BlobStore interface {
	// Upload stores the bytes under a new blob identifier.
	Upload(ctx context.Context, data []byte, filename string) (string, error)
	// Download returns the bytes of a previously uploaded blob.
	Download(ctx context.Context, blobID string) ([]byte, error)
	// GetDownloadURL returns a URL from which the blob can be fetched.
	GetDownloadURL(ctx context.Context, blobID string) (string, error)
}
