package repository

import (
	"context"
	"io"
	"time"
)

// ObjectInfo contains metadata about a stored object (§4.9 getObjectMetadata).
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
	ETag         string
}

// ExistsResult is the result of CheckObjectExists (§4.9).
type ExistsResult struct {
	Exists       bool
	Size         int64
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
	ETag         string
}

// ListPage is one page of ListObjects (§4.9, continuation-token paginated).
type ListPage struct {
	Objects          []ObjectInfo
	NextContinuation string
	IsTruncated      bool
}

// UploadMetadata is the set of user metadata keys attached on upload (§4.9,
// §6.5): x-video-url, x-source-url, x-uploaded-at.
type UploadMetadata struct {
	VideoURL  string
	SourceURL string
}

// ObjectStorage is the C9 object-store client contract.
type ObjectStorage interface {
	IsConfigured() bool
	ValidateConnection(ctx context.Context) error

	UploadFromFile(ctx context.Context, path, key, contentType string, meta UploadMetadata) error
	DeleteObject(ctx context.Context, key string) error
	CheckObjectExists(ctx context.Context, key string) (ExistsResult, error)
	ListObjects(ctx context.Context, continuationToken, prefix string, maxKeys int) (ListPage, error)
	GetObjectMetadata(ctx context.Context, key string) (ObjectInfo, error)

	GetPublicURL(key string) string
	ExtractKeyFromURL(url string) (string, error)

	// StorageKey computes the deterministic, content-addressed object key
	// for a media URL using this client's configured key prefix.
	StorageKey(rawURL string) string

	// Download streams an object. Callers must close the returned reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}
