package reconciler

import (
	"context"
	"io"

	"github.com/kestrelhq/scrapegate/internal/domain/repository"
)

// mockObjectStorage provides a configurable mock for repository.ObjectStorage.
type mockObjectStorage struct {
	objects map[string]repository.ObjectInfo // key -> metadata, drives ListObjects/GetObjectMetadata

	deleteObjectFn   func(ctx context.Context, key string) error
	listObjectsFn    func(ctx context.Context, token, prefix string, maxKeys int) (repository.ListPage, error)
	listObjectsCalls int
}

func (m *mockObjectStorage) IsConfigured() bool                           { return true }
func (m *mockObjectStorage) ValidateConnection(ctx context.Context) error { return nil }
func (m *mockObjectStorage) GetPublicURL(key string) string               { return "https://cdn.example.com/" + key }
func (m *mockObjectStorage) StorageKey(rawURL string) string              { return "key-for-" + rawURL }

func (m *mockObjectStorage) ExtractKeyFromURL(url string) (string, error) {
	const prefix = "https://cdn.example.com/"
	if len(url) > len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):], nil
	}
	return "", repository.ErrObjectNotFound
}

func (m *mockObjectStorage) GetObjectMetadata(ctx context.Context, key string) (repository.ObjectInfo, error) {
	if info, ok := m.objects[key]; ok {
		return info, nil
	}
	return repository.ObjectInfo{}, repository.ErrObjectNotFound
}

func (m *mockObjectStorage) ListObjects(ctx context.Context, token, prefix string, maxKeys int) (repository.ListPage, error) {
	m.listObjectsCalls++
	if m.listObjectsFn != nil {
		return m.listObjectsFn(ctx, token, prefix, maxKeys)
	}
	page := repository.ListPage{}
	for key, info := range m.objects {
		page.Objects = append(page.Objects, repository.ObjectInfo{Key: key, Size: info.Size, Metadata: info.Metadata})
	}
	return page, nil
}

func (m *mockObjectStorage) UploadFromFile(ctx context.Context, path, key, contentType string, meta repository.UploadMetadata) error {
	return nil
}

func (m *mockObjectStorage) DeleteObject(ctx context.Context, key string) error {
	if m.deleteObjectFn != nil {
		return m.deleteObjectFn(ctx, key)
	}
	delete(m.objects, key)
	return nil
}

func (m *mockObjectStorage) CheckObjectExists(ctx context.Context, key string) (repository.ExistsResult, error) {
	if info, ok := m.objects[key]; ok {
		return repository.ExistsResult{Exists: true, Size: info.Size, Metadata: info.Metadata}, nil
	}
	return repository.ExistsResult{Exists: false}, nil
}

func (m *mockObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, repository.ErrObjectNotFound
}

// mockDownloader is a no-op repository.MediaDownloader; reconciler never
// downloads, but the videotracker.Tracker constructor requires one.
type mockDownloader struct{}

func (m *mockDownloader) Download(ctx context.Context, videoURL, tempDir string, isHLS bool, onProgress func(int64, int64, float64)) (repository.DownloadResult, error) {
	return repository.DownloadResult{}, nil
}

func (m *mockDownloader) Cleanup(path string) {}
