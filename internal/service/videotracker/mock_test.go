package videotracker

import (
	"context"
	"io"

	"github.com/kestrelhq/scrapegate/internal/domain/repository"
)

// mockObjectStorage provides a configurable mock for repository.ObjectStorage.
type mockObjectStorage struct {
	objects map[string]repository.ExistsResult // keyed by storage key

	checkObjectExistsFn func(ctx context.Context, key string) (repository.ExistsResult, error)
	uploadFromFileFn    func(ctx context.Context, path, key, contentType string, meta repository.UploadMetadata) error
	deleteObjectFn      func(ctx context.Context, key string) error
}

func (m *mockObjectStorage) IsConfigured() bool                           { return true }
func (m *mockObjectStorage) ValidateConnection(ctx context.Context) error { return nil }
func (m *mockObjectStorage) GetPublicURL(key string) string               { return "https://cdn.example.com/" + key }
func (m *mockObjectStorage) ExtractKeyFromURL(url string) (string, error) {
	return "extracted-key", nil
}
func (m *mockObjectStorage) StorageKey(rawURL string) string { return "key-for-" + rawURL }
func (m *mockObjectStorage) GetObjectMetadata(ctx context.Context, key string) (repository.ObjectInfo, error) {
	return repository.ObjectInfo{Key: key}, nil
}
func (m *mockObjectStorage) ListObjects(ctx context.Context, token, prefix string, maxKeys int) (repository.ListPage, error) {
	return repository.ListPage{}, nil
}
func (m *mockObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, repository.ErrObjectNotFound
}

func (m *mockObjectStorage) CheckObjectExists(ctx context.Context, key string) (repository.ExistsResult, error) {
	if m.checkObjectExistsFn != nil {
		return m.checkObjectExistsFn(ctx, key)
	}
	if m.objects != nil {
		if res, ok := m.objects[key]; ok {
			return res, nil
		}
	}
	return repository.ExistsResult{Exists: false}, nil
}

func (m *mockObjectStorage) UploadFromFile(ctx context.Context, path, key, contentType string, meta repository.UploadMetadata) error {
	if m.uploadFromFileFn != nil {
		return m.uploadFromFileFn(ctx, path, key, contentType, meta)
	}
	return nil
}

func (m *mockObjectStorage) DeleteObject(ctx context.Context, key string) error {
	if m.deleteObjectFn != nil {
		return m.deleteObjectFn(ctx, key)
	}
	return nil
}

// mockDownloader provides a configurable mock for repository.MediaDownloader.
type mockDownloader struct {
	downloadFn func(ctx context.Context, videoURL, tempDir string, isHLS bool, onProgress func(int64, int64, float64)) (repository.DownloadResult, error)
	cleaned    []string
}

func (m *mockDownloader) Download(ctx context.Context, videoURL, tempDir string, isHLS bool, onProgress func(int64, int64, float64)) (repository.DownloadResult, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, videoURL, tempDir, isHLS, onProgress)
	}
	return repository.DownloadResult{Path: "/tmp/downloaded.mp4", Kind: "direct"}, nil
}

func (m *mockDownloader) Cleanup(path string) {
	m.cleaned = append(m.cleaned, path)
}

// mockEventPublisher records every published lifecycle event.
type mockEventPublisher struct {
	events []repository.LifecycleEvent
}

func (m *mockEventPublisher) Publish(ev repository.LifecycleEvent) {
	m.events = append(m.events, ev)
}
