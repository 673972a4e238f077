package storage

import "testing"

func TestStorageKey_QueryAndFragmentIgnored(t *testing.T) {
	a := StorageKey("videos/", "https://v.com/a/b/clip.m3u8?x=1")
	b := StorageKey("videos/", "https://v.com/a/b/clip.m3u8?y=2")
	if a != b {
		t.Fatalf("expected identical keys for query-varying URLs, got %q and %q", a, b)
	}
}

func TestStorageKey_HLSMapsToMP4(t *testing.T) {
	key := StorageKey("videos/", "https://v.com/a/b/clip.m3u8?x=1")
	if got, want := key[len(key)-4:], ".mp4"; got != want {
		t.Fatalf("expected key to end in %q, got %q (key=%q)", want, got, key)
	}
}

func TestStorageKey_Deterministic(t *testing.T) {
	url := "https://cdn.example.com/videos/My Movie (2024).mp4"
	if StorageKey("videos/", url) != StorageKey("videos/", url) {
		t.Fatal("expected StorageKey to be deterministic for the same input")
	}
}

func TestStorageKey_DifferentURLsDifferentKeys(t *testing.T) {
	a := StorageKey("videos/", "https://cdn.example.com/videos/movie-one.mp4")
	b := StorageKey("videos/", "https://cdn.example.com/videos/movie-two.mp4")
	if a == b {
		t.Fatal("expected distinct keys for distinct URLs")
	}
}

func TestStorageKey_LengthCapped(t *testing.T) {
	longURL := "https://cdn.example.com/videos/" +
		"this-is-a-very-long-filename-that-keeps-going-and-going-and-going-and-going-and-going-and-going.mp4"
	key := StorageKey("videos/", longURL)
	if len(key) > 100 {
		t.Fatalf("expected key length <= 100, got %d", len(key))
	}
}

func TestStorageKey_SanitizesDisallowedCharacters(t *testing.T) {
	key := StorageKey("videos/", "https://cdn.example.com/videos/My Movie (2024)!!.mp4")
	for _, r := range key {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '_' || r == '-' || r == '/' {
			continue
		}
		t.Fatalf("key contains disallowed character %q: %q", r, key)
	}
}
