package browser

import "testing"

func TestLooksLikeVideoURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/videos/movie.mp4", true},
		{"https://cdn.example.com/videos/movie.mp4?token=abc", true},
		{"https://cdn.example.com/hls/playlist.m3u8", true},
		{"https://cdn.example.com/style.css", false},
		{"https://cdn.example.com/page.html", false},
	}
	for _, tt := range tests {
		if got := looksLikeVideoURL(tt.url); got != tt.want {
			t.Errorf("looksLikeVideoURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestIsVideoLikeMimeType(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{"video/mp4", true},
		{"application/vnd.apple.mpegurl", true},
		{"application/dash+xml", true},
		{"text/html", false},
		{"image/png", false},
	}
	for _, tt := range tests {
		if got := isVideoLikeMimeType(tt.mime); got != tt.want {
			t.Errorf("isVideoLikeMimeType(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestCandidateCollector_AddAssignsFirstSeenInOrder(t *testing.T) {
	c := newCandidateCollector()
	c.add(candidateEntry{URL: "https://cdn.example.com/a.mp4"})
	c.add(candidateEntry{URL: "https://cdn.example.com/b.mp4"})

	got := c.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].FirstSeen() != 0 || got[1].FirstSeen() != 1 {
		t.Fatalf("expected sequential firstSeen values, got %d and %d", got[0].FirstSeen(), got[1].FirstSeen())
	}
}
