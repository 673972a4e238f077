package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
)

// candidateEntry is an observed network event that may describe a media
// asset, before C6 filtering/scoring.
type candidateEntry = model.Candidate

// videoLikeContentTypes are Content-Type / mime-type prefixes worth
// tracking as candidates; everything else (images, scripts, stylesheets) is
// ignored at capture time so the selector never has to sift through noise.
var videoLikeContentTypes = []string{"video/", "application/vnd.apple.mpegurl", "application/dash+xml", "application/x-mpegurl"}

// candidateCollector accumulates Candidate observations from a single tab's
// CDP Network domain events, feeding the C6 selector. Grounded on the
// EventCollector pattern in other_examples' jsbug chrome-renderer_v2.go
// (chromedp.ListenTarget switch over *network.Event* types), narrowed from
// full request/response capture down to media-candidate extraction.
type candidateCollector struct {
	mu    sync.Mutex
	seen  int
	items []candidateEntry
}

func newCandidateCollector() *candidateCollector {
	return &candidateCollector{}
}

// attach enables the Network domain and registers the listener. Must be
// called once per tab context, before navigation.
func (c *candidateCollector) attach(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			c.considerRequest(e)
		case *network.EventResponseReceived:
			c.considerResponse(e)
		}
	})
	_ = chromedp.Run(ctx, network.Enable())
}

func (c *candidateCollector) considerRequest(e *network.EventRequestWillBeSent) {
	if e.Request == nil {
		return
	}
	if !looksLikeVideoURL(e.Request.URL) {
		return
	}
	c.add(candidateEntry{URL: e.Request.URL, IsHLS: strings.Contains(strings.ToLower(e.Request.URL), ".m3u8")})
}

func (c *candidateCollector) considerResponse(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}
	mimeType := string(e.Response.MimeType)
	if !isVideoLikeMimeType(mimeType) && !looksLikeVideoURL(e.Response.URL) {
		return
	}
	c.add(candidateEntry{
		URL:      e.Response.URL,
		MimeType: mimeType,
		IsHLS:    strings.Contains(mimeType, "mpegurl") || strings.Contains(strings.ToLower(e.Response.URL), ".m3u8"),
	})
}

func (c *candidateCollector) add(cand candidateEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cand.SetFirstSeen(c.seen)
	c.seen++
	c.items = append(c.items, cand)
}

func (c *candidateCollector) snapshot() []candidateEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]candidateEntry, len(c.items))
	copy(out, c.items)
	return out
}

func isVideoLikeMimeType(mimeType string) bool {
	mimeType = strings.ToLower(mimeType)
	for _, prefix := range videoLikeContentTypes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}

var videoExtensions = []string{".mp4", ".webm", ".mov", ".avi", ".mkv", ".m4v", ".m3u8", ".mpd", ".ts", ".m4s"}

func looksLikeVideoURL(url string) bool {
	lower := strings.ToLower(strings.SplitN(url, "?", 2)[0])
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
