// Package handler implements the gateway's HTTP surface: the C6.1 scrape
// endpoint and the §6.2 admin API, both grounded on the teacher's
// handler.VideoHandler shape (request/response DTOs, a handleServiceError
// switch on errors.Is, JSON/Error response helpers).
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/go-chi/chi/v5"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/browser"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/cache"
	"github.com/kestrelhq/scrapegate/internal/service/selector"
	"github.com/kestrelhq/scrapegate/internal/service/urltracker"
	"github.com/kestrelhq/scrapegate/internal/service/videotracker"
)

var supportedEngines = map[string]bool{"puppeteer": true}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg"}

// QueueAdmitter is the subset of the C7 queue the scrape handler needs to
// auto-admit a freshly discovered video when AUTO_SYNC_VIDEOS is set.
type QueueAdmitter interface {
	Add(ctx context.Context, videoID string, priority int, display map[string]string) (model.QueueItem, error)
}

// ScrapeHandler implements §6.1's GET /apis/scrape/v1/{engine}.
type ScrapeHandler struct {
	pool           *browser.Pool
	cache          *cache.ScrapeCache
	urls           *urltracker.Tracker
	videos         *videotracker.Tracker
	queue          QueueAdmitter // may be nil
	autoSync       bool
	defaultTimeout time.Duration
	waitUntil      string
	logger         *slog.Logger
}

// NewScrapeHandler creates a ScrapeHandler.
func NewScrapeHandler(
	pool *browser.Pool,
	sc *cache.ScrapeCache,
	urls *urltracker.Tracker,
	videos *videotracker.Tracker,
	q QueueAdmitter,
	autoSync bool,
	defaultTimeout time.Duration,
	waitUntil string,
	logger *slog.Logger,
) *ScrapeHandler {
	return &ScrapeHandler{
		pool: pool, cache: sc, urls: urls, videos: videos, queue: q,
		autoSync: autoSync, defaultTimeout: defaultTimeout, waitUntil: waitUntil, logger: logger,
	}
}

// scrapeParams is the parsed, validated form of §6.1's query parameters.
type scrapeParams struct {
	rawURL          string
	customUserAgent string
	cookies         []cookiePair
	basicAuthUser   string
	basicAuthPass   string
	timeout         time.Duration
	proxyURL        string
	proxyAuth       string
	cleanup         bool
	delay           time.Duration
	localStorage    map[string]string
	eval            string
}

type cookiePair struct{ name, value string }

// ScrapeResponse is the JSON envelope returned for every successful scrape
// (§6.1: "the top selected video URL is returned in a field alongside
// apicalls and url"; image targets return base64 image bytes instead of
// HTML). Caching this envelope as a single JSON string, rather than
// switching response Content-Type per request, is what lets the §4.2 cache
// store and replay a scrape result uniformly regardless of which of the
// three bodies (html/image/video) it carries.
type ScrapeResponse struct {
	URL         string `json:"url"`
	APICalls    int    `json:"apicalls"`
	HTML        string `json:"html,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
}

// Handle serves GET /apis/scrape/v1/{engine}.
func (h *ScrapeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	engine := chi.URLParam(r, "engine")
	if !supportedEngines[engine] {
		Error(w, http.StatusBadRequest, "unsupported engine: "+engine, "unsupported_engine")
		return
	}

	params, err := h.parseParams(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error(), "invalid_parameter")
		return
	}

	fp := cache.Fingerprint(cache.RequestParams{
		URL: params.rawURL, CustomUserAgent: params.customUserAgent,
		CustomCookies: r.URL.Query().Get("custom_cookies"), UserPass: params.basicAuthUser + ":" + params.basicAuthPass,
		Timeout: int(params.timeout.Milliseconds()), ProxyURL: params.proxyURL, ProxyAuth: params.proxyAuth,
	})

	body, hit, err := h.cache.GetOrRender(r.Context(), fp, 0, func(ctx context.Context) (string, error) {
		resp, rerr := h.render(ctx, params)
		if rerr != nil {
			return "", rerr
		}
		out, merr := json.Marshal(resp)
		if merr != nil {
			return "", fmt.Errorf("marshal scrape response: %w", merr)
		}
		return string(out), nil
	})
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error(), "render_failed")
		return
	}

	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

// render performs the actual scrape (cache-miss path): either a direct
// image fetch, or a full headless-browser render with candidate capture and
// C6 selection.
func (h *ScrapeHandler) render(ctx context.Context, p scrapeParams) (*ScrapeResponse, error) {
	req, err := h.urls.Create(ctx, p.rawURL)
	if err != nil {
		return nil, fmt.Errorf("create scrape request: %w", err)
	}
	if _, err := h.urls.Start(ctx, req.ID); err != nil {
		return nil, fmt.Errorf("start scrape request: %w", err)
	}

	if isImageURL(p.rawURL) {
		resp, ferr := h.fetchImage(ctx, p)
		if ferr != nil {
			_, _ = h.urls.Fail(ctx, req.ID, ferr.Error())
			return nil, ferr
		}
		_, _ = h.urls.Complete(ctx, req.ID, &model.ScrapeResult{})
		return resp, nil
	}

	resp, rerr := h.renderPage(ctx, p, req.ID)
	if rerr != nil {
		_, _ = h.urls.Fail(ctx, req.ID, rerr.Error())
		return nil, rerr
	}
	return resp, nil
}

func (h *ScrapeHandler) fetchImage(ctx context.Context, p scrapeParams) (*ScrapeResponse, error) {
	client := &http.Client{Timeout: p.timeout}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.rawURL, nil)
	if err != nil {
		return nil, err
	}
	if p.customUserAgent != "" {
		httpReq.Header.Set("User-Agent", p.customUserAgent)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	return &ScrapeResponse{URL: p.rawURL, APICalls: 1, ImageBase64: base64.StdEncoding.EncodeToString(data)}, nil
}

// renderPage drives a headless tab through navigation, the optional
// cookie/localStorage/eval/delay steps, and hands the captured network
// candidates to the C6 selector before associating any detected video with
// the C5 tracker.
func (h *ScrapeHandler) renderPage(ctx context.Context, p scrapeParams, scrapeID string) (*ScrapeResponse, error) {
	timeout := p.timeout
	if timeout <= 0 {
		timeout = h.defaultTimeout
	}
	renderCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pg, err := h.pool.AcquirePage(renderCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire browser page: %w", err)
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if p.cleanup {
			_ = chromedp.Run(pg.Context(), network.ClearBrowserCookies(), network.ClearBrowserCache())
		}
		h.pool.ReleasePage(pg)
	}
	defer release()

	tasks := chromedp.Tasks{network.Enable()}
	if p.customUserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(p.customUserAgent))
	}
	if len(p.cookies) > 0 {
		tasks = append(tasks, setCookiesAction(p.rawURL, p.cookies))
	}
	if p.basicAuthUser != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(p.basicAuthUser + ":" + p.basicAuthPass))
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{"Authorization": "Basic " + auth}))
	}
	tasks = append(tasks, chromedp.Navigate(p.rawURL))
	if len(p.localStorage) > 0 {
		tasks = append(tasks, chromedp.Evaluate(localStorageScript(p.localStorage), nil), chromedp.Reload())
	}
	if p.delay > 0 {
		tasks = append(tasks, chromedp.Sleep(p.delay))
	}
	if p.eval != "" {
		tasks = append(tasks, chromedp.Evaluate(p.eval, nil))
	}
	var html string
	tasks = append(tasks, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(pg.Context(), tasks); err != nil {
		h.pool.DestroyPage(pg)
		released = true
		return nil, fmt.Errorf("render page: %w", err)
	}

	candidates := pg.Candidates()
	resp := &ScrapeResponse{URL: p.rawURL, APICalls: len(candidates), HTML: html}

	result := &model.ScrapeResult{HTMLLength: len(html), HTMLPreview: previewOf(html, 256)}
	if best, err := selector.SelectBest(candidates); err == nil {
		h.logger.Info("selected video candidate",
			slog.String("url", best.Candidate.URL), slog.Int("score", best.Score), slog.Any("reasons", best.Reasons))
		resp.VideoURL = best.Candidate.URL
		result.VideoURLs = []string{best.Candidate.URL}

		rec, verr := h.videos.AddVideo(ctx, p.rawURL, best.Candidate.URL)
		if verr != nil {
			h.logger.Error("failed to track discovered video", slog.String("error", verr.Error()))
		} else if h.autoSync && h.queue != nil && rec.Status == model.VideoPending {
			if _, qerr := h.queue.Add(ctx, rec.ID, 0, map[string]string{"source_url": p.rawURL}); qerr != nil {
				h.logger.Error("failed to auto-admit video to upload queue", slog.String("error", qerr.Error()))
			}
		}
	}

	if _, err := h.urls.Complete(ctx, scrapeID, result); err != nil {
		return nil, fmt.Errorf("complete scrape request: %w", err)
	}
	return resp, nil
}

func setCookiesAction(rawURL string, cookies []cookiePair) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		host := rawURL
		if u, err := url.Parse(rawURL); err == nil {
			host = u.Hostname()
		}
		params := make([]*network.CookieParam, 0, len(cookies))
		for _, c := range cookies {
			params = append(params, &network.CookieParam{Name: c.name, Value: c.value, Domain: host})
		}
		return network.SetCookies(params).Do(ctx)
	})
}

func localStorageScript(kv map[string]string) string {
	var b strings.Builder
	for k, v := range kv {
		fmt.Fprintf(&b, "window.localStorage.setItem(%q, %q);", k, v)
	}
	return b.String()
}

func previewOf(html string, n int) string {
	if len(html) <= n {
		return html
	}
	return html[:n]
}

func isImageURL(rawURL string) bool {
	lower := strings.ToLower(strings.SplitN(rawURL, "?", 2)[0])
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// parseParams validates every §6.1 query parameter, treating the literal
// "default" as unset.
func (h *ScrapeHandler) parseParams(r *http.Request) (scrapeParams, error) {
	q, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return scrapeParams{}, fmt.Errorf("malformed query encoding")
	}
	get := func(key string) string {
		v := q.Get(key)
		if v == "default" {
			return ""
		}
		return v
	}

	rawURL := get("url")
	if rawURL == "" {
		return scrapeParams{}, fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return scrapeParams{}, fmt.Errorf("url must be a valid http(s) URL")
	}

	p := scrapeParams{
		rawURL:          rawURL,
		customUserAgent: get("custom_user_agent"),
		proxyURL:        get("proxy_url"),
		proxyAuth:       get("proxy_auth"),
		cleanup:         true,
		timeout:         h.defaultTimeout,
	}

	if raw := get("custom_cookies"); raw != "" {
		cookies, err := parseCookies(raw)
		if err != nil {
			return scrapeParams{}, err
		}
		p.cookies = cookies
	}

	userPass := get("user_pass")
	if userPass == "" {
		userPass = get("basic_auth")
	}
	if userPass != "" {
		user, pass, ok := strings.Cut(userPass, ":")
		if !ok {
			return scrapeParams{}, fmt.Errorf("user_pass/basic_auth must be username:password")
		}
		p.basicAuthUser, p.basicAuthPass = user, pass
	}

	if raw := get("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return scrapeParams{}, fmt.Errorf("timeout must be a positive integer")
		}
		p.timeout = time.Duration(ms) * time.Millisecond
	}

	if raw := get("cleanup"); raw != "" {
		switch raw {
		case "true":
			p.cleanup = true
		case "false":
			p.cleanup = false
		default:
			return scrapeParams{}, fmt.Errorf("cleanup must be true or false")
		}
	}

	if raw := get("delay"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			return scrapeParams{}, fmt.Errorf("delay must be a non-negative integer")
		}
		p.delay = time.Duration(ms) * time.Millisecond
	}

	if raw := get("localstorage"); raw != "" {
		kv, err := parseKVPairs(raw)
		if err != nil {
			return scrapeParams{}, fmt.Errorf("localstorage must be k=v;k=v pairs")
		}
		p.localStorage = kv
	}

	p.eval = get("eval")

	return p, nil
}

// parseCookies accepts either a JSON object of name:value pairs or a
// "name=value;name2=value2" string (§6.1 custom_cookies).
func parseCookies(raw string) ([]cookiePair, error) {
	var obj map[string]string
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		out := make([]cookiePair, 0, len(obj))
		for k, v := range obj {
			out = append(out, cookiePair{name: k, value: v})
		}
		return out, nil
	}
	kv, err := parseKVPairs(raw)
	if err != nil {
		return nil, fmt.Errorf("custom_cookies: each segment must contain '='")
	}
	out := make([]cookiePair, 0, len(kv))
	for k, v := range kv {
		out = append(out, cookiePair{name: k, value: v})
	}
	return out, nil
}

// parseKVPairs parses "k=v;k=v" into a map, failing if any non-empty
// segment lacks an '='.
func parseKVPairs(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, segment := range strings.Split(raw, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		k, v, ok := strings.Cut(segment, "=")
		if !ok {
			return nil, fmt.Errorf("segment %q missing '='", segment)
		}
		out[k] = v
	}
	return out, nil
}
