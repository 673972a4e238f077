// Package selector implements the C6 video selector: a pure, I/O-free
// scoring function that picks one "best" media candidate out of the
// heterogeneous set a rendered page's network events surface, generalizing
// the filter-then-rank shape of other_examples' scraper candidate pipelines
// to the scoring table in the gateway's spec.
package selector

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
)

// adPatterns matches known ad/tracker URL fragments, checked case-insensitively.
var adPatterns = []string{
	"doubleclick.net", "googlesyndication", "googleadservices",
	"adsystem", "ads.", "/ads/", "adserver", "taboola", "outbrain",
	"pixel.", "beacon.", "scorecardresearch", "moatads",
}

// adNetworkQueryMarkers matches ad-network query-string markers.
var adNetworkQueryMarkers = []string{
	"utm_source=ad", "gclid=", "fbclid=", "ad_id=", "campaign_id=",
}

// junkPatterns matches obvious placeholder/junk assets.
var junkPatterns = []string{"blank.mp4", "placeholder", "dummy", "sample.mp4", "test.mp4"}

// themePatterns matches theme/asset-path fragments, never real video content.
var themePatterns = []string{"/themes/", "/player/", "/assets/", "/static/", "/css/", "/js/"}

// contentPatterns matches paths that strongly suggest real media content.
var contentPatterns = []string{"/storage/", "/videos/", "/uploads/", "/media/", "/content/"}

// downloadPathPattern matches "/(dload|download|dl|get)/" style paths.
var downloadPathPattern = regexp.MustCompile(`(?i)/(dload|download|dl|get)/`)

// libraryDigitsPattern matches "/library/<digits>/" paths, a known low-value shape.
var libraryDigitsPattern = regexp.MustCompile(`(?i)/library/\d+/`)

// resolutionSegmentPattern matches a bare "/NNN(N)/" resolution-looking path segment.
var resolutionSegmentPattern = regexp.MustCompile(`/(\d{3,4})/`)

// segmentPattern matches stream-segment filenames (.ts/.m4s/seg-N/chunk-N).
var segmentPattern = regexp.MustCompile(`(?i)\.ts$|\.m4s$|seg-\d+|chunk-\d+`)

// genericFilenamePattern matches filenames with no distinguishing content.
var genericFilenamePattern = regexp.MustCompile(`(?i)^(index|video|file|stream|media)\.[a-z0-9]+$`)

// slugPattern matches a long hyphenated slug, the opposite of a generic name.
var slugPattern = regexp.MustCompile(`[a-z0-9]+(-[a-z0-9]+){3,}`)

// uuidPattern matches a canonical UUID, which does not count as a meaningful slug.
var uuidPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// suspiciousSubstrings matches tracker-pixel-ish tokens inside an otherwise
// plausible media URL.
var suspiciousSubstrings = []string{"pixel", "beacon", "tracker", "analytics"}

// trustedCDNHosts matches substrings of hosts the scorer trusts a little more.
var trustedCDNHosts = []string{"cloudfront.net", "akamaized.net", "fastly.net", "bunnycdn.com"}

var qualityTokens = map[string]int{
	"2160p": 20, "1440p": 16, "1080p": 12, "720p": 8, "480p": 4, "360p": 2,
}

// SelectBest implements the §4.6 pipeline: filter known junk, dedup, then
// rank by additive score. Returns nil, nil if no candidate survives
// filtering (an empty or fully-filtered candidate set is not an error).
func SelectBest(candidates []model.Candidate) (*model.ScoredCandidate, error) {
	filtered := filterCandidates(candidates)
	filtered = dedupeByURL(filtered)

	if len(filtered) == 0 {
		return nil, nil
	}
	if len(filtered) == 1 {
		return &model.ScoredCandidate{Candidate: filtered[0], Score: 0, Reasons: []string{"only surviving candidate"}}, nil
	}

	scored := make([]model.ScoredCandidate, len(filtered))
	for i, c := range filtered {
		score, reasons := scoreCandidate(c)
		scored[i] = model.ScoredCandidate{Candidate: c, Score: score, Reasons: reasons}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Candidate.FirstSeen() < scored[j].Candidate.FirstSeen()
	})

	best := scored[0]
	return &best, nil
}

func filterCandidates(candidates []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		lower := strings.ToLower(c.URL)
		if matchesAny(lower, adPatterns) {
			continue
		}
		if strings.HasPrefix(lower, "blob:") {
			continue
		}
		if strings.Contains(strings.ToLower(c.MimeType), "mp2t") {
			continue
		}
		if segmentPattern.MatchString(lower) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func dedupeByURL(candidates []model.Candidate) []model.Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := stripQuery(c.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func stripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func matchesAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// scoreCandidate computes the additive score described by §4.6's table.
func scoreCandidate(c model.Candidate) (int, []string) {
	lower := strings.ToLower(c.URL)
	filename := strings.ToLower(path.Base(stripQuery(c.URL)))
	ext := strings.TrimPrefix(path.Ext(filename), ".")

	score := 0
	var reasons []string

	add := func(delta int, reason string) {
		score += delta
		reasons = append(reasons, reason)
	}

	isJunk := matchesAny(lower, junkPatterns)
	if isJunk {
		add(-100, "junk/placeholder pattern")
	}

	isTheme := matchesAny(lower, themePatterns)
	if isTheme {
		add(-50, "theme/asset path")
	}

	switch {
	case ext == "mp4" && !isJunk && !isTheme:
		add(50, "mp4 extension")
	case isJunk:
		add(10, "junk-suspect mp4")
	}

	switch ext {
	case "webm", "mov", "avi", "mkv", "m4v":
		add(40, "known video extension "+ext)
	}

	if ext == "m3u8" || c.IsHLS {
		add(20, "HLS stream")
	}
	if ext == "mpd" {
		add(15, "DASH manifest")
	}

	if downloadPathPattern.MatchString(lower) {
		add(25, "download-style path")
	}

	if c.IsPrimaryPlayer {
		add(15, "marked as primary player")
	}

	adCDN := matchesAny(lower, []string{"adcdn", "adnetwork", "admedia"})
	if adCDN {
		add(-80, "known ad CDN host pattern")
	}
	if matchesAny(lower, adNetworkQueryMarkers) {
		add(-60, "ad-network query marker")
	}

	if libraryDigitsPattern.MatchString(lower) {
		add(-30, "/library/<digits>/ path")
	}

	contentPath := matchesAny(lower, contentPatterns)
	if contentPath {
		add(15, "content path")
	}

	hasSlug := false
	for token, pts := range qualityTokens {
		if strings.Contains(lower, token) {
			add(pts, "quality token "+token)
			break
		}
	}

	if m := resolutionSegmentPattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			add(resolutionLadder(n), "resolution segment /"+m[1]+"/")
		}
	}

	lenBonus := len(filename) / 20
	if lenBonus > 5 {
		lenBonus = 5
	}
	if lenBonus > 0 {
		add(lenBonus, "filename length bonus")
	}

	base := strings.TrimSuffix(filename, "."+ext)
	if slugPattern.MatchString(base) && !uuidPattern.MatchString(base) {
		hasSlug = true
		add(10, "meaningful slug")
	}

	if genericFilenamePattern.MatchString(filename) && !hasSlug && !contentPath {
		add(-5, "generic filename with no slug/content-path")
	}

	if strings.HasPrefix(lower, "blob:") {
		add(-30, "blob scheme")
	} else {
		add(10, "not blob-scheme")
	}

	if len(c.URL) < 50 {
		add(-10, "short URL")
	}

	if c.DeclaredSize > 0 {
		add(3, "declared size present")
	}

	if matchesAny(lower, trustedCDNHosts) {
		add(5, "trusted CDN host")
	}

	if matchesAny(lower, suspiciousSubstrings) {
		add(-20, "suspicious substring")
	}

	return score, reasons
}

// resolutionLadder maps a bare numeric path segment to a score 4..20 by
// threshold: 2160 and up scores 20, 1440 16, 1080 12, 720 8, anything lower
// 4. Any number at or above a threshold counts, not only exact resolutions.
func resolutionLadder(n int) int {
	switch {
	case n >= 2160:
		return 20
	case n >= 1440:
		return 16
	case n >= 1080:
		return 12
	case n >= 720:
		return 8
	case n >= 480:
		return 4
	default:
		return 4
	}
}
