package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const maxKeyLength = 100

// hlsExtensions maps playlist extensions to the single-file extension the
// uploaded object actually gets (§4.9: "maps HLS extensions to the output
// extension, default mp4").
var hlsExtensions = map[string]bool{".m3u8": true, ".m3u": true}

var disallowedKeyChars = regexp.MustCompile(`[^a-z0-9._-]+`)
var repeatedDashes = regexp.MustCompile(`-{2,}`)

// StorageKey computes the deterministic, content-addressed object key for a
// media URL (§4.9): keyPrefix + sanitize(filename) + "-" + sha256(normalize(url))[:12] + ".ext".
// The same input URL always yields the same key, which is how C5's add/sync
// dedup anchors onto existing uploads.
func StorageKey(keyPrefix, rawURL string) string {
	normalized := normalizeURL(rawURL)
	sum := sha256.Sum256([]byte(normalized))
	hash := hex.EncodeToString(sum[:])[:12]

	base := filenameOf(normalized)
	ext := outputExtension(base)
	name := sanitize(strings.TrimSuffix(base, path.Ext(base)))

	key := keyPrefix + name + "-" + hash + ext
	if len(key) > maxKeyLength {
		key = key[:maxKeyLength]
	}
	return key
}

// normalizeURL strips query and fragment, the dedup-equivalence contract
// in §4.9 ("same input URL" across query-string variants).
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func filenameOf(normalized string) string {
	base := path.Base(normalized)
	if base == "" || base == "." || base == "/" {
		return "file"
	}
	return base
}

func outputExtension(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		return ".mp4"
	}
	if hlsExtensions[ext] {
		return ".mp4"
	}
	return ext
}

// sanitize lowercases, replaces disallowed characters with "-", collapses
// runs of "-", and trims leading/trailing "-".
func sanitize(s string) string {
	s = strings.ToLower(s)
	s = disallowedKeyChars.ReplaceAllString(s, "-")
	s = repeatedDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "file"
	}
	return s
}
