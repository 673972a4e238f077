package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// RequestParams is the set of scrape-request fields that determine a
// fingerprint (§4.2): {url, custom_user_agent, custom_cookies, user_pass,
// timeout, proxy_url, proxy_auth}.
type RequestParams struct {
	URL             string `json:"url"`
	CustomUserAgent string `json:"custom_user_agent,omitempty"`
	CustomCookies   string `json:"custom_cookies,omitempty"`
	UserPass        string `json:"user_pass,omitempty"`
	Timeout         int    `json:"timeout,omitempty"`
	ProxyURL        string `json:"proxy_url,omitempty"`
	ProxyAuth       string `json:"proxy_auth,omitempty"`
}

// Fingerprint computes the canonical-JSON-then-SHA256 fingerprint for p.
// The struct is encoded once and then re-encoded through a map, because
// encoding/json writes map keys in sorted order; the hashed JSON therefore
// has its keys sorted rather than in struct declaration order.
func Fingerprint(p RequestParams) string {
	b, _ := json.Marshal(p)
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err == nil {
		b, _ = json.Marshal(fields)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
