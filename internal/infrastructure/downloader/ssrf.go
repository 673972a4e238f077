package downloader

import (
	"fmt"
	"net"
	"net/url"
)

// blockedCIDRs enumerates the private/loopback/link-local ranges §4.8's
// SSRF guard denies, for both direct HTTP downloads and any redirect
// target encountered along the way.
var blockedCIDRs = mustParseCIDRs([]string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"0.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fe80::/10",
})

func mustParseCIDRs(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("downloader: invalid CIDR literal %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// ErrBlockedHost is returned when a URL's scheme or resolved host falls in
// the SSRF blocklist.
type ErrBlockedHost struct {
	Host string
}

func (e *ErrBlockedHost) Error() string {
	return fmt.Sprintf("downloader: host %q is blocked by the SSRF guard", e.Host)
}

// checkSSRF validates rawURL's scheme (http/https only) and rejects hosts
// that resolve to localhost or a private/link-local address. It is applied
// both to the initial request and to every redirect hop.
func checkSSRF(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ErrBlockedHost{Host: u.Scheme}
	}

	host := u.Hostname()
	if host == "localhost" {
		return &ErrBlockedHost{Host: host}
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostname, not a literal IP: resolve and check every A/AAAA record,
		// since a DNS response fully controlled by the remote side is
		// exactly what the guard exists to stop.
		ips, err := net.LookupIP(host)
		if err != nil {
			return fmt.Errorf("resolve host %q: %w", host, err)
		}
		for _, resolved := range ips {
			if isBlockedIP(resolved) {
				return &ErrBlockedHost{Host: host}
			}
		}
		return nil
	}

	if isBlockedIP(ip) {
		return &ErrBlockedHost{Host: host}
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range blockedCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
