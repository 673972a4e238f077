package downloader

import "testing"

func TestCheckSSRF_BlocksNonHTTPScheme(t *testing.T) {
	if err := checkSSRF("file:///etc/passwd"); err == nil {
		t.Fatal("expected file scheme to be blocked")
	}
}

func TestCheckSSRF_BlocksLocalhost(t *testing.T) {
	if err := checkSSRF("http://localhost:8080/x"); err == nil {
		t.Fatal("expected localhost to be blocked")
	}
}

func TestCheckSSRF_BlocksLoopbackLiteral(t *testing.T) {
	if err := checkSSRF("http://127.0.0.1/x"); err == nil {
		t.Fatal("expected 127.0.0.1 to be blocked")
	}
}

func TestCheckSSRF_BlocksPrivateRanges(t *testing.T) {
	cases := []string{
		"http://10.0.0.5/x",
		"http://172.16.0.5/x",
		"http://192.168.1.5/x",
		"http://169.254.1.1/x",
		"http://0.0.0.1/x",
	}
	for _, c := range cases {
		if err := checkSSRF(c); err == nil {
			t.Fatalf("expected %q to be blocked", c)
		}
	}
}

func TestCheckSSRF_AllowsPublicHTTPS(t *testing.T) {
	if err := checkSSRF("https://8.8.8.8/x"); err != nil {
		t.Fatalf("unexpected error for public IP literal: %v", err)
	}
}

func TestCheckSSRF_BlocksIPv6Loopback(t *testing.T) {
	if err := checkSSRF("http://[::1]/x"); err == nil {
		t.Fatal("expected ::1 to be blocked")
	}
}
