package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name           string
		expected       string
		queryKey       string
		headerKey      string
		wantStatusCode int
		wantNextCalled bool
	}{
		{
			name:           "valid key in query string",
			expected:       "secret",
			queryKey:       "secret",
			wantStatusCode: http.StatusOK,
			wantNextCalled: true,
		},
		{
			name:           "valid key in header",
			expected:       "secret",
			headerKey:      "secret",
			wantStatusCode: http.StatusOK,
			wantNextCalled: true,
		},
		{
			name:           "query string takes precedence over header",
			expected:       "secret",
			queryKey:       "secret",
			headerKey:      "wrong",
			wantStatusCode: http.StatusOK,
			wantNextCalled: true,
		},
		{
			name:           "missing key",
			expected:       "secret",
			wantStatusCode: http.StatusBadRequest,
			wantNextCalled: false,
		},
		{
			name:           "mismatched key",
			expected:       "secret",
			queryKey:       "wrong",
			wantStatusCode: http.StatusBadRequest,
			wantNextCalled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/apis/scrape/v1/puppeteer?url=https://example.com", nil)
			if tt.queryKey != "" {
				q := req.URL.Query()
				q.Set("apikey", tt.queryKey)
				req.URL.RawQuery = q.Encode()
			}
			if tt.headerKey != "" {
				req.Header.Set("X-Api-Key", tt.headerKey)
			}

			rr := httptest.NewRecorder()
			APIKeyAuth(tt.expected)(next).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatusCode {
				t.Errorf("status code = %d, want %d", rr.Code, tt.wantStatusCode)
			}
			if nextCalled != tt.wantNextCalled {
				t.Errorf("next called = %v, want %v", nextCalled, tt.wantNextCalled)
			}
			if !tt.wantNextCalled && rr.Header().Get("Content-Type") != "application/json" {
				t.Errorf("error response Content-Type = %q, want application/json", rr.Header().Get("Content-Type"))
			}
		})
	}
}
