package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"propagates incoming", "req-incoming-123", true},
		{"generates when missing", "", false},
		{"replaces ids with spaces", "two words", false},
		{"replaces oversized ids", strings.Repeat("a", maxRequestIDBytes+1), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromRequest(r)
			}))
			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tc.incoming != "" {
				req.Header.Set("X-Request-Id", tc.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-Id")
			if got != seen {
				t.Fatalf("header id %q differs from context id %q", got, seen)
			}
			if tc.keep && got != tc.incoming {
				t.Fatalf("request id = %q, want %q", got, tc.incoming)
			}
			if !tc.keep && !IsHexID(got) {
				t.Fatalf("request id = %q, want generated hex id", got)
			}
		})
	}
}

func TestRequestIDOutsideRequest(t *testing.T) {
	if got := RequestIDFromRequest(nil); got != "" {
		t.Fatalf("nil request id = %q, want empty", got)
	}
}
