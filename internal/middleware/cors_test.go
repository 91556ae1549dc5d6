package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testDashboard = "https://leaderboard.example.org"

func corsHandler(cfg CORSConfig, reached *int) http.Handler {
	return CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*reached++
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORS_LeaderboardConfig(t *testing.T) {
	allowed := "GET, OPTIONS"
	headers := "Content-Type, " + RequestIDHeader

	tests := []struct {
		name          string
		method        string
		origin        string
		wantStatus    int
		wantReached   bool
		wantOrigin    string
		wantMethods   string
		wantHeaders   string
		wantMaxAge    string
		wantExposed   bool
		wantErrorBody bool
	}{
		{
			name:        "dashboard GET",
			method:      http.MethodGet,
			origin:      testDashboard,
			wantStatus:  http.StatusOK,
			wantReached: true,
			wantOrigin:  testDashboard,
			wantExposed: true,
		},
		{
			name:        "dashboard preflight",
			method:      http.MethodOptions,
			origin:      testDashboard,
			wantStatus:  http.StatusNoContent,
			wantOrigin:  testDashboard,
			wantMethods: allowed,
			wantHeaders: headers,
			wantMaxAge:  "600",
		},
		{
			name:        "same origin",
			method:      http.MethodGet,
			wantStatus:  http.StatusOK,
			wantReached: true,
		},
		{
			name:          "foreign GET",
			method:        http.MethodGet,
			origin:        "https://evil.example.com",
			wantStatus:    http.StatusForbidden,
			wantErrorBody: true,
		},
		{
			name:          "foreign preflight",
			method:        http.MethodOptions,
			origin:        "https://evil.example.com",
			wantStatus:    http.StatusForbidden,
			wantErrorBody: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := 0
			handler := corsHandler(LeaderboardCORSConfig([]string{testDashboard}), &reached)

			req := httptest.NewRequest(tt.method, "/api/v1/combined-view", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if (reached == 1) != tt.wantReached {
				t.Errorf("expected handler reached %v, got %d calls", tt.wantReached, reached)
			}

			h := rr.Header()
			if got := h.Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("expected Access-Control-Allow-Origin %q, got %q", tt.wantOrigin, got)
			}
			if got := h.Get("Access-Control-Allow-Methods"); got != tt.wantMethods {
				t.Errorf("expected Access-Control-Allow-Methods %q, got %q", tt.wantMethods, got)
			}
			if got := h.Get("Access-Control-Allow-Headers"); got != tt.wantHeaders {
				t.Errorf("expected Access-Control-Allow-Headers %q, got %q", tt.wantHeaders, got)
			}
			if got := h.Get("Access-Control-Max-Age"); got != tt.wantMaxAge {
				t.Errorf("expected Access-Control-Max-Age %q, got %q", tt.wantMaxAge, got)
			}
			if got := h.Get("Access-Control-Allow-Credentials"); got != "" {
				t.Errorf("expected no credentials header, got %q", got)
			}

			exposed := h.Get("Access-Control-Expose-Headers")
			if tt.wantExposed {
				for _, name := range []string{RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
					if !strings.Contains(exposed, name) {
						t.Errorf("expected %s to be exposed, got %q", name, exposed)
					}
				}
			} else if exposed != "" {
				t.Errorf("expected no Access-Control-Expose-Headers, got %q", exposed)
			}

			if tt.wantOrigin != "" && h.Get("Vary") != "Origin" {
				t.Errorf("expected Vary Origin, got %q", h.Get("Vary"))
			}
			if tt.wantErrorBody {
				if got := h.Get("Content-Type"); got != "application/json" {
					t.Errorf("expected JSON content type, got %q", got)
				}
				if !strings.Contains(rr.Body.String(), `"code":"origin_not_allowed"`) {
					t.Errorf("expected origin_not_allowed envelope, got %s", rr.Body.String())
				}
			}
		})
	}
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	reached := 0
	handler := corsHandler(LeaderboardCORSConfig(nil), &reached)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/baselines", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if reached != 1 || rr.Code != http.StatusOK {
		t.Errorf("expected the request to pass through, got status %d and %d calls", rr.Code, reached)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS headers, got Access-Control-Allow-Origin %q", got)
	}
}

func TestNewCORSPolicy_Origins(t *testing.T) {
	tests := []struct {
		name     string
		origins  []string
		expected []string
	}{
		{"exact", []string{testDashboard}, []string{testDashboard}},
		{"trimmed", []string{"  " + testDashboard + " "}, []string{testDashboard}},
		{"blank entries dropped", []string{"", " ", testDashboard}, []string{testDashboard}},
		{"staging and production", []string{testDashboard, "https://staging.leaderboard.example.org"}, []string{testDashboard, "https://staging.leaderboard.example.org"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newCORSPolicy(CORSConfig{AllowedOrigins: tt.origins})
			if len(p.origins) != len(tt.expected) {
				t.Errorf("expected %d origins, got %d: %v", len(tt.expected), len(p.origins), p.origins)
			}
			for _, origin := range tt.expected {
				if _, ok := p.origins[origin]; !ok {
					t.Errorf("expected origin %q to be allowed", origin)
				}
			}
		})
	}
}

func TestCORS_Credentials(t *testing.T) {
	cfg := LeaderboardCORSConfig([]string{testDashboard})
	cfg.AllowCredentials = true
	reached := 0
	handler := corsHandler(cfg, &reached)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/llms", nil)
	req.Header.Set("Origin", testDashboard)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("expected Access-Control-Allow-Credentials true, got %q", got)
	}
}
