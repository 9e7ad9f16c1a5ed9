package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestInternalAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		token    string
		header   string
		wantCode int
	}{
		{name: "no token configured", token: "", header: "", wantCode: http.StatusOK},
		{name: "matching token", token: "s3cret", header: "s3cret", wantCode: http.StatusOK},
		{name: "missing header", token: "s3cret", header: "", wantCode: http.StatusForbidden},
		{name: "wrong token", token: "s3cret", header: "s3cre", wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.header != "" {
				req.Header.Set(InternalTokenHeader, tt.header)
			}
			w := httptest.NewRecorder()
			InternalAuth(tt.token)(ok).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	m.ObserveHTTPRequest(http.MethodGet, "/health", "200", 0.01, 0, 12)

	w := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), MetricHTTPRequestsTotal) {
		t.Errorf("metrics output missing %s:\n%s", MetricHTTPRequestsTotal, w.Body.String())
	}
}
