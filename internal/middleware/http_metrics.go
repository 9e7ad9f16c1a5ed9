package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// unmatchedRoute labels requests that no registered route served.
const unmatchedRoute = "unmatched"

// knownRoutes are the portal's fixed routes, used before the mux has
// resolved a pattern (for example when naming a span).
var knownRoutes = map[string]bool{
	"/":                     true,
	"/health":               true,
	"/ready":                true,
	"/metrics":              true,
	"/admin/archive/status": true,
	"/admin/archive/test":   true,
}

// routeLabel converts a request to a bounded route label. It prefers the
// pattern recorded by http.ServeMux ("GET /admin/archive/status" becomes
// "/admin/archive/status") so dynamic segments never reach metric labels.
func routeLabel(r *http.Request) string {
	if p := r.Pattern; p != "" {
		if _, path, ok := strings.Cut(p, " "); ok {
			p = path
		}
		return p
	}
	if knownRoutes[r.URL.Path] {
		return r.URL.Path
	}
	return unmatchedRoute
}

func isProbePath(path string) bool {
	return path == "/health" || path == "/ready"
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	mrw.wroteHeader = true
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// newMetricsResponseWriter creates a new metricsResponseWriter with default 200 status.
func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, request/response sizes, and request counts.
// Probe endpoints (/health, /ready) are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProbePath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			next.ServeHTTP(mrw, r)

			// The mux records the matched pattern on r while serving.
			metrics.ObserveHTTPRequest(
				r.Method,
				routeLabel(r),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
