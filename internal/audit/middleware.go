package audit

import (
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder captures the response status for the access record.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.wroteHeader {
		sr.status = code
		sr.wroteHeader = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.wroteHeader {
		sr.WriteHeader(http.StatusOK)
	}
	return sr.ResponseWriter.Write(b)
}

// Middleware records an access event for every request served by next.
// It panics if l cannot log, so a misconfigured server fails at startup
// rather than silently dropping access records.
func Middleware(l *Logger) func(http.Handler) http.Handler {
	if err := checkCaller(l); err != nil {
		panic(err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			md := Metadata{"durationMs": time.Since(start).Milliseconds()}
			if err := l.LogAccessFromRequest(r, rec.status, md); err != nil {
				slog.ErrorContext(r.Context(), "access record rejected", "error", err)
			}
		})
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}
