package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/portal/internal/archive"
	"github.com/onnwee/portal/internal/middleware"
)

// Archiver accepts a record for asynchronous archival. *archive.Client
// implements it.
type Archiver interface {
	Dispatch(ctx context.Context, rec archive.Record)
}

// Logger builds log records and dispatches them for archival.
type Logger struct {
	archiver Archiver
	now      func() time.Time
}

// Option customizes a Logger.
type Option func(*Logger)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// NewLogger returns a Logger that hands every record to a.
func NewLogger(a Archiver, opts ...Option) *Logger {
	l := &Logger{archiver: a, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogAccess records an access event. The only error it returns is
// ErrCallerMisuse; archival itself happens in the background.
func (l *Logger) LogAccess(ctx context.Context, in AccessInput) error {
	if err := checkCaller(l); err != nil {
		return err
	}
	l.archiver.Dispatch(ctx, in.record(l.now()))
	return nil
}

// LogAudit records an audit event. The only error it returns is
// ErrCallerMisuse.
func (l *Logger) LogAudit(ctx context.Context, in AuditInput) error {
	if err := checkCaller(l); err != nil {
		return err
	}
	l.archiver.Dispatch(ctx, in.record(l.now()))
	return nil
}

// LogAccessFromRequest records an access event for r with the given response
// status. Actor identity comes from the request context, the network address
// from X-Forwarded-For, X-Real-IP or RemoteAddr, and the request ID is added
// to the metadata.
func (l *Logger) LogAccessFromRequest(r *http.Request, statusCode int, md Metadata) error {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		merged := make(Metadata, len(md)+1)
		for k, v := range md {
			merged[k] = v
		}
		merged["requestId"] = requestID
		md = merged
	}

	return l.LogAccess(ctx, AccessInput{
		Method:          r.Method,
		Resource:        r.URL.Path,
		StatusCode:      statusCode,
		ActorID:         actor.ID,
		ActorRole:       actor.Role,
		ActorDepartment: actor.Department,
		IPAddress:       extractIPAddress(r),
		UserAgent:       r.UserAgent(),
		Metadata:        md,
	})
}

// LogAccess records an access event through the default logger.
func LogAccess(ctx context.Context, in AccessInput) error {
	return Default().LogAccess(ctx, in)
}

// LogAudit records an audit event through the default logger.
func LogAudit(ctx context.Context, in AuditInput) error {
	return Default().LogAudit(ctx, in)
}

// extractIPAddress extracts the client IP address from an HTTP request.
// It checks X-Forwarded-For, X-Real-IP, and RemoteAddr in that order.
// Any port is stripped.
func extractIPAddress(r *http.Request) string {
	// Use the first IP in the proxy chain
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return stripPort(first)
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return stripPort(xri)
	}

	return stripPort(r.RemoteAddr)
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// No port present
		return addr
	}
	return host
}
