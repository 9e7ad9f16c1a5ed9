package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID_GeneratesNewID(t *testing.T) {
	var capturedID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = GetRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	if _, err := uuid.Parse(capturedID); err != nil {
		t.Errorf("expected UUID request ID in context, got %q", capturedID)
	}
	if responseID := rr.Header().Get(RequestIDHeader); responseID != capturedID {
		t.Errorf("expected response header %q, got %q", capturedID, responseID)
	}
}

func TestRequestID_IncomingHeader(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		reused   bool
	}{
		{"well formed", "existing-request-id-123", true},
		{"contains space", "two words", false},
		{"control character", "id\x01", false},
		{"too long", strings.Repeat("a", maxRequestIDLength+1), false},
		{"at limit", strings.Repeat("a", maxRequestIDLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedID string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturedID = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(RequestIDHeader, tt.incoming)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if got := capturedID == tt.incoming; got != tt.reused {
				t.Errorf("reused = %v, want %v (got %q)", got, tt.reused, capturedID)
			}
			if rr.Header().Get(RequestIDHeader) != capturedID {
				t.Errorf("response header %q does not match context %q", rr.Header().Get(RequestIDHeader), capturedID)
			}
		})
	}
}

func TestGetRequestID_EmptyContextReturnsEmptyString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if requestID := GetRequestID(req.Context()); requestID != "" {
		t.Errorf("expected empty string, got %q", requestID)
	}
}
