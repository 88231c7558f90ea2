package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// TestRequestIDMiddleware_GeneratesID はリクエストIDが無い場合にUUIDを採番することを検証する。
func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var ctxID string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	header := w.Header().Get(HeaderRequestID)
	if _, err := uuid.Parse(header); err != nil {
		t.Errorf("X-Request-Id = %q はUUIDではありません: %v", header, err)
	}
	if ctxID != header {
		t.Errorf("context request id = %q, want %q", ctxID, header)
	}
}

// TestRequestIDMiddleware_PropagatesIncoming は受信したリクエストIDを引き継ぐことを検証する。
func TestRequestIDMiddleware_PropagatesIncoming(t *testing.T) {
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderRequestID); got != "req-abc" {
		t.Errorf("X-Request-Id = %q, want %q", got, "req-abc")
	}
}

// TestRequestIDMiddleware_RejectsOversizedID は長すぎるIDを採番し直すことを検証する。
func TestRequestIDMiddleware_RejectsOversizedID(t *testing.T) {
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 200))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderRequestID); len(got) != 36 {
		t.Errorf("X-Request-Id = %q, want a fresh UUID", got)
	}
}
