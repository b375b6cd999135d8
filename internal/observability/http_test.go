package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTraceMiddlewareGeneratesAndPropagatesID(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if seen == "" {
		t.Fatal("trace id missing from context")
	}
	if got := rr.Header().Get("X-Trace-ID"); got != seen {
		t.Fatalf("response header trace id = %q, context = %q", got, seen)
	}
}

func TestTraceMiddlewareKeepsIncomingID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Trace-ID"); got != "trace-123" {
		t.Fatalf("trace id = %q", got)
	}
}

func TestRecoveryMiddlewareReturns500WithMessage(t *testing.T) {
	h := RecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("stage blew up")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/asks", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "stage blew up") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}
