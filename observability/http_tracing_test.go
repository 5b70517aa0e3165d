package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTraceHandler_PassesThrough(t *testing.T) {
	handler := TraceHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("brewing"))
	}), "test")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v2/Packages", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
	if w.Body.String() != "brewing" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestTraceHandler_DefaultStatus(t *testing.T) {
	handler := TraceHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), "test")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestTraceHandler_IgnoresMalformedTraceparent(t *testing.T) {
	handler := TraceHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), "test")

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("traceparent", "not-a-trace-context")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
