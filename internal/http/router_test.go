package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	httpH "github.com/yungbote/roomforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/roomforge-backend/internal/http/middleware"
)

func TestRouterHealthAndRequestID(t *testing.T) {
	r := NewRouter(RouterConfig{HealthHandler: httpH.NewHealthHandler(nil)})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/healthcheck", nil))
	if w.Code != nethttp.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthcheck: code=%d body=%q", w.Code, w.Body.String())
	}
	if w.Header().Get(httpMW.RequestIDHeader) == "" {
		t.Fatalf("missing %s header", httpMW.RequestIDHeader)
	}

	req := httptest.NewRequest(nethttp.MethodGet, "/healthcheck", nil)
	req.Header.Set(httpMW.RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(httpMW.RequestIDHeader); got != "req-42" {
		t.Fatalf("request id echo: got=%q", got)
	}
}

func TestRouterWithoutMetricsHasNoMetricsRoute(t *testing.T) {
	r := NewRouter(RouterConfig{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	if w.Code != nethttp.StatusNotFound {
		t.Fatalf("metrics: want=404 got=%d", w.Code)
	}
}
