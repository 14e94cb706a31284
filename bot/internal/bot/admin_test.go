package bot

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestAdminRouter(t *testing.T) {
	var ready atomic.Bool
	router := newAdminRouter(&ready, slog.New(slog.NewTextHandler(io.Discard, nil)))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/health"); rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}
	if rec := get("/readiness"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readiness before registration = %d, want 503", rec.Code)
	}

	ready.Store(true)
	if rec := get("/readiness"); rec.Code != http.StatusOK {
		t.Errorf("/readiness after registration = %d, want 200", rec.Code)
	}

	rec := get("/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("/metrics does not expose the default registry")
	}

	if rec := get("/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("/nope status = %d, want 404", rec.Code)
	}
}
