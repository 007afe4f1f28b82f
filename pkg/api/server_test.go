package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"multicab_router/pkg/obs"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = obs.RequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if seen == "" || w.Header().Get("X-Request-ID") != seen {
		t.Errorf("generated id %q, header %q", seen, w.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc-123" {
		t.Errorf("id = %q, want the caller's", seen)
	}
}

func TestLimitConcurrency(t *testing.T) {
	sem := make(chan struct{}, 1)
	h := limitConcurrency(sem)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	sem <- struct{}{}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusServiceUnavailable || w.Header().Get("Retry-After") != "1" {
		t.Errorf("status = %d, Retry-After = %q", w.Code, w.Header().Get("Retry-After"))
	}
}

func TestRecoverer(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestHandler(t, newPlanner(t, routeA), nil)
	w := do(t, h, "GET", "/api/v1/health", "")
	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestCORS(t *testing.T) {
	p := newPlanner(t, routeA)
	cfg := DefaultConfig(":0")
	cfg.CORSOrigins = []string{"https://rider.example"}
	h := NewRouter(cfg, NewHandlers(p, nil, NewSessionStore(p, nil, 0, 0)))

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("Origin", "https://rider.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://rider.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestSessionStore_IdleEviction(t *testing.T) {
	p := newPlanner(t, routeA)
	store := NewSessionStore(p, cityHall, 0, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	a := store.Create()
	b := store.Create()
	if a.ID() == b.ID() {
		t.Fatal("session ids collide")
	}

	now = now.Add(45 * time.Second)
	if _, ok := store.Get(a.ID()); !ok {
		t.Fatal("session a expired early")
	}

	now = now.Add(30 * time.Second)
	if n := store.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1 (only b was idle)", n)
	}
	if _, ok := store.Get(b.ID()); ok {
		t.Error("idle session b is still reachable")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := store.Get(a.ID()); ok {
		t.Error("expired session a is still reachable")
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}
}
