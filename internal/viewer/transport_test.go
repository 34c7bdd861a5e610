package viewer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"netmap/internal/mapview"
)

func TestHTTPTransport_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(zerolog.Nop(), TransportOptions{BaseURL: srv.URL, Backoff: time.Millisecond})
	err := tr.UpdatePosition(context.Background(), mapview.MapView{MapID: "main"}, "r1", mapview.Position{X: 1, Y: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestHTTPTransport_GivesUpAfterMaxAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(zerolog.Nop(), TransportOptions{BaseURL: srv.URL, Backoff: time.Millisecond, MaxAttempts: 3})
	err := tr.UpdatePosition(context.Background(), mapview.MapView{}, "r1", mapview.Position{})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestHTTPTransport_ClientErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"validation_failed","message":"x is not an integer"}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(zerolog.Nop(), TransportOptions{BaseURL: srv.URL, Backoff: time.Millisecond})
	err := tr.UpdatePosition(context.Background(), mapview.MapView{MapID: "main"}, "r1", mapview.Position{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Message != "x is not an integer" {
		t.Fatalf("expected envelope message, got %q", se.Message)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestHTTPTransport_RejectsReservedIdentifierWithoutRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(zerolog.Nop(), TransportOptions{BaseURL: srv.URL})
	err := tr.UpdatePosition(context.Background(), mapview.MapView{}, "a__SLASH__b", mapview.Position{})
	if !errors.Is(err, mapview.ErrReservedPlaceholder) {
		t.Fatalf("expected ErrReservedPlaceholder, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no request")
	}
}

func TestHTTPTransport_EscapesNodeID(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(zerolog.Nop(), TransportOptions{BaseURL: srv.URL})
	if err := tr.UpdatePosition(context.Background(), mapview.MapView{MapID: "main"}, "10.0.0.0/24", mapview.Position{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/update/main/10.0.0.0__SLASH__24" {
		t.Fatalf("unexpected request path %q", path)
	}
}

func TestHTTPTransport_ListNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/maps/lab/nodes" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"map":"lab","routers":[{"id":"10.0.0.1","label":"core","pos":"1,2"}],"networks":[{"id":"10.0.0.0/24"}]}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(zerolog.Nop(), TransportOptions{BaseURL: srv.URL})
	got, err := tr.ListNodes(context.Background(), "lab")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := NodeList{
		Map:      "lab",
		Routers:  []Option{{ID: "10.0.0.1", Label: "core", Pos: "1,2"}},
		Networks: []Option{{ID: "10.0.0.0/24"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("node list mismatch (-want +got):\n%s", diff)
	}
}

func TestBackoffDuration(t *testing.T) {
	base := 100 * time.Millisecond
	if got := backoffDuration(base, 0); got != base {
		t.Fatalf("expected base, got %v", got)
	}
	if got := backoffDuration(base, 2); got != 400*time.Millisecond {
		t.Fatalf("expected 400ms, got %v", got)
	}
	if got := backoffDuration(base, 20); got != 3200*time.Millisecond {
		t.Fatalf("expected capped exponent, got %v", got)
	}
	if got := backoffDuration(time.Second, 5); got != 5*time.Second {
		t.Fatalf("expected 5s cap, got %v", got)
	}
}
