package geocode

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/feastline/livetrack/internals/domain"
)

const geocodeBody = `{"features":[{"geometry":{"coordinates":[77.2090,28.6139]}}]}`

const directionsBody = `{"features":[{
	"geometry":{"coordinates":[[77.2090,28.6139],[77.2140,28.6189],[77.2190,28.6239]]},
	"properties":{"summary":{"distance":1850.4,"duration":420.5}}
}]}`

func testServer(t *testing.T, calls *atomic.Int64, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGeocode(t *testing.T) {
	c := testServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geocode/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "test-key" {
			t.Error("missing api key header")
		}
		if r.URL.Query().Get("text") != "Connaught Place, Delhi" {
			t.Errorf("text = %q", r.URL.Query().Get("text"))
		}
		w.Write([]byte(geocodeBody))
	})

	got, err := c.Geocode(context.Background(), "  Connaught   Place, Delhi ")
	if err != nil {
		t.Fatal(err)
	}
	if got.Lat != 28.6139 || got.Lng != 77.2090 {
		t.Fatalf("coords = %+v", got)
	}
}

func TestGeocodeMemoized(t *testing.T) {
	var calls atomic.Int64
	c := testServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geocodeBody))
	})

	for i := 0; i < 3; i++ {
		if _, err := c.Geocode(context.Background(), "Connaught Place"); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("api calls = %d, want 1", calls.Load())
	}
}

func TestGeocodeNoResults(t *testing.T) {
	c := testServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features":[]}`))
	})

	_, err := c.Geocode(context.Background(), "nowhere at all")
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
}

func TestGeocodeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	c := testServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		if calls.Load() < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(geocodeBody))
	})

	if _, err := c.Geocode(context.Background(), "Connaught Place"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Fatalf("api calls = %d, want 3", calls.Load())
	}
}

func TestGeocodeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	c := testServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := c.Geocode(context.Background(), "Connaught Place"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("api calls = %d, want 1", calls.Load())
	}
}

func TestDirections(t *testing.T) {
	c := testServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/directions/driving-car" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(directionsBody))
	})

	route, err := c.Directions(context.Background(),
		domain.LatLng{Lat: 28.6139, Lng: 77.2090},
		domain.LatLng{Lat: 28.6239, Lng: 77.2190},
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(route.Coordinates) != 3 {
		t.Fatalf("coordinates = %d, want 3", len(route.Coordinates))
	}
	// [lng, lat] wire order flipped to lat/lng.
	if route.Coordinates[0].Lat != 28.6139 || route.Coordinates[0].Lng != 77.2090 {
		t.Fatalf("first coordinate = %+v", route.Coordinates[0])
	}
	if route.DistanceMeters != 1850.4 || route.DurationSeconds != 420.5 {
		t.Fatalf("summary = %f m / %f s", route.DistanceMeters, route.DurationSeconds)
	}
}

func TestCachePersistsAcrossClients(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cache := NewCache(db)
	if err := cache.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(geocodeBody))
	}))
	defer srv.Close()

	first, err := NewClient("test-key", WithBaseURL(srv.URL), WithCache(cache))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Geocode(context.Background(), "Connaught Place"); err != nil {
		t.Fatal(err)
	}

	// A fresh client with an empty memo hits the persistent cache, not the API.
	second, err := NewClient("test-key", WithBaseURL(srv.URL), WithCache(cache))
	if err != nil {
		t.Fatal(err)
	}
	got, err := second.Geocode(context.Background(), "Connaught Place")
	if err != nil {
		t.Fatal(err)
	}
	if got.Lat != 28.6139 {
		t.Fatalf("coords = %+v", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("api calls = %d, want 1", calls.Load())
	}
}

func TestCacheGetMiss(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cache := NewCache(db)
	if err := cache.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, ok, err := cache.Get(context.Background(), "never stored")
	if err != nil || ok {
		t.Fatalf("miss gave ok=%v err=%v", ok, err)
	}
}
