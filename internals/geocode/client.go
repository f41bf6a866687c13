// Package geocode resolves free-text addresses to coordinates and fetches
// driving routes from an OpenRouteService-compatible API. Results are
// memoized in memory and optionally persisted in a SQLite cache.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/feastline/livetrack/internals/domain"
)

var ErrNoResults = errors.New("no geocode results")

// Route is a driving route between two coordinates, for map display.
type Route struct {
	Coordinates     []domain.LatLng `json:"coordinates"`
	DistanceMeters  float64         `json:"distance_m"`
	DurationSeconds float64         `json:"duration_s"`
}

type Option func(*Client)

// WithBaseURL points the client at a different API host (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithCache attaches a persistent geocode cache. A nil cache is tolerated.
func WithCache(cache *Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// Client is safe for concurrent use.
type Client struct {
	session *http.Client
	apiKey  string
	baseURL string
	profile string
	cache   *Cache

	mu   sync.Mutex
	memo map[string]domain.LatLng
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("geocode: api key is empty")
	}

	c := &Client{
		session: &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		baseURL: "https://api.openrouteservice.org",
		profile: "driving-car",
		memo:    make(map[string]domain.LatLng),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// normalize ensures consistent cache keys by collapsing whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Geocode resolves an address to coordinates, consulting the in-memory memo
// and the persistent cache before calling the API.
func (c *Client) Geocode(ctx context.Context, address string) (domain.LatLng, error) {
	addr := normalize(address)
	if addr == "" {
		return domain.LatLng{}, errors.New("geocode: address must be non-empty")
	}

	c.mu.Lock()
	if p, ok := c.memo[addr]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	if c.cache != nil {
		if p, ok, err := c.cache.Get(ctx, addr); err == nil && ok {
			c.remember(addr, p)
			return p, nil
		}
	}

	p, err := c.fetchGeocode(ctx, addr)
	if err != nil {
		return domain.LatLng{}, fmt.Errorf("geocode %q: %w", addr, err)
	}

	c.remember(addr, p)
	if c.cache != nil {
		// Cache write failures are non-fatal.
		_ = c.cache.Put(ctx, addr, p)
	}
	return p, nil
}

func (c *Client) remember(addr string, p domain.LatLng) {
	c.mu.Lock()
	c.memo[addr] = p
	c.mu.Unlock()
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func (c *Client) fetchGeocode(ctx context.Context, addr string) (domain.LatLng, error) {
	endpoint := c.baseURL + "/geocode/search"

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := c.newRequest(ctx, http.MethodGet, endpoint)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("text", addr)
		q.Set("size", "1")
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return domain.LatLng{}, err
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.LatLng{}, fmt.Errorf("decode geocode response: %w", err)
	}

	if len(decoded.Features) == 0 {
		return domain.LatLng{}, ErrNoResults
	}
	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return domain.LatLng{}, errors.New("invalid coordinate format")
	}

	// The API returns [lng, lat].
	return domain.LatLng{Lat: coords[1], Lng: coords[0]}, nil
}

type directionsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

// Directions fetches a driving route between two coordinates. The route is
// only used to draw a polyline; it does not feed the tracking simulation.
func (c *Client) Directions(ctx context.Context, origin, dest domain.LatLng) (*Route, error) {
	endpoint := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, c.profile)

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := c.newRequest(ctx, http.MethodGet, endpoint)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("start", fmt.Sprintf("%f,%f", origin.Lng, origin.Lat))
		q.Set("end", fmt.Sprintf("%f,%f", dest.Lng, dest.Lat))
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("directions: %w", err)
	}
	defer resp.Body.Close()

	var decoded directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode directions response: %w", err)
	}
	if len(decoded.Features) == 0 {
		return nil, errors.New("directions: no routes")
	}

	f := decoded.Features[0]
	route := &Route{
		Coordinates:     make([]domain.LatLng, 0, len(f.Geometry.Coordinates)),
		DistanceMeters:  f.Properties.Summary.Distance,
		DurationSeconds: f.Properties.Summary.Duration,
	}
	for _, c := range f.Geometry.Coordinates {
		if len(c) != 2 {
			return nil, errors.New("directions: invalid coordinate format")
		}
		route.Coordinates = append(route.Coordinates, domain.LatLng{Lat: c[1], Lng: c[0]})
	}
	return route, nil
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// doWithRetry retries transient failures (network errors, 429/5xx responses)
// using exponential backoff while respecting context cancellation.
func (c *Client) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	const maxAttempts = 4
	backoff := 200 * time.Millisecond

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}

		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}

		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}

		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
	}

	return nil, lastErr
}
