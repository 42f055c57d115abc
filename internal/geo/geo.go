// Package geo resolves the device position at claim time.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/virasat/internal/httpclient"
	"github.com/ppiankov/virasat/internal/model"
)

// Locator returns the current position
type Locator interface {
	Locate(ctx context.Context) (model.Coordinates, error)
}

// LocationUnavailableError reports that no usable fix could be obtained
type LocationUnavailableError struct {
	Provider string
	Err      error
}

func (e *LocationUnavailableError) Error() string {
	return fmt.Sprintf("location unavailable (%s): %v", e.Provider, e.Err)
}

func (e *LocationUnavailableError) Unwrap() error {
	return e.Err
}

var errOutOfRange = errors.New("coordinates out of range")

// StaticLocator always reports the same position
type StaticLocator struct {
	Coords model.Coordinates
}

// NewStaticLocator creates a fixed-position locator
func NewStaticLocator(lat, lon float64) *StaticLocator {
	return &StaticLocator{Coords: model.Coordinates{Latitude: lat, Longitude: lon}}
}

// Locate returns the configured position
func (s *StaticLocator) Locate(ctx context.Context) (model.Coordinates, error) {
	if !s.Coords.Valid() {
		return model.Coordinates{}, &LocationUnavailableError{Provider: "static", Err: errOutOfRange}
	}
	return s.Coords, nil
}

// ErrNotConfigured is wrapped by UnavailableLocator failures
var ErrNotConfigured = errors.New("no location provider configured; set location.provider or pass --lat/--lon")

// UnavailableLocator is used when no position source is configured. It never
// reports a position, so claims fail instead of landing at 0,0.
type UnavailableLocator struct{}

// Locate always fails
func (UnavailableLocator) Locate(ctx context.Context) (model.Coordinates, error) {
	return model.Coordinates{}, &LocationUnavailableError{Provider: "none", Err: ErrNotConfigured}
}

// DefaultIPEndpoint is the IP geolocation service queried by IPLocator
const DefaultIPEndpoint = "http://ip-api.com/json"

// IPLocator approximates the position from the public IP address
type IPLocator struct {
	endpoint string
	client   *http.Client
}

// NewIPLocator creates an IP geolocation client
func NewIPLocator(endpoint string, timeout time.Duration) *IPLocator {
	if endpoint == "" {
		endpoint = DefaultIPEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IPLocator{
		endpoint: endpoint,
		client:   httpclient.New(httpclient.Options{Timeout: timeout, MaxRedirects: 3}),
	}
}

type ipResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// Locate queries the endpoint once
func (l *IPLocator) Locate(ctx context.Context) (model.Coordinates, error) {
	coords, err := l.locate(ctx)
	if err != nil {
		return model.Coordinates{}, &LocationUnavailableError{Provider: "ip", Err: err}
	}
	return coords, nil
}

func (l *IPLocator) locate(ctx context.Context) (model.Coordinates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, nil)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return model.Coordinates{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var body ipResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Coordinates{}, fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "" && !strings.EqualFold(body.Status, "success") {
		return model.Coordinates{}, fmt.Errorf("lookup failed: %s", body.Message)
	}
	if body.Lat == nil || body.Lon == nil {
		return model.Coordinates{}, errors.New("response has no coordinates")
	}

	c := model.Coordinates{Latitude: *body.Lat, Longitude: *body.Lon}
	if !c.Valid() {
		return model.Coordinates{}, errOutOfRange
	}
	return c, nil
}

// FromConfig builds the configured locator
func FromConfig(cfg model.LocationConfig) (Locator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return UnavailableLocator{}, nil
	case "static":
		return NewStaticLocator(cfg.Latitude, cfg.Longitude), nil
	case "ip":
		return NewIPLocator(cfg.Endpoint, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported location provider: %s", cfg.Provider)
	}
}
