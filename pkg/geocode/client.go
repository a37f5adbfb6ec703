// Package geocode resolves street addresses to coordinates via the Kakao local search API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes addresses.
type Client interface {
	// Geocode resolves a single free-form address. An address with no match
	// returns a Result with Matched false and a nil error.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "kakao"
	Matched   bool
}

// Option configures the geocoder.
type Option func(*kakaoClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(k *kakaoClient) {
		if u != "" {
			k.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(k *kakaoClient) {
		k.httpClient = hc
	}
}

// WithRateLimit caps outbound requests per second. Zero or negative disables limiting.
func WithRateLimit(rps float64) Option {
	return func(k *kakaoClient) {
		if rps <= 0 {
			k.limiter = nil
			return
		}
		k.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
