package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnavailable wraps every failure to get an answer from the provider
// registry. It never means the provider is unknown.
var ErrUnavailable = errors.New("provider registry unavailable")

type ClientConfig struct {
	ClientID          string
	AuthToken         string
	RequestsPerSecond float64
	BurstSize         int
	HTTPClient        *http.Client
}

// Client looks up provider references over HTTP. Lookups share one limiter
// so a bundle naming many providers cannot flood the registry.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	clientID  string
	authToken string
}

func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:      hc,
		limiter:   rate.NewLimiter(limit, burst),
		clientID:  cfg.ClientID,
		authToken: cfg.AuthToken,
	}
}

// Exists fetches the provider resource at url. 200 means the provider is
// registered and 404 that it is not; anything else is ErrUnavailable.
func (c *Client) Exists(ctx context.Context, url string) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.clientID != "" {
		req.Header.Set("client_id", c.clientID)
	}
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: GET %s: %v", ErrUnavailable, url, err)
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: GET %s returned status %d", ErrUnavailable, url, resp.StatusCode)
	}
}
