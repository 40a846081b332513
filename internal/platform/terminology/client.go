package terminology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnavailable wraps every failure to obtain an answer from the registry:
// transport errors, timeouts and unexpected status codes. It never means the
// code itself is invalid.
var ErrUnavailable = errors.New("terminology service unavailable")

// Verifier checks a single code against the registry.
type Verifier interface {
	Verify(ctx context.Context, kind Kind, url, code string) (bool, error)
}

type ClientConfig struct {
	ClientID          string
	AuthToken         string
	RequestsPerSecond float64
	BurstSize         int
	HTTPClient        *http.Client
}

// Client verifies codes over HTTP against the terminology registry. Calls are
// throttled client-side so a burst of large bundles cannot flood the
// registry.
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

// Verify fetches url and decides whether code is valid for it. A 404 means
// the code or set is unknown and reports false with no error.
func (c *Client) Verify(ctx context.Context, kind Kind, url, code string) (bool, error) {
	body, found, err := c.get(ctx, url)
	if err != nil || !found {
		return false, err
	}
	switch kind {
	case KindCode:
		return fieldEquals(body, "code", code)
	case KindUUID:
		return fieldEquals(body, "uuid", code)
	case KindValueSet:
		return valueSetContains(body, code)
	case KindMedication:
		return true, nil
	default:
		return false, fmt.Errorf("unsupported verification kind %q", kind)
	}
}

func (c *Client) get(ctx context.Context, url string) ([]byte, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("building request for %s: %w", url, err)
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
		return nil, false, fmt.Errorf("%w: GET %s: %v", ErrUnavailable, url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("%w: GET %s returned status %d", ErrUnavailable, url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading %s: %v", ErrUnavailable, url, err)
	}
	return body, true, nil
}

func fieldEquals(body []byte, field, code string) (bool, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return false, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	got, _ := doc[field].(string)
	return got != "" && got == code, nil
}

type concept struct {
	Code    string    `json:"code"`
	Concept []concept `json:"concept,omitempty"`
}

type valueSet struct {
	Concept    []concept `json:"concept"`
	CodeSystem *struct {
		Concept []concept `json:"concept"`
	} `json:"codeSystem"`
	Compose *struct {
		Include []struct {
			Concept []concept `json:"concept"`
		} `json:"include"`
	} `json:"compose"`
	Expansion *struct {
		Contains []concept `json:"contains"`
	} `json:"expansion"`
}

// valueSetContains looks for code among the concepts of a ValueSet,
// including nested concept hierarchies.
func valueSetContains(body []byte, code string) (bool, error) {
	var vs valueSet
	if err := json.Unmarshal(body, &vs); err != nil {
		return false, fmt.Errorf("%w: decoding value set: %v", ErrUnavailable, err)
	}
	lists := [][]concept{vs.Concept}
	if vs.CodeSystem != nil {
		lists = append(lists, vs.CodeSystem.Concept)
	}
	if vs.Compose != nil {
		for _, inc := range vs.Compose.Include {
			lists = append(lists, inc.Concept)
		}
	}
	if vs.Expansion != nil {
		lists = append(lists, vs.Expansion.Contains)
	}
	for _, l := range lists {
		if conceptsContain(l, code) {
			return true, nil
		}
	}
	return false, nil
}

func conceptsContain(cs []concept, code string) bool {
	for _, c := range cs {
		if strings.EqualFold(c.Code, code) || conceptsContain(c.Concept, code) {
			return true
		}
	}
	return false
}
