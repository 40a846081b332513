package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Refresher pulls the encounter type list from the terminology registry and
// writes it to a Store.
type Refresher struct {
	store  Store
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewRefresher(store Store, url string, logger zerolog.Logger) *Refresher {
	return &Refresher{
		store:  store,
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Refresh replaces the stored list and returns how many types were written.
// The stored list is left untouched if the registry cannot be read.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	types, err := r.fetch(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.store.ReplaceEncounterTypes(ctx, types); err != nil {
		return 0, err
	}
	r.logger.Info().Int("count", len(types)).Str("url", r.url).Msg("encounter types refreshed")
	return len(types), nil
}

// Run refreshes on every tick until ctx is cancelled. Failures are logged
// and the previous list stays in place.
func (r *Refresher) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := r.Refresh(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("encounter type refresh failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// The registry serves either a bare JSON array of names or a ValueSet-like
// object whose concepts carry the name as display.
type typeList struct {
	Concept []struct {
		Code    string `json:"code"`
		Display string `json:"display"`
	} `json:"concept"`
}

func (r *Refresher) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrUnavailable, r.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s returned status %d", ErrUnavailable, r.url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}

	var names []string
	if err := json.Unmarshal(body, &names); err == nil {
		return names, nil
	}
	var list typeList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decoding encounter types: %w", err)
	}
	for _, c := range list.Concept {
		if c.Display != "" {
			names = append(names, c.Display)
		} else if c.Code != "" {
			names = append(names, c.Code)
		}
	}
	return names, nil
}
