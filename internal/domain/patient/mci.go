package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shr/shr/internal/platform/fhir"
)

// Remote looks a patient up in the master client index.
type Remote interface {
	Fetch(ctx context.Context, healthID string) (*Patient, error)
}

type MCIConfig struct {
	BaseURL    string
	ClientID   string
	AuthToken  string
	HTTPClient *http.Client
}

// MCIClient reads patients from the master client index REST API at
// {BaseURL}/patients/{healthId}.
type MCIClient struct {
	baseURL   string
	clientID  string
	authToken string
	http      *http.Client
}

func NewMCIClient(cfg MCIConfig) *MCIClient {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &MCIClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		clientID:  cfg.ClientID,
		authToken: cfg.AuthToken,
		http:      hc,
	}
}

type mciPatient struct {
	HealthID       string  `json:"hid"`
	Confidential   string  `json:"confidential"`
	PresentAddress Address `json:"present_address"`
}

// Fetch returns ErrNotFound for a 404 and wraps every other failure in
// ErrUnavailable.
func (c *MCIClient) Fetch(ctx context.Context, healthID string) (*Patient, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/patients/"+url.PathEscape(healthID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
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
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	var doc mciPatient
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode patient: %v", ErrUnavailable, err)
	}

	hid := doc.HealthID
	if hid == "" {
		hid = healthID
	}
	return &Patient{
		HealthID:        hid,
		Confidentiality: confidentialityFromFlag(doc.Confidential),
		Address:         doc.PresentAddress,
	}, nil
}

// The index only flags patients as confidential or not.
func confidentialityFromFlag(flag string) fhir.Confidentiality {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "yes", "true", "y":
		return fhir.VeryRestricted
	}
	return fhir.Normal
}
