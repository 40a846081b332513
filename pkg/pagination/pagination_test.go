package pagination

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"2024-03-05T10:15:30Z", time.Date(2024, 3, 5, 10, 15, 30, 0, time.UTC)},
		{"2024-03-05T10:15:30.123456789Z", time.Date(2024, 3, 5, 10, 15, 30, 123456789, time.UTC)},
		{"2024-03-05T16:15:30+06:00", time.Date(2024, 3, 5, 10, 15, 30, 0, time.UTC)},
		{"2024-03-05T16:15:30 06:00", time.Date(2024, 3, 5, 10, 15, 30, 0, time.UTC)},
		{"2024-03-05T16:15:30.000+0600", time.Date(2024, 3, 5, 10, 15, 30, 0, time.UTC)},
		{"2024-03-05 10:15:30", time.Date(2024, 3, 5, 10, 15, 30, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if err != nil {
			t.Errorf("ParseDate(%q) error: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"yesterday", "2024-13-01", "05/03/2024"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q) expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestFeedFromContext(t *testing.T) {
	e := echo.New()
	def := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	f, err := FeedFromContext(e.NewContext(req, httptest.NewRecorder()), def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.UpdatedSince.Equal(def) || f.LastMarker != "" {
		t.Errorf("expected defaults, got %+v", f)
	}

	req = httptest.NewRequest(http.MethodGet, "/?updatedSince=2023-12-31&lastMarker=abc", nil)
	f, err = FeedFromContext(e.NewContext(req, httptest.NewRecorder()), def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.UpdatedSince.Year() != 2023 || f.LastMarker != "abc" {
		t.Errorf("unexpected feed params: %+v", f)
	}

	req = httptest.NewRequest(http.MethodGet, "/?updatedSince=soon", nil)
	if _, err := FeedFromContext(e.NewContext(req, httptest.NewRecorder()), def); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}

func TestFeedURL(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/catchments/3026/encounters?updatedSince=2024-01-01", nil)
	req.Host = "shr.example.org"
	c := e.NewContext(req, httptest.NewRecorder())

	since := time.Date(2024, 3, 5, 16, 15, 30, 0, time.FixedZone("BST", 6*3600))
	raw := FeedURL(c, since, "0190-marker")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	if u.Scheme != "http" || u.Host != "shr.example.org" || u.Path != "/catchments/3026/encounters" {
		t.Errorf("unexpected url %q", raw)
	}
	if got := u.Query().Get(UpdatedSinceParam); got != "2024-03-05T10:15:30Z" {
		t.Errorf("unexpected updatedSince %q", got)
	}
	if got := u.Query().Get(LastMarkerParam); got != "0190-marker" {
		t.Errorf("unexpected lastMarker %q", got)
	}

	if got := FeedURL(c, time.Time{}, ""); got != "http://shr.example.org/catchments/3026/encounters" {
		t.Errorf("expected bare url, got %q", got)
	}
}

func TestNewFeedResponse(t *testing.T) {
	r := NewFeedResponse[string]("http://x/feed", nil)
	if r.Entries == nil || len(r.Entries) != 0 {
		t.Errorf("expected empty non-nil entries, got %v", r.Entries)
	}
	if r.Author != FeedAuthor || r.Title != FeedTitle {
		t.Errorf("unexpected header %+v", r)
	}
}
