package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	UpdatedSinceParam = "updatedSince"
	LastMarkerParam   = "lastMarker"

	FeedAuthor = "FreeSHR"
	FeedTitle  = "Encounters"
)

// ErrInvalidDate is returned for an updatedSince value in none of the
// accepted layouts.
var ErrInvalidDate = errors.New("invalid updatedSince date")

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Feed holds the cursor parameters of a feed request.
type Feed struct {
	UpdatedSince time.Time
	LastMarker   string
}

// ParseDate accepts RFC 3339 timestamps with or without fractional seconds,
// a few common variants, and plain dates. A '+' in the offset that arrived
// decoded as a space is restored. Values without a zone are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	candidates := []string{s}
	if i := strings.LastIndexByte(s, ' '); i > len("2006-01-02") {
		candidates = append(candidates, s[:i]+"+"+s[i+1:])
	}
	for _, v := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FeedFromContext reads updatedSince and lastMarker from the query string.
// A missing updatedSince falls back to defaultSince.
func FeedFromContext(c echo.Context, defaultSince time.Time) (Feed, error) {
	f := Feed{
		UpdatedSince: defaultSince,
		LastMarker:   strings.TrimSpace(c.QueryParam(LastMarkerParam)),
	}
	if raw := c.QueryParam(UpdatedSinceParam); strings.TrimSpace(raw) != "" {
		t, err := ParseDate(raw)
		if err != nil {
			return Feed{}, err
		}
		f.UpdatedSince = t
	}
	return f, nil
}

// FeedURL returns the absolute URL of the request path with the feed cursor
// as its query. A zero since or blank marker is omitted.
func FeedURL(c echo.Context, since time.Time, marker string) string {
	req := c.Request()
	u := url.URL{
		Scheme: c.Scheme(),
		Host:   req.Host,
		Path:   req.URL.Path,
	}
	q := url.Values{}
	if !since.IsZero() {
		q.Set(UpdatedSinceParam, since.UTC().Format(time.RFC3339Nano))
	}
	if marker != "" {
		q.Set(LastMarkerParam, marker)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// FeedResponse is the JSON page shape shared by the encounter feeds.
type FeedResponse[T any] struct {
	FeedURL string `json:"feedUrl"`
	Author  string `json:"author"`
	Title   string `json:"title"`
	Entries []T    `json:"entries"`
	NextURL string `json:"nextUrl,omitempty"`
	PrevURL string `json:"prevUrl,omitempty"`
}

func NewFeedResponse[T any](feedURL string, entries []T) *FeedResponse[T] {
	if entries == nil {
		entries = []T{}
	}
	return &FeedResponse[T]{
		FeedURL: feedURL,
		Author:  FeedAuthor,
		Title:   FeedTitle,
		Entries: entries,
	}
}
