package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotBundle is returned when a document parses as JSON but is not a Bundle.
var ErrNotBundle = errors.New("document is not a Bundle")

// Bundle is the wire shape of a FHIR Bundle.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// Entry is a bundle entry with its resource decoded.
type Entry struct {
	FullURL  string
	Resource *Resource
}

// ID identifies the entry in issue reports: the full URL when present,
// otherwise Type/id.
func (e Entry) ID() string {
	if e.FullURL != "" {
		return e.FullURL
	}
	if e.Resource == nil {
		return ""
	}
	if e.Resource.ID == "" {
		return string(e.Resource.Type)
	}
	return string(e.Resource.Type) + "/" + e.Resource.ID
}

// ParsedBundle is an encounter bundle decoded once up front so that every
// validator reads the same immutable tree.
type ParsedBundle struct {
	ID      string
	Type    string
	Entries []Entry
}

// ParseBundle decodes raw JSON into a ParsedBundle. Entries without a
// resource are skipped.
func ParseBundle(content []byte) (*ParsedBundle, error) {
	var b Bundle
	if err := json.Unmarshal(content, &b); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}
	if b.ResourceType != "Bundle" {
		return nil, ErrNotBundle
	}
	pb := &ParsedBundle{ID: b.ID, Type: b.Type, Entries: make([]Entry, 0, len(b.Entry))}
	for i, e := range b.Entry {
		if len(e.Resource) == 0 || string(e.Resource) == "null" {
			continue
		}
		r, err := newResource(e.Resource)
		if err != nil {
			return nil, fmt.Errorf("decoding entry %d: %w", i, err)
		}
		pb.Entries = append(pb.Entries, Entry{FullURL: e.FullURL, Resource: r})
	}
	return pb, nil
}

// OfType returns the entries whose resource has the given type.
func (b *ParsedBundle) OfType(t ResourceType) []Entry {
	var out []Entry
	for _, e := range b.Entries {
		if e.Resource.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Composition returns the first Composition entry.
func (b *ParsedBundle) Composition() (Entry, bool) {
	for _, e := range b.Entries {
		if e.Resource.Type == TypeComposition {
			return e, true
		}
	}
	return Entry{}, false
}
