package validation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shr/shr/internal/platform/fhir"
	"github.com/shr/shr/internal/platform/terminology"
)

const (
	refPath  = "http://mci.example.org/api/default/patients"
	healthID = "98001046534"
	trURL    = "http://tr.example.org"
)

func patientRef(hid string) map[string]interface{} {
	return map[string]interface{}{"reference": refPath + "/" + hid}
}

type bundleBuilder struct {
	entries []map[string]interface{}
}

func newBundle() *bundleBuilder { return &bundleBuilder{} }

func (b *bundleBuilder) add(id string, resource map[string]interface{}) *bundleBuilder {
	resource["id"] = id
	b.entries = append(b.entries, map[string]interface{}{
		"fullUrl":  "urn:uuid:" + id,
		"resource": resource,
	})
	return b
}

func (b *bundleBuilder) composition(subject interface{}, confidentiality string) *bundleBuilder {
	r := map[string]interface{}{"resourceType": "Composition", "status": "final"}
	if subject != nil {
		r["subject"] = subject
	}
	if confidentiality != "" {
		r["confidentiality"] = confidentiality
	}
	return b.add("comp", r)
}

func (b *bundleBuilder) encounter(id, typ string, subject interface{}) *bundleBuilder {
	r := map[string]interface{}{"resourceType": "Encounter", "status": "finished"}
	if typ != "" {
		r["type"] = []interface{}{map[string]interface{}{"text": typ}}
	}
	if subject != nil {
		r["subject"] = subject
	}
	return b.add(id, r)
}

func (b *bundleBuilder) condition(id string, subject interface{}, codings ...fhir.Coding) *bundleBuilder {
	r := map[string]interface{}{"resourceType": "Condition", "subject": subject}
	if len(codings) > 0 {
		r["code"] = map[string]interface{}{"coding": codings}
	}
	return b.add(id, r)
}

func (b *bundleBuilder) bytes(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"resourceType": "Bundle",
		"type":         "collection",
		"entry":        b.entries,
	})
	if err != nil {
		t.Fatalf("marshal bundle: %v", err)
	}
	return raw
}

func (b *bundleBuilder) document(t *testing.T, hid string) *Document {
	t.Helper()
	doc := &Document{Submission: Submission{HealthID: hid, Content: b.bytes(t)}}
	parsed, err := fhir.ParseBundle(doc.Content)
	if err != nil {
		t.Fatalf("parse bundle: %v", err)
	}
	doc.Bundle = parsed
	return doc
}

func concept(uuid string) fhir.Coding {
	return fhir.Coding{System: trURL + terminology.ConceptPattern + uuid, Code: uuid}
}

// fakeChecker answers from a map keyed by code. Codes not in the map are
// skipped.
type fakeChecker struct {
	mu       sync.Mutex
	outcomes map[string]terminology.Verdict
	seen     []string
}

func (f *fakeChecker) Check(_ context.Context, c fhir.Coding) terminology.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, c.Code)
	if v, ok := f.outcomes[c.Code]; ok {
		return v
	}
	return terminology.Verdict{Outcome: terminology.Skipped}
}

func validAll() *fakeChecker {
	return &fakeChecker{outcomes: map[string]terminology.Verdict{}}
}
