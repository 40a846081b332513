package encounter

import (
	"encoding/json"
	"time"

	"github.com/shr/shr/internal/platform/access"
	"github.com/shr/shr/internal/platform/fhir"
)

// Requester is the facility and provider on whose behalf a document was
// written.
type Requester struct {
	FacilityID string `json:"facilityId,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
}

// RequesterFrom returns the facility and provider ids the caller acts for.
func RequesterFrom(id access.Identity) Requester {
	return Requester{FacilityID: id.FacilityID(), ProviderID: id.ProviderID()}
}

// Document is an accepted encounter bundle. It is populated once on
// acceptance and never modified afterwards.
type Document struct {
	ID                       string               `json:"encounterId"`
	HealthID                 string               `json:"healthId"`
	Catchment                string               `json:"-"`
	Content                  json.RawMessage      `json:"content"`
	ReceivedAt               time.Time            `json:"receivedAt"`
	UpdatedAt                time.Time            `json:"updatedAt"`
	PatientConfidentiality   fhir.Confidentiality `json:"patientConfidentiality"`
	EncounterConfidentiality fhir.Confidentiality `json:"encounterConfidentiality"`
	CreatedBy                Requester            `json:"createdBy"`
	UpdatedBy                Requester            `json:"updatedBy"`
}

// Confidential reports whether either the patient or the document is
// classified above Normal.
func (d *Document) Confidential() bool {
	return d.PatientConfidentiality.Confidential() || d.EncounterConfidentiality.Confidential()
}

// Event is a Document positioned in the feeds. SortKey is a time-ordered
// UUID assigned on acceptance and doubles as the pagination marker.
type Event struct {
	SortKey string `json:"id"`
	Document
}

func (e *Event) Marker() string { return e.SortKey }

func (e *Event) Timestamp() time.Time { return e.ReceivedAt }

func (e *Event) Confidentialities() (patient, document fhir.Confidentiality) {
	return e.PatientConfidentiality, e.EncounterConfidentiality
}
