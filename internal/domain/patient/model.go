package patient

import (
	"errors"
	"strings"
	"time"

	"github.com/shr/shr/internal/platform/fhir"
)

var (
	// ErrNotFound is returned when neither the local store nor the master
	// client index knows the health id.
	ErrNotFound = errors.New("patient not found")

	// ErrUnavailable marks a master client index failure other than a miss.
	ErrUnavailable = errors.New("patient registry unavailable")
)

// Patient is the locally cached view of a master client index record. Only the
// fields that drive access decisions are kept.
type Patient struct {
	HealthID        string               `json:"healthId"`
	Confidentiality fhir.Confidentiality `json:"confidentiality"`
	Address         Address              `json:"address"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// Catchment returns the patient's catchment code.
func (p *Patient) Catchment() string {
	return p.Address.Catchment()
}

// Address is the present address of a patient, expressed as administrative
// unit ids from division down to ward.
type Address struct {
	DivisionID         string `json:"division_id"`
	DistrictID         string `json:"district_id"`
	UpazilaID          string `json:"upazila_id"`
	CityCorporationID  string `json:"city_corporation_id,omitempty"`
	UnionOrUrbanWardID string `json:"union_or_urban_ward_id,omitempty"`
}

// Catchment concatenates the unit ids in hierarchy order, stopping at the
// first missing level.
func (a Address) Catchment() string {
	var b strings.Builder
	for _, id := range []string{a.DivisionID, a.DistrictID, a.UpazilaID, a.CityCorporationID, a.UnionOrUrbanWardID} {
		id = strings.TrimSpace(id)
		if id == "" {
			break
		}
		b.WriteString(id)
	}
	return b.String()
}

// AddressFromCatchment splits a stored catchment code back into two-digit
// unit ids.
func AddressFromCatchment(code string) Address {
	var parts [5]string
	for i := range parts {
		if len(code) < 2 {
			break
		}
		parts[i], code = code[:2], code[2:]
	}
	return Address{
		DivisionID:         parts[0],
		DistrictID:         parts[1],
		UpazilaID:          parts[2],
		CityCorporationID:  parts[3],
		UnionOrUrbanWardID: parts[4],
	}
}
