package access

import (
	"errors"
	"strings"

	"github.com/shr/shr/internal/platform/fhir"
)

// ErrDenied is returned when a caller is refused before any data is read.
var ErrDenied = errors.New("access denied")

// Decision is the outcome of DecideAccess. The zero value is Denied.
type Decision int

const (
	Denied Decision = iota
	Restricted
	Unrestricted
)

func (d Decision) String() string {
	switch d {
	case Restricted:
		return "restricted"
	case Unrestricted:
		return "unrestricted"
	default:
		return "denied"
	}
}

// Target is what a caller asks to read: a single patient or a catchment.
type Target struct {
	PatientID string
	Catchment string
}

func Patient(healthID string) Target { return Target{PatientID: healthID} }

func Catchment(code string) Target { return Target{Catchment: code} }

// DecideAccess maps an identity and a target onto an access tier. It has no
// side effects and reads nothing beyond its arguments.
func DecideAccess(id Identity, t Target) Decision {
	if t.Catchment != "" {
		return decideCatchment(id, t.Catchment)
	}
	return decidePatient(id, t.PatientID)
}

func decidePatient(id Identity, healthID string) Decision {
	if id.Has(RoleSystemAdmin) {
		return Unrestricted
	}
	if own, ok := id.PatientID(); ok && healthID != "" && own == healthID {
		return Unrestricted
	}
	if id.HasAny(RoleFacility, RoleProvider) {
		return Restricted
	}
	return Denied
}

func decideCatchment(id Identity, catchment string) Decision {
	if id.Has(RoleSystemAdmin) {
		return Unrestricted
	}
	for _, r := range id.Roles {
		if r.Kind != RoleFacility && r.Kind != RoleProvider {
			continue
		}
		for _, scope := range r.Catchments {
			if CatchmentMatches(scope, catchment) {
				return Restricted
			}
		}
	}
	return Denied
}

// CatchmentMatches reports whether a registered catchment scope and a
// requested catchment overlap: either one is a prefix of the other. Blank
// codes never match.
func CatchmentMatches(scope, requested string) bool {
	scope = strings.TrimSpace(scope)
	requested = strings.TrimSpace(requested)
	if scope == "" || requested == "" {
		return false
	}
	return strings.HasPrefix(scope, requested) || strings.HasPrefix(requested, scope)
}

// Classified is anything that carries a patient and a document
// confidentiality level.
type Classified interface {
	Confidentialities() (patient, document fhir.Confidentiality)
}

// Visible reports whether an item may be shown to a caller with the given
// decision. Unrestricted sees everything, Restricted only items where both
// levels are at most Normal, Denied nothing.
func Visible(d Decision, item Classified) bool {
	switch d {
	case Unrestricted:
		return true
	case Restricted:
		p, doc := item.Confidentialities()
		return !p.Confidential() && !doc.Confidential()
	default:
		return false
	}
}

// FilterEvents keeps the items visible under d, preserving order.
func FilterEvents[T Classified](d Decision, items []T) []T {
	if d == Unrestricted {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if Visible(d, item) {
			out = append(out, item)
		}
	}
	return out
}

// HasConfidentialPatient reports whether any item belongs to a patient whose
// own confidentiality is above Normal.
func HasConfidentialPatient[T Classified](items []T) bool {
	for _, item := range items {
		if p, _ := item.Confidentialities(); p.Confidential() {
			return true
		}
	}
	return false
}
