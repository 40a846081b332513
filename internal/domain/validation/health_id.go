package validation

import (
	"context"
	"strings"

	"github.com/shr/shr/internal/platform/fhir"
)

const (
	msgPatientIDMissing  = "patient id not present"
	msgPatientIDMismatch = "patient id does not match"
)

// HealthIDValidator checks that every resource in the bundle points at the
// patient the bundle was submitted for.
type HealthIDValidator struct {
	referencePath string
}

// NewHealthIDValidator takes the base URL patient references are expected to
// start with, e.g. http://mci.example.org/api/default/patients.
func NewHealthIDValidator(referencePath string) *HealthIDValidator {
	return &HealthIDValidator{referencePath: referencePath}
}

func (*HealthIDValidator) Name() string { return "health-id" }

func (v *HealthIDValidator) Validate(_ context.Context, doc *Document) []Issue {
	expected := v.expectedReference(doc.HealthID)
	var issues []Issue
	for _, e := range doc.Bundle.Entries {
		ref, present := patientReference(e.Resource)
		if e.Resource.Type == fhir.TypeComposition {
			if !present {
				return append(issues, v.issue(e, msgPatientIDMissing))
			}
			if !sameReference(ref, expected) {
				return append(issues, v.issue(e, msgPatientIDMismatch))
			}
			continue
		}
		if present && !sameReference(ref, expected) {
			issues = append(issues, v.issue(e, msgPatientIDMismatch))
		}
	}
	return issues
}

func (v *HealthIDValidator) expectedReference(healthID string) string {
	base := strings.TrimSpace(v.referencePath)
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimSpace(healthID)
}

func (v *HealthIDValidator) issue(e fhir.Entry, msg string) Issue {
	return Issue{
		Source:   v.Name(),
		Code:     CodeInvalid,
		Field:    e.ID(),
		Message:  msg,
		Severity: SeverityError,
	}
}

// patientReference returns subject, falling back to patient for resources
// such as Immunization that name the element differently.
func patientReference(r *fhir.Resource) (string, bool) {
	if ref, ok := r.Reference("subject"); ok {
		return ref, true
	}
	return r.Reference("patient")
}

func sameReference(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
