package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/shr/shr/internal/platform/fhir"
	"github.com/shr/shr/internal/platform/terminology"
)

// CodeChecker verifies a single coding. terminology.Checker implements it.
type CodeChecker interface {
	Check(ctx context.Context, coding fhir.Coding) terminology.Verdict
}

// EntryValidator validates a single bundle entry.
type EntryValidator interface {
	ValidateEntry(ctx context.Context, e fhir.Entry) []Issue
}

// codedEntry checks required elements and verifies every registry-backed
// coding in the resource. With no required elements it is the fallback used
// for resource types without specific rules.
type codedEntry struct {
	checker  CodeChecker
	required [][]string
}

func (c codedEntry) ValidateEntry(ctx context.Context, e fhir.Entry) []Issue {
	var issues []Issue
	for _, alternatives := range c.required {
		if !hasAny(e.Resource, alternatives) {
			issues = append(issues, Issue{
				Source:   "resource",
				Code:     CodeRequired,
				Field:    e.ID(),
				Message:  fmt.Sprintf("%s.%s is required", e.Resource.Type, strings.Join(alternatives, "|")),
				Severity: SeverityError,
			})
		}
	}
	return append(issues, verifyCodings(ctx, c.checker, e)...)
}

func hasAny(r *fhir.Resource, elements []string) bool {
	for _, el := range elements {
		if r.Has(el) {
			return true
		}
	}
	return false
}

func verifyCodings(ctx context.Context, checker CodeChecker, e fhir.Entry) []Issue {
	var issues []Issue
	for _, lc := range e.Resource.Codings() {
		v := checker.Check(ctx, lc.Coding)
		field := e.ID() + ":" + lc.Path
		switch v.Outcome {
		case terminology.Invalid:
			issues = append(issues, Issue{
				Source:   "terminology",
				Code:     CodeUnknown,
				Field:    field,
				Message:  fmt.Sprintf("%q is not a valid code for %s", lc.Code, lc.System),
				Severity: SeverityError,
			})
		case terminology.Unreachable:
			msg := fmt.Sprintf("could not verify code %q for %s", lc.Code, lc.System)
			if v.TimedOut() {
				msg += ": verification timed out"
			} else if v.Err != nil {
				msg += ": " + v.Err.Error()
			}
			issues = append(issues, Issue{
				Source:   "terminology",
				Code:     CodeVerificationFailed,
				Field:    field,
				Message:  msg,
				Severity: SeverityError,
			})
		}
	}
	return issues
}

// ResourceValidator dispatches each entry to the validator registered for
// its resource type, or to the fallback.
type ResourceValidator struct {
	byType   map[fhir.ResourceType]EntryValidator
	fallback EntryValidator
}

// NewResourceValidator builds the fixed type registry.
func NewResourceValidator(checker CodeChecker) *ResourceValidator {
	req := func(alts ...[]string) codedEntry { return codedEntry{checker: checker, required: alts} }
	one := func(el string) []string { return []string{el} }
	return &ResourceValidator{
		byType: map[fhir.ResourceType]EntryValidator{
			fhir.TypeCondition:         req(one("code")),
			fhir.TypeImmunization:      req(one("vaccineCode")),
			fhir.TypeProcedure:         req(one("code")),
			fhir.TypeMedicationRequest: req([]string{"medicationCodeableConcept", "medicationReference"}),
			fhir.TypeObservation:       req(one("code"), one("status")),
		},
		fallback: codedEntry{checker: checker},
	}
}

func (*ResourceValidator) Name() string { return "resource" }

// For returns the validator that handles t.
func (v *ResourceValidator) For(t fhir.ResourceType) EntryValidator {
	if ev, ok := v.byType[t]; ok {
		return ev
	}
	return v.fallback
}

// Validate checks entries concurrently; terminology lookups dominate the
// cost. Issues keep bundle order.
func (v *ResourceValidator) Validate(ctx context.Context, doc *Document) []Issue {
	perEntry := iter.Map(doc.Bundle.Entries, func(e *fhir.Entry) []Issue {
		return v.For(e.Resource.Type).ValidateEntry(ctx, *e)
	})
	var issues []Issue
	for _, is := range perEntry {
		issues = append(issues, is...)
	}
	return issues
}
