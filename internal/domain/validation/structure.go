package validation

import (
	"context"

	"github.com/shr/shr/internal/platform/fhir"
)

// StructuralValidator parses the bundle. An unparseable bundle yields one
// fatal issue.
type StructuralValidator struct{}

func (StructuralValidator) Name() string { return "structure" }

func (StructuralValidator) Validate(_ context.Context, doc *Document) []Issue {
	b, err := fhir.ParseBundle(doc.Content)
	if err != nil {
		return []Issue{{
			Source:   "structure",
			Code:     CodeStructure,
			Message:  "unable to parse encounter bundle: " + err.Error(),
			Severity: SeverityFatal,
		}}
	}
	doc.Bundle = b

	var issues []Issue
	if len(b.Entries) == 0 {
		issues = append(issues, Issue{
			Source:   "structure",
			Code:     CodeStructure,
			Message:  "bundle has no entries",
			Severity: SeverityError,
		})
	}
	if _, ok := b.Composition(); !ok {
		issues = append(issues, Issue{
			Source:   "structure",
			Code:     CodeRequired,
			Field:    "Bundle.entry",
			Message:  "bundle has no Composition",
			Severity: SeverityError,
		})
	}
	for _, e := range b.Entries {
		if e.Resource.Type == "" {
			issues = append(issues, Issue{
				Source:   "structure",
				Code:     CodeStructure,
				Field:    e.ID(),
				Message:  "entry resource has no resourceType",
				Severity: SeverityError,
			})
		}
	}
	return issues
}

// DeriveConfidentiality reads the Composition's confidentiality. Anything
// missing or unrecognised is Normal.
func DeriveConfidentiality(b *fhir.ParsedBundle) fhir.Confidentiality {
	if b == nil {
		return fhir.Normal
	}
	comp, ok := b.Composition()
	if !ok {
		return fhir.Normal
	}
	return fhir.ConfidentialityOrDefault(comp.Resource.Code("confidentiality"))
}
