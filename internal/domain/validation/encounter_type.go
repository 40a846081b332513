package validation

import (
	"context"
	"errors"

	"github.com/shr/shr/internal/platform/fhir"
	"github.com/shr/shr/internal/platform/refdata"
)

// EncounterTypeValidator checks each Encounter's type against the reference
// list. With no list, or an empty one, every encounter fails.
type EncounterTypeValidator struct {
	source refdata.Source
}

func NewEncounterTypeValidator(source refdata.Source) *EncounterTypeValidator {
	return &EncounterTypeValidator{source: source}
}

func (*EncounterTypeValidator) Name() string { return "encounter-type" }

func (v *EncounterTypeValidator) Validate(ctx context.Context, doc *Document) []Issue {
	encounters := doc.Bundle.OfType(fhir.TypeEncounter)
	if len(encounters) == 0 {
		return nil
	}

	types, err := v.source.EncounterTypes(ctx)
	var issues []Issue
	for _, e := range encounters {
		name := encounterTypeName(e.Resource)
		switch {
		case err != nil:
			code := CodeConfiguration
			if errors.Is(err, refdata.ErrUnavailable) {
				code = CodeReferenceUnavailable
			}
			issues = append(issues, v.issue(e, code, "encounter types could not be loaded"))
		case len(types) == 0:
			issues = append(issues, v.issue(e, CodeConfiguration, "no valid encounter types are known"))
		case name == "":
			issues = append(issues, v.issue(e, CodeRequired, "encounter type not present"))
		case !refdata.Contains(types, name):
			issues = append(issues, v.issue(e, CodeInvalid, "Invalid Encounter Type"))
		}
	}
	return issues
}

func (v *EncounterTypeValidator) issue(e fhir.Entry, code, msg string) Issue {
	return Issue{
		Source:   v.Name(),
		Code:     code,
		Field:    e.ID(),
		Message:  msg,
		Severity: SeverityError,
	}
}

// encounterTypeName is the text of the first type, or the display or code of
// its first coding when there is no text.
func encounterTypeName(r *fhir.Resource) string {
	types := r.CodeableConcepts("type")
	if len(types) == 0 {
		return ""
	}
	t := types[0]
	if t.Text != "" {
		return t.Text
	}
	for _, c := range t.Coding {
		if c.Display != "" {
			return c.Display
		}
		if c.Code != "" {
			return c.Code
		}
	}
	return ""
}
