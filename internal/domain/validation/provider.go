package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shr/shr/internal/platform/fhir"
)

// ProviderLookup answers whether a provider reference is registered.
// provider.Client implements it.
type ProviderLookup interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// providerElements names the element holding the provider reference for each
// resource type that carries one. Lists are checked on their first entry.
var providerElements = map[fhir.ResourceType]string{
	fhir.TypeObservation:       "performer",
	fhir.TypeCondition:         "asserter",
	fhir.TypeMedicationRequest: "requester",
}

// ProviderValidator checks that provider references point into the provider
// registry and that the registry knows them. An unknown provider is an error
// in the document; a registry that cannot be reached is transient.
type ProviderValidator struct {
	referencePath string
	lookup        ProviderLookup
	timeout       time.Duration
}

// NewProviderValidator takes the base URL provider references must start
// with. A nil lookup only checks the prefix.
func NewProviderValidator(referencePath string, lookup ProviderLookup, timeout time.Duration) *ProviderValidator {
	return &ProviderValidator{referencePath: referencePath, lookup: lookup, timeout: timeout}
}

func (*ProviderValidator) Name() string { return "provider" }

func (v *ProviderValidator) Validate(ctx context.Context, doc *Document) []Issue {
	var issues []Issue
	known := map[string]Issue{}
	for _, e := range doc.Bundle.Entries {
		element, ok := providerElements[e.Resource.Type]
		if !ok || !e.Resource.Has(element) {
			continue
		}
		ref, ok := e.Resource.Reference(element)
		ref = strings.TrimSpace(ref)
		if !ok || ref == "" {
			issues = append(issues, v.issue(e, CodeRequired, fmt.Sprintf("%s.%s has no provider reference", e.Resource.Type, element)))
			continue
		}
		if !v.underReferencePath(ref) {
			issues = append(issues, v.issue(e, CodeInvalid, fmt.Sprintf("Invalid Provider URL in %s", e.Resource.Type)))
			continue
		}
		if v.lookup == nil {
			continue
		}
		found, seen := known[ref]
		if !seen {
			found = v.verify(ctx, ref)
			known[ref] = found
		}
		if found.Code != "" {
			found.Field = e.ID()
			issues = append(issues, found)
		}
	}
	return issues
}

// verify returns the zero Issue when the registry knows ref.
func (v *ProviderValidator) verify(ctx context.Context, ref string) Issue {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	ok, err := v.lookup.Exists(ctx, ref)
	switch {
	case err != nil:
		return Issue{
			Source:   v.Name(),
			Code:     CodeReferenceUnavailable,
			Message:  fmt.Sprintf("provider %s could not be verified: %v", ref, err),
			Severity: SeverityError,
		}
	case !ok:
		return Issue{
			Source:   v.Name(),
			Code:     CodeInvalid,
			Message:  fmt.Sprintf("unknown provider %s", ref),
			Severity: SeverityError,
		}
	}
	return Issue{}
}

func (v *ProviderValidator) underReferencePath(ref string) bool {
	base := strings.TrimSpace(v.referencePath)
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return len(ref) > len(base) && strings.EqualFold(ref[:len(base)], base)
}

func (v *ProviderValidator) issue(e fhir.Entry, code, msg string) Issue {
	return Issue{
		Source:   v.Name(),
		Code:     code,
		Field:    e.ID(),
		Message:  msg,
		Severity: SeverityError,
	}
}
