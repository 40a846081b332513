// Package validation decides whether an encounter bundle is accepted.
//
// Validation runs in two phases. The structural phase parses the bundle and
// stops everything on a fatal issue. The remaining validators then run
// concurrently over the parsed, read-only bundle and their issues are
// concatenated in registration order. The bundle's confidentiality is derived
// whenever it parses, whether or not it is accepted.
package validation

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/panics"

	"github.com/shr/shr/internal/platform/fhir"
)

// Submission is what the caller hands in for validation.
type Submission struct {
	EncounterID string
	HealthID    string
	Content     []byte
}

// Document is the shared, read-only view every validator receives. Bundle is
// set by the structural phase.
type Document struct {
	Submission
	Bundle *fhir.ParsedBundle
}

type Validator interface {
	Name() string
	Validate(ctx context.Context, doc *Document) []Issue
}

type Pipeline struct {
	structural *StructuralValidator
	validators []Validator
	logger     zerolog.Logger
}

func NewPipeline(logger zerolog.Logger, validators ...Validator) *Pipeline {
	return &Pipeline{
		structural: &StructuralValidator{},
		validators: validators,
		logger:     logger.With().Str("component", "validation").Logger(),
	}
}

// Validate runs every validator against sub and returns the combined result.
// It never returns a partially assembled result: any panic inside a validator
// replaces all issues with a single exception issue.
func (p *Pipeline) Validate(ctx context.Context, sub Submission) *Result {
	res := NewResult(sub.EncounterID)
	doc := &Document{Submission: sub}

	issues, ok := p.run(ctx, p.structural, doc)
	if !ok {
		return p.failClosed(sub.EncounterID)
	}
	res.Add(issues...)
	res.bundle = doc.Bundle
	res.Confidentiality = DeriveConfidentiality(doc.Bundle)
	if doc.Bundle == nil || hasFatal(issues) {
		return res
	}

	type outcome struct {
		issues []Issue
		ok     bool
	}
	outcomes := iter.Map(p.validators, func(v *Validator) outcome {
		issues, ok := p.run(ctx, *v, doc)
		return outcome{issues: issues, ok: ok}
	})
	for _, o := range outcomes {
		if !o.ok {
			failed := p.failClosed(sub.EncounterID)
			failed.bundle = res.bundle
			failed.Confidentiality = res.Confidentiality
			return failed
		}
		res.Add(o.issues...)
	}

	if !res.Successful() {
		p.logger.Debug().
			Str("encounter_id", sub.EncounterID).
			Str("health_id", sub.HealthID).
			Int("errors", len(res.Errors())).
			Msg("encounter rejected")
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, v Validator, doc *Document) (issues []Issue, ok bool) {
	var pc panics.Catcher
	pc.Try(func() {
		issues = v.Validate(ctx, doc)
	})
	if r := pc.Recovered(); r != nil {
		p.logger.Error().
			Str("validator", v.Name()).
			Str("encounter_id", doc.EncounterID).
			Err(r.AsError()).
			Msg("validator panicked")
		return nil, false
	}
	return issues, true
}

func (p *Pipeline) failClosed(encounterID string) *Result {
	res := NewResult(encounterID)
	res.Add(Issue{
		Source:   "pipeline",
		Code:     CodeException,
		Message:  "internal error while validating encounter",
		Severity: SeverityError,
	})
	return res
}

func hasFatal(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityFatal {
			return true
		}
	}
	return false
}
