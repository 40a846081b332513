package validation

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/shr/shr/internal/platform/refdata"
)

// Dependencies are the collaborators of the standard encounter pipeline.
type Dependencies struct {
	PatientReferencePath  string
	ProviderReferencePath string
	EncounterTypes        refdata.Source
	Codes                 CodeChecker
	Providers             ProviderLookup
	ProviderTimeout       time.Duration
}

// NewEncounterPipeline assembles the validators run on every submitted
// encounter, in the order their issues are reported.
func NewEncounterPipeline(logger zerolog.Logger, deps Dependencies) *Pipeline {
	return NewPipeline(logger,
		NewHealthIDValidator(deps.PatientReferencePath),
		NewResourceValidator(deps.Codes),
		NewProviderValidator(deps.ProviderReferencePath, deps.Providers, deps.ProviderTimeout),
		NewEncounterTypeValidator(deps.EncounterTypes),
	)
}
