package validation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shr/shr/internal/platform/fhir"
	"github.com/shr/shr/internal/platform/refdata"
	"github.com/shr/shr/internal/platform/terminology"
)

type recordingValidator struct {
	name   string
	issues []Issue
	calls  atomic.Int32
	panic  bool
}

func (r *recordingValidator) Name() string { return r.name }

func (r *recordingValidator) Validate(_ context.Context, doc *Document) []Issue {
	r.calls.Add(1)
	if doc.Bundle == nil {
		panic("validator ran without a parsed bundle")
	}
	if r.panic {
		var m map[string]int
		m["boom"]++
	}
	return r.issues
}

func TestPipeline_UnparseableDocumentStopsEarly(t *testing.T) {
	v := &recordingValidator{name: "after"}
	p := NewPipeline(zerolog.Nop(), v)

	res := p.Validate(context.Background(), Submission{EncounterID: "e1", HealthID: healthID, Content: []byte(`{"resourceType":`)})

	require.Len(t, res.Issues, 1)
	assert.Equal(t, SeverityFatal, res.Issues[0].Severity)
	assert.Equal(t, CodeStructure, res.Issues[0].Code)
	assert.False(t, res.Successful())
	assert.Zero(t, v.calls.Load())
	assert.Equal(t, fhir.Normal, res.Confidentiality)
	assert.Nil(t, res.Bundle())
	assert.Equal(t, "e1", res.EncounterID)
}

func TestPipeline_MergesInRegistrationOrder(t *testing.T) {
	a := &recordingValidator{name: "a", issues: []Issue{{Code: "a1", Severity: SeverityWarning}, {Code: "a2", Severity: SeverityInformation}}}
	b := &recordingValidator{name: "b", issues: []Issue{{Code: "b1", Severity: SeverityWarning}}}
	c := &recordingValidator{name: "c"}
	p := NewPipeline(zerolog.Nop(), a, b, c)

	content := newBundle().composition(patientRef(healthID), "R").bytes(t)
	res := p.Validate(context.Background(), Submission{HealthID: healthID, Content: content})

	codes := make([]string, len(res.Issues))
	for i, is := range res.Issues {
		codes[i] = is.Code
	}
	assert.Equal(t, []string{"a1", "a2", "b1"}, codes)
	assert.True(t, res.Successful(), "warnings do not block acceptance")
	assert.Equal(t, fhir.Restricted, res.Confidentiality)
	assert.NotNil(t, res.Bundle())
	for _, v := range []*recordingValidator{a, b, c} {
		assert.EqualValues(t, 1, v.calls.Load())
	}
}

func TestPipeline_ConfidentialityDerivedForRejectedDocument(t *testing.T) {
	failing := &recordingValidator{name: "x", issues: []Issue{{Code: CodeInvalid, Severity: SeverityError}}}
	p := NewPipeline(zerolog.Nop(), failing)

	content := newBundle().composition(patientRef(healthID), "V").bytes(t)
	res := p.Validate(context.Background(), Submission{HealthID: healthID, Content: content})

	assert.False(t, res.Successful())
	assert.Equal(t, fhir.VeryRestricted, res.Confidentiality)
}

func TestPipeline_PanicFailsClosed(t *testing.T) {
	ok := &recordingValidator{name: "ok", issues: []Issue{{Code: "w", Severity: SeverityWarning}}}
	bad := &recordingValidator{name: "bad", panic: true}
	p := NewPipeline(zerolog.Nop(), ok, bad)

	content := newBundle().composition(patientRef(healthID), "").bytes(t)
	res := p.Validate(context.Background(), Submission{HealthID: healthID, Content: content})

	require.Len(t, res.Issues, 1)
	assert.Equal(t, CodeException, res.Issues[0].Code)
	assert.Equal(t, SeverityError, res.Issues[0].Severity)
	assert.False(t, res.Successful())
}

func TestPipeline_StructuralErrorsDoNotStopOtherValidators(t *testing.T) {
	v := &recordingValidator{name: "after"}
	p := NewPipeline(zerolog.Nop(), v)

	content := newBundle().encounter("enc", "Consultation", patientRef(healthID)).bytes(t)
	res := p.Validate(context.Background(), Submission{HealthID: healthID, Content: content})

	require.Len(t, res.Issues, 1)
	assert.Equal(t, CodeRequired, res.Issues[0].Code)
	assert.EqualValues(t, 1, v.calls.Load())
	assert.Equal(t, fhir.Normal, res.Confidentiality)
}

func TestEncounterPipeline(t *testing.T) {
	checker := &fakeChecker{outcomes: map[string]terminology.Verdict{
		"fever": {Outcome: terminology.Valid},
	}}
	p := NewEncounterPipeline(zerolog.Nop(), Dependencies{
		PatientReferencePath: refPath,
		EncounterTypes:       refdata.StaticSource{"Consultation"},
		Codes:                checker,
	})

	good := newBundle().
		composition(patientRef(healthID), "N").
		encounter("enc", "Consultation", patientRef(healthID)).
		condition("cond", patientRef(healthID), concept("fever")).
		bytes(t)
	res := p.Validate(context.Background(), Submission{HealthID: healthID, Content: good})
	assert.True(t, res.Successful(), "%+v", res.Issues)

	bad := newBundle().
		composition(patientRef(healthID), "N").
		encounter("enc", "Surgery", patientRef("11111111111")).
		bytes(t)
	res = p.Validate(context.Background(), Submission{HealthID: healthID, Content: bad})
	require.Len(t, res.Issues, 2)
	assert.Equal(t, "patient id does not match", res.Issues[0].Message)
	assert.Equal(t, "Invalid Encounter Type", res.Issues[1].Message)
	assert.False(t, res.Transient())
}

func TestEncounterPipeline_Providers(t *testing.T) {
	lookup := &fakeLookup{registered: map[string]bool{providerPath + "/1001.json": true}}
	p := NewEncounterPipeline(zerolog.Nop(), Dependencies{
		PatientReferencePath:  refPath,
		ProviderReferencePath: providerPath,
		EncounterTypes:        refdata.StaticSource{"Consultation"},
		Codes:                 validAll(),
		Providers:             lookup,
		ProviderTimeout:       time.Second,
	})

	content := newBundle().
		composition(patientRef(healthID), "N").
		encounter("enc", "Consultation", patientRef(healthID)).
		add("obs-1", map[string]interface{}{"resourceType": "Observation", "status": "final", "code": map[string]interface{}{"text": "BP"}, "subject": patientRef(healthID), "performer": []interface{}{providerRef("1001")}}).
		add("obs-2", map[string]interface{}{"resourceType": "Observation", "status": "final", "code": map[string]interface{}{"text": "BP"}, "subject": patientRef(healthID), "performer": []interface{}{providerRef("2002")}}).
		bytes(t)
	res := p.Validate(context.Background(), Submission{HealthID: healthID, Content: content})

	require.Len(t, res.Issues, 1, "%+v", res.Issues)
	assert.Equal(t, "provider", res.Issues[0].Source)
	assert.Equal(t, "urn:uuid:obs-2", res.Issues[0].Field)
	assert.False(t, res.Transient())
}

func TestResult_Successful(t *testing.T) {
	for _, sev := range []Severity{SeverityInformation, SeverityWarning, SeverityError, SeverityFatal} {
		r := NewResult("e")
		r.Add(Issue{Code: "x", Severity: sev})
		assert.Equal(t, sev < SeverityError, r.Successful(), sev.String())
	}
	assert.True(t, NewResult("e").Successful())
}

func TestResult_Merge(t *testing.T) {
	a := NewResult("e")
	a.Add(Issue{Code: "1"})
	b := NewResult("e")
	b.Add(Issue{Code: "2"}, Issue{Code: "3"})
	a.Merge(b)
	a.Merge(nil)

	require.Len(t, a.Issues, 3)
	assert.Equal(t, "3", a.Issues[2].Code)
}

func TestResult_Transient(t *testing.T) {
	r := NewResult("e")
	r.Add(Issue{Code: CodeVerificationFailed, Severity: SeverityError}, Issue{Code: "w", Severity: SeverityWarning})
	assert.True(t, r.Transient())

	r.Add(Issue{Code: CodeUnknown, Severity: SeverityError})
	assert.False(t, r.Transient())

	assert.False(t, NewResult("e").Transient())
}

func TestResult_OperationOutcome(t *testing.T) {
	r := NewResult("e")
	r.Add(Issue{Code: CodeInvalid, Field: "urn:uuid:enc", Message: "Invalid Encounter Type", Severity: SeverityError})

	oo := r.OperationOutcome()
	require.Len(t, oo.Issue, 1)
	assert.Equal(t, "error", oo.Issue[0].Severity)
	assert.Equal(t, []string{"urn:uuid:enc"}, oo.Issue[0].Expression)
}

func TestSeverity_Text(t *testing.T) {
	var s Severity
	require.NoError(t, s.UnmarshalText([]byte("Warning")))
	assert.Equal(t, SeverityWarning, s)
	assert.Error(t, s.UnmarshalText([]byte("critical")))
}
