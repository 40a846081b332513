package terminology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trBase = "http://localhost:9080"

func TestRouter_Route(t *testing.T) {
	r := NewRouter(nil)
	tests := []struct {
		system string
		kind   Kind
		ok     bool
	}{
		{trBase + RefTermPattern + "fa460ffa-7aa7-4b4f-9a6e-2f31d6f3c5c3", KindCode, true},
		{trBase + ConceptPattern + "07952dc2-5206-11e5-ae6d-0050568225ca", KindUUID, true},
		{trBase + ValueSetPattern + "encounter-class", KindValueSet, true},
		{trBase + MedicationPattern + "3be99d23-e50d-41a6-ad8c-f6434e49f513", KindMedication, true},
		{"http://loinc.org", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		kind, url, ok := r.Route(tt.system)
		assert.Equal(t, tt.ok, ok, tt.system)
		assert.Equal(t, tt.kind, kind, tt.system)
		assert.Equal(t, tt.system, url)
	}
}

func TestRouter_RoutePriority(t *testing.T) {
	// a URL carrying two fragments resolves to the higher priority one
	r := NewRouter(nil)
	kind, _, ok := r.Route(trBase + ConceptPattern + "x" + RefTermPattern + "y")
	require.True(t, ok)
	assert.Equal(t, KindCode, kind)
}

func TestRouter_Alias(t *testing.T) {
	target := trBase + ValueSetPattern + "condition-category"
	r := NewRouter(map[string]string{"http://hl7.org/fhir/vs/Condition-Category": target})

	kind, url, ok := r.Route("http://hl7.org/fhir/vs/condition-category")
	require.True(t, ok)
	assert.Equal(t, KindValueSet, kind)
	assert.Equal(t, target, url)
}

func TestLoadAliases(t *testing.T) {
	aliases, err := LoadAliases("testdata/tr_aliases.properties")
	require.NoError(t, err)

	r := NewRouter(aliases)
	kind, url, ok := r.Route("http://hl7.org/fhir/vs/encounter-class")
	require.True(t, ok)
	assert.Equal(t, KindValueSet, kind)
	assert.Equal(t, trBase+ValueSetPattern+"encounter-class", url)
}

func TestLoadAliases_BlankPath(t *testing.T) {
	aliases, err := LoadAliases("")
	require.NoError(t, err)
	assert.Empty(t, aliases)
}

func TestLoadAliases_MissingFile(t *testing.T) {
	_, err := LoadAliases("testdata/does-not-exist.properties")
	assert.Error(t, err)
}
