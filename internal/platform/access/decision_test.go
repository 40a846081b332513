package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shr/shr/internal/platform/fhir"
)

func facility(catchments ...string) Role {
	return Role{Kind: RoleFacility, ID: "10000069", Catchments: catchments}
}

func provider(catchments ...string) Role {
	return Role{Kind: RoleProvider, ID: "24", Catchments: catchments}
}

func patient(healthID string) Role {
	return Role{Kind: RolePatient, ID: healthID}
}

var admin = Role{Kind: RoleSystemAdmin}

func TestDecideAccess_Patient(t *testing.T) {
	tests := []struct {
		name  string
		roles []Role
		hid   string
		want  Decision
	}{
		{"system admin", []Role{admin}, "98001046534", Unrestricted},
		{"own record", []Role{patient("98001046534")}, "98001046534", Unrestricted},
		{"someone else's record", []Role{patient("98001046534")}, "98001046535", Denied},
		{"facility", []Role{facility("3026")}, "98001046534", Restricted},
		{"provider outside catchment", []Role{provider("1029")}, "98001046534", Restricted},
		{"patient and provider", []Role{patient("11111111111"), provider("3026")}, "98001046534", Restricted},
		{"patient and provider on own record", []Role{patient("98001046534"), provider("3026")}, "98001046534", Unrestricted},
		{"no roles", nil, "98001046534", Denied},
		{"patient role without id", []Role{{Kind: RolePatient}}, "", Denied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideAccess(Identity{ID: "caller", Roles: tt.roles}, Patient(tt.hid))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecideAccess_Catchment(t *testing.T) {
	tests := []struct {
		name      string
		roles     []Role
		catchment string
		want      Decision
	}{
		{"broader request than scope", []Role{facility("302618")}, "3026", Restricted},
		{"unrelated catchment", []Role{facility("302618")}, "1029", Denied},
		{"narrower request than scope", []Role{provider("3026")}, "30261801", Restricted},
		{"exact match", []Role{provider("302618")}, "302618", Restricted},
		{"second registered catchment", []Role{facility("1029", "302618")}, "302618", Restricted},
		{"sibling district", []Role{facility("302618")}, "302619", Denied},
		{"system admin", []Role{admin}, "1029", Unrestricted},
		{"patient only", []Role{patient("98001046534")}, "3026", Denied},
		{"facility without catchments", []Role{facility()}, "3026", Denied},
		{"blank scope never matches", []Role{facility("")}, "3026", Denied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideAccess(Identity{ID: "caller", Roles: tt.roles}, Catchment(tt.catchment))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatchmentMatches(t *testing.T) {
	assert.True(t, CatchmentMatches("302618", "3026"))
	assert.True(t, CatchmentMatches("3026", "302618"))
	assert.False(t, CatchmentMatches("302618", "1029"))
	assert.False(t, CatchmentMatches("", "3026"))
	assert.False(t, CatchmentMatches("3026", " "))
}

type item struct {
	name     string
	patient  fhir.Confidentiality
	document fhir.Confidentiality
}

func (i item) Confidentialities() (fhir.Confidentiality, fhir.Confidentiality) {
	return i.patient, i.document
}

func TestFilterEvents(t *testing.T) {
	items := []item{
		{"normal", fhir.Normal, fhir.Normal},
		{"restricted doc", fhir.Normal, fhir.Restricted},
		{"low", fhir.Low, fhir.Unrestricted},
		{"very restricted patient", fhir.VeryRestricted, fhir.Normal},
	}

	names := func(in []item) []string {
		var out []string
		for _, i := range in {
			out = append(out, i.name)
		}
		return out
	}

	assert.Equal(t, []string{"normal", "restricted doc", "low", "very restricted patient"}, names(FilterEvents(Unrestricted, items)))
	assert.Equal(t, []string{"normal", "low"}, names(FilterEvents(Restricted, items)))
	assert.Empty(t, FilterEvents(Denied, items))
}

func TestHasConfidentialPatient(t *testing.T) {
	assert.False(t, HasConfidentialPatient([]item{{"a", fhir.Normal, fhir.VeryRestricted}}))
	assert.True(t, HasConfidentialPatient([]item{{"a", fhir.Normal, fhir.Normal}, {"b", fhir.Restricted, fhir.Normal}}))
	assert.False(t, HasConfidentialPatient[item](nil))
}

func TestParseRoleKind(t *testing.T) {
	tests := map[string]RoleKind{
		"SHR_FACILITY":     RoleFacility,
		"shr_provider":     RoleProvider,
		"patient":          RolePatient,
		"SHR_SYSTEM_ADMIN": RoleSystemAdmin,
		"admin":            RoleSystemAdmin,
		"SHR System Admin": RoleSystemAdmin,
	}
	for in, want := range tests {
		got, ok := ParseRoleKind(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseRoleKind("nurse")
	assert.False(t, ok)
}

func TestIdentity_Accessors(t *testing.T) {
	id := Identity{Roles: []Role{facility("3026"), provider("3026"), patient("98001046534")}}
	assert.Equal(t, "10000069", id.FacilityID())
	assert.Equal(t, "24", id.ProviderID())
	hid, ok := id.PatientID()
	assert.True(t, ok)
	assert.Equal(t, "98001046534", hid)
	assert.False(t, id.Has(RoleSystemAdmin))
}
