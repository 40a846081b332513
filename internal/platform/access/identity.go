package access

import "strings"

// RoleKind is the kind of authority a role grants.
type RoleKind string

const (
	RolePatient     RoleKind = "patient"
	RoleProvider    RoleKind = "provider"
	RoleFacility    RoleKind = "facility"
	RoleSystemAdmin RoleKind = "system-admin"
)

// ParseRoleKind maps a token role name onto a RoleKind. Names are matched
// case-insensitively; underscores and spaces are interchangeable with
// hyphens and an SHR prefix is ignored, so "SHR System Admin" and
// "SHR_FACILITY" both resolve.
func ParseRoleKind(s string) (RoleKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	s = strings.TrimPrefix(s, "shr-")
	switch RoleKind(s) {
	case RolePatient, RoleProvider, RoleFacility, RoleSystemAdmin:
		return RoleKind(s), true
	case "admin", "system":
		return RoleSystemAdmin, true
	}
	return "", false
}

// Role is a single grant held by an identity. For a Patient role ID is the
// patient's health id; for Facility and Provider roles ID is the facility or
// provider id and Catchments lists the registered catchment codes.
type Role struct {
	Kind       RoleKind `json:"kind"`
	ID         string   `json:"id,omitempty"`
	Catchments []string `json:"catchments,omitempty"`
}

// Identity is the authenticated caller.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Roles []Role `json:"roles"`
}

func (i Identity) role(kind RoleKind) (Role, bool) {
	for _, r := range i.Roles {
		if r.Kind == kind {
			return r, true
		}
	}
	return Role{}, false
}

// Has reports whether the identity holds at least one role of the given kind.
func (i Identity) Has(kind RoleKind) bool {
	_, ok := i.role(kind)
	return ok
}

// HasAny reports whether the identity holds any of the given kinds.
func (i Identity) HasAny(kinds ...RoleKind) bool {
	for _, k := range kinds {
		if i.Has(k) {
			return true
		}
	}
	return false
}

// PatientID returns the health id bound to the identity's Patient role.
func (i Identity) PatientID() (string, bool) {
	r, ok := i.role(RolePatient)
	if !ok || r.ID == "" {
		return "", false
	}
	return r.ID, true
}

// FacilityID returns the facility id of the Facility role, if any.
func (i Identity) FacilityID() string {
	r, _ := i.role(RoleFacility)
	return r.ID
}

// ProviderID returns the provider id of the Provider role, if any.
func (i Identity) ProviderID() string {
	r, _ := i.role(RoleProvider)
	return r.ID
}
