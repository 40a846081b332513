package terminology

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Kind selects how a code is verified against the terminology registry.
type Kind string

const (
	KindCode       Kind = "code"
	KindUUID       Kind = "uuid"
	KindValueSet   Kind = "valueset"
	KindMedication Kind = "medication"
)

// URL fragments that identify registry-backed coding systems.
const (
	RefTermPattern    = "/openmrs/ws/rest/v1/tr/referenceterms/"
	ConceptPattern    = "/openmrs/ws/rest/v1/tr/concepts/"
	ValueSetPattern   = "/openmrs/ws/rest/v1/tr/vs/"
	MedicationPattern = "/openmrs/ws/rest/v1/tr/drugs/"
)

type route struct {
	pattern string
	kind    Kind
}

// routes is checked in order; the first pattern contained in the system URL
// wins.
var routes = []route{
	{RefTermPattern, KindCode},
	{ConceptPattern, KindUUID},
	{ValueSetPattern, KindValueSet},
	{MedicationPattern, KindMedication},
}

// Router resolves a coding system URL to the verification it needs. Alias
// keys are matched case-insensitively.
type Router struct {
	aliases map[string]string
}

func NewRouter(aliases map[string]string) *Router {
	folded := make(map[string]string, len(aliases))
	for k, v := range aliases {
		folded[strings.ToLower(k)] = v
	}
	return &Router{aliases: folded}
}

// Route returns the verification kind and the URL to verify against. An
// alias for the system is substituted before matching. ok is false for
// systems that are not registry-backed; such codings are not checked.
func (r *Router) Route(system string) (kind Kind, url string, ok bool) {
	url = system
	if aliased, found := r.aliases[strings.ToLower(system)]; found && aliased != "" {
		url = aliased
	}
	for _, rt := range routes {
		if strings.Contains(url, rt.pattern) {
			return rt.kind, url, true
		}
	}
	return "", url, false
}

// LoadAliases reads a properties file mapping public coding system URLs to
// registry URLs. A blank path yields an empty map.
func LoadAliases(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	// keys are URLs; the default "." delimiter would split them into a tree.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	v.SetConfigType("properties")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading terminology aliases %s: %w", path, err)
	}
	aliases := make(map[string]string, len(v.AllKeys()))
	for _, k := range v.AllKeys() {
		aliases[k] = v.GetString(k)
	}
	return aliases, nil
}
