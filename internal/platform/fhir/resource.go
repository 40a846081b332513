package fhir

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
)

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// ResourceType names the resource types the validation pipeline dispatches
// on. Any other type is still accepted and falls through to generic checks.
type ResourceType string

const (
	TypeComposition       ResourceType = "Composition"
	TypeEncounter         ResourceType = "Encounter"
	TypeCondition         ResourceType = "Condition"
	TypeImmunization      ResourceType = "Immunization"
	TypeProcedure         ResourceType = "Procedure"
	TypeMedicationRequest ResourceType = "MedicationRequest"
	TypeObservation       ResourceType = "Observation"
	TypePatient           ResourceType = "Patient"
)

// Resource is a decoded resource held as a generic JSON tree. Typed accessors
// pull out the handful of elements the service reasons about.
type Resource struct {
	Type   ResourceType
	ID     string
	fields map[string]interface{}
}

func newResource(raw json.RawMessage) (*Resource, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	r := &Resource{fields: fields}
	r.Type = ResourceType(stringField(fields, "resourceType"))
	r.ID = stringField(fields, "id")
	return r, nil
}

// Has reports whether the element is present and not null.
func (r *Resource) Has(element string) bool {
	v, ok := r.fields[element]
	return ok && v != nil
}

// Primitive returns a primitive string element.
func (r *Resource) Primitive(element string) string {
	return stringField(r.fields, element)
}

// Reference returns the reference of an element that is a Reference or a list
// of them. For a list the first entry wins.
func (r *Resource) Reference(element string) (string, bool) {
	v, ok := r.fields[element]
	if !ok {
		return "", false
	}
	if list, ok := v.([]interface{}); ok {
		if len(list) == 0 {
			return "", false
		}
		v = list[0]
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return "", false
	}
	ref := stringField(obj, "reference")
	return ref, ref != ""
}

// CodeableConcepts decodes an element that is a CodeableConcept or a list of
// them.
func (r *Resource) CodeableConcepts(element string) []CodeableConcept {
	v, ok := r.fields[element]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		items = []interface{}{v}
	}
	var out []CodeableConcept
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		cc := CodeableConcept{Text: stringField(obj, "text")}
		if codings, ok := obj["coding"].([]interface{}); ok {
			for _, c := range codings {
				if cm, ok := c.(map[string]interface{}); ok {
					cc.Coding = append(cc.Coding, codingFrom(cm))
				}
			}
		}
		out = append(out, cc)
	}
	return out
}

// Code returns a coded element that may be serialised either as a bare code
// string or as a Coding object.
func (r *Resource) Code(element string) string {
	switch v := r.fields[element].(type) {
	case string:
		return v
	case map[string]interface{}:
		if code := stringField(v, "code"); code != "" {
			return code
		}
		if codings, ok := v["coding"].([]interface{}); ok && len(codings) > 0 {
			if cm, ok := codings[0].(map[string]interface{}); ok {
				return stringField(cm, "code")
			}
		}
	}
	return ""
}

// LocatedCoding is a Coding together with the element path it was found at.
type LocatedCoding struct {
	Path string
	Coding
}

// Codings walks the whole resource and returns every Coding that carries a
// system, in document order.
func (r *Resource) Codings() []LocatedCoding {
	var out []LocatedCoding
	walkCodings(string(r.Type), r.fields, &out)
	return out
}

func walkCodings(path string, v interface{}, out *[]LocatedCoding) {
	switch node := v.(type) {
	case map[string]interface{}:
		if isCoding(node) {
			*out = append(*out, LocatedCoding{Path: path, Coding: codingFrom(node)})
			return
		}
		for _, k := range slices.Sorted(maps.Keys(node)) {
			walkCodings(path+"."+k, node[k], out)
		}
	case []interface{}:
		for i, item := range node {
			walkCodings(path+"["+strconv.Itoa(i)+"]", item, out)
		}
	}
}

func isCoding(node map[string]interface{}) bool {
	system, ok := node["system"].(string)
	if !ok || system == "" {
		return false
	}
	_, hasCode := node["code"].(string)
	return hasCode
}

func codingFrom(m map[string]interface{}) Coding {
	return Coding{
		System:  stringField(m, "system"),
		Code:    stringField(m, "code"),
		Display: stringField(m, "display"),
	}
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// OperationOutcome represents a FHIR OperationOutcome for errors.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome("error", "processing", diagnostics)
}
