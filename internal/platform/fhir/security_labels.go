package fhir

import (
	"fmt"
	"strings"
)

// SecurityLabelSystem is the code system URI for confidentiality classifications.
const SecurityLabelSystem = "http://terminology.hl7.org/CodeSystem/v3-Confidentiality"

// Confidentiality is the HL7 v3 confidentiality classification. The levels
// form a total order: U < L < M < N < R < V.
type Confidentiality int

const (
	Unrestricted Confidentiality = iota
	Low
	Moderate
	Normal
	Restricted
	VeryRestricted
)

var confidentialityCodes = [...]string{"U", "L", "M", "N", "R", "V"}

var confidentialityNames = [...]string{
	"Unrestricted", "Low", "Moderate", "Normal", "Restricted", "VeryRestricted",
}

// ParseConfidentiality maps a classification code to its level. Matching is
// case-insensitive and accepts both the single-letter code and the display
// name. Unknown or blank codes report false.
func ParseConfidentiality(code string) (Confidentiality, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Normal, false
	}
	for i, c := range confidentialityCodes {
		if strings.EqualFold(c, code) || strings.EqualFold(confidentialityNames[i], code) {
			return Confidentiality(i), true
		}
	}
	return Normal, false
}

// ConfidentialityOrDefault is ParseConfidentiality with Normal substituted for
// anything unrecognised.
func ConfidentialityOrDefault(code string) Confidentiality {
	c, _ := ParseConfidentiality(code)
	return c
}

func (c Confidentiality) valid() bool {
	return c >= Unrestricted && c <= VeryRestricted
}

// Code returns the single-letter classification code.
func (c Confidentiality) Code() string {
	if !c.valid() {
		return confidentialityCodes[Normal]
	}
	return confidentialityCodes[c]
}

func (c Confidentiality) String() string {
	if !c.valid() {
		return fmt.Sprintf("Confidentiality(%d)", int(c))
	}
	return confidentialityNames[c]
}

// Confidential reports whether the level is strictly above Normal.
func (c Confidentiality) Confidential() bool {
	return c > Normal
}

func (c Confidentiality) MarshalText() ([]byte, error) {
	return []byte(c.Code()), nil
}

func (c *Confidentiality) UnmarshalText(b []byte) error {
	level, ok := ParseConfidentiality(string(b))
	if !ok {
		return fmt.Errorf("unknown confidentiality code %q", string(b))
	}
	*c = level
	return nil
}
