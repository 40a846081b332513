package validation

import (
	"fmt"
	"strings"

	"github.com/shr/shr/internal/platform/fhir"
)

// Severity of an issue. Ordered so that comparisons read naturally.
type Severity int

const (
	SeverityInformation Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

var severityNames = [...]string{"information", "warning", "error", "fatal"}

func (s Severity) String() string {
	if s < SeverityInformation || s > SeverityFatal {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	for i, n := range severityNames {
		if strings.EqualFold(n, string(b)) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", string(b))
}

// Issue codes. CodeUnknown and CodeVerificationFailed are kept apart so a
// registry outage is never reported as a bad code.
const (
	CodeStructure            = "structure"
	CodeInvalid              = "invalid"
	CodeRequired             = "required"
	CodeUnknown              = "code-unknown"
	CodeVerificationFailed   = "code-verification-failed"
	CodeConfiguration        = "configuration"
	CodeReferenceUnavailable = "reference-unavailable"
	CodeException            = "exception"
)

// Issue is a single finding. Issues are values and are never changed once
// created.
type Issue struct {
	Source   string   `json:"source,omitempty"`
	Code     string   `json:"code"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i Issue) Blocking() bool {
	return i.Severity >= SeverityError
}

// Transient reports whether the issue records a collaborator outage rather
// than a problem with the document.
func (i Issue) Transient() bool {
	return i.Code == CodeVerificationFailed || i.Code == CodeReferenceUnavailable
}

// Result collects the issues raised for one document.
type Result struct {
	EncounterID     string               `json:"encounterId,omitempty"`
	Issues          []Issue              `json:"issues"`
	Confidentiality fhir.Confidentiality `json:"confidentiality"`

	bundle *fhir.ParsedBundle
}

func NewResult(encounterID string) *Result {
	return &Result{EncounterID: encounterID, Issues: []Issue{}, Confidentiality: fhir.Normal}
}

func (r *Result) Add(issues ...Issue) {
	r.Issues = append(r.Issues, issues...)
}

// Merge appends other's issues after r's.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Issues = append(r.Issues, other.Issues...)
}

// Successful reports whether no issue is at error severity or above.
func (r *Result) Successful() bool {
	for _, i := range r.Issues {
		if i.Blocking() {
			return false
		}
	}
	return true
}

// Errors returns the blocking issues.
func (r *Result) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Blocking() {
			out = append(out, i)
		}
	}
	return out
}

// Transient reports whether the result is a rejection caused only by
// collaborator outages. Such a document may well be valid and should be
// resubmitted rather than corrected.
func (r *Result) Transient() bool {
	errs := r.Errors()
	if len(errs) == 0 {
		return false
	}
	for _, i := range errs {
		if !i.Transient() {
			return false
		}
	}
	return true
}

// Bundle is the parsed document, or nil when it could not be parsed.
func (r *Result) Bundle() *fhir.ParsedBundle {
	return r.bundle
}

// OperationOutcome renders the issues as a FHIR OperationOutcome.
func (r *Result) OperationOutcome() *fhir.OperationOutcome {
	oo := &fhir.OperationOutcome{ResourceType: "OperationOutcome", Issue: []fhir.OperationOutcomeIssue{}}
	for _, i := range r.Issues {
		issue := fhir.OperationOutcomeIssue{
			Severity:    i.Severity.String(),
			Code:        i.Code,
			Diagnostics: i.Message,
		}
		if i.Field != "" {
			issue.Expression = []string{i.Field}
		}
		oo.Issue = append(oo.Issue, issue)
	}
	return oo
}
