package fhir

import (
	"encoding/json"
	"testing"
)

func TestConfidentiality_Order(t *testing.T) {
	order := []Confidentiality{Unrestricted, Low, Moderate, Normal, Restricted, VeryRestricted}
	for i := 1; i < len(order); i++ {
		if !(order[i-1] < order[i]) {
			t.Errorf("%s should be below %s", order[i-1], order[i])
		}
	}
}

func TestConfidentiality_Confidential(t *testing.T) {
	tests := []struct {
		level Confidentiality
		want  bool
	}{
		{Unrestricted, false},
		{Low, false},
		{Moderate, false},
		{Normal, false},
		{Restricted, true},
		{VeryRestricted, true},
	}
	for _, tt := range tests {
		if got := tt.level.Confidential(); got != tt.want {
			t.Errorf("%s.Confidential() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestParseConfidentiality(t *testing.T) {
	tests := []struct {
		in     string
		want   Confidentiality
		wantOK bool
	}{
		{"U", Unrestricted, true},
		{"l", Low, true},
		{"M", Moderate, true},
		{"N", Normal, true},
		{"R", Restricted, true},
		{"v", VeryRestricted, true},
		{"VeryRestricted", VeryRestricted, true},
		{" R ", Restricted, true},
		{"", Normal, false},
		{"X", Normal, false},
	}
	for _, tt := range tests {
		got, ok := ParseConfidentiality(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseConfidentiality(%q) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestConfidentialityOrDefault(t *testing.T) {
	if got := ConfidentialityOrDefault("unknown"); got != Normal {
		t.Errorf("expected Normal, got %s", got)
	}
	if got := ConfidentialityOrDefault("V"); got != VeryRestricted {
		t.Errorf("expected VeryRestricted, got %s", got)
	}
}

func TestConfidentiality_JSON(t *testing.T) {
	type doc struct {
		Level Confidentiality `json:"level"`
	}
	b, err := json.Marshal(doc{Level: Restricted})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"level":"R"}` {
		t.Errorf("unexpected JSON %s", b)
	}

	var d doc
	if err := json.Unmarshal([]byte(`{"level":"V"}`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Level != VeryRestricted {
		t.Errorf("expected VeryRestricted, got %s", d.Level)
	}
	if err := json.Unmarshal([]byte(`{"level":"Q"}`), &d); err == nil {
		t.Error("expected error for unknown code")
	}
}
