package terminology

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(RefTermPattern+"ref-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shr", r.Header.Get("client_id"))
		assert.Equal(t, "secret", r.Header.Get("X-Auth-Token"))
		w.Write([]byte(`{"uuid":"ref-1","code":"R50.9","name":"Fever"}`))
	})
	mux.HandleFunc(ConceptPattern+"c-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"uuid":"c-1","display":"Fever"}`))
	})
	mux.HandleFunc(ValueSetPattern+"encounter-class", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType":"ValueSet","codeSystem":{"concept":[{"code":"inpatient"},{"code":"ambulatory","concept":[{"code":"field"}]}]}}`))
	})
	mux.HandleFunc(ValueSetPattern+"expanded", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType":"ValueSet","expansion":{"contains":[{"code":"home"}]}}`))
	})
	mux.HandleFunc(MedicationPattern+"drug-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"drug-1"}`))
	})
	mux.HandleFunc(ConceptPattern+"broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Verify(t *testing.T) {
	srv := newRegistry(t)
	c := NewClient(ClientConfig{ClientID: "shr", AuthToken: "secret"})
	ctx := context.Background()

	tests := []struct {
		name string
		kind Kind
		path string
		code string
		want bool
	}{
		{"reference term match", KindCode, RefTermPattern + "ref-1", "R50.9", true},
		{"reference term mismatch", KindCode, RefTermPattern + "ref-1", "R51", false},
		{"concept match", KindUUID, ConceptPattern + "c-1", "c-1", true},
		{"concept mismatch", KindUUID, ConceptPattern + "c-1", "c-2", false},
		{"value set member", KindValueSet, ValueSetPattern + "encounter-class", "inpatient", true},
		{"nested value set member", KindValueSet, ValueSetPattern + "encounter-class", "field", true},
		{"expansion member", KindValueSet, ValueSetPattern + "expanded", "home", true},
		{"value set non-member", KindValueSet, ValueSetPattern + "encounter-class", "virtual", false},
		{"medication present", KindMedication, MedicationPattern + "drug-1", "drug-1", true},
		{"medication absent", KindMedication, MedicationPattern + "drug-2", "drug-2", false},
		{"unknown concept", KindUUID, ConceptPattern + "missing", "missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Verify(ctx, tt.kind, srv.URL+tt.path, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_VerifyServerError(t *testing.T) {
	srv := newRegistry(t)
	c := NewClient(ClientConfig{})

	_, err := c.Verify(context.Background(), KindUUID, srv.URL+ConceptPattern+"broken", "broken")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_VerifyTransportError(t *testing.T) {
	srv := newRegistry(t)
	url := srv.URL + ConceptPattern + "c-1"
	srv.Close()

	_, err := NewClient(ClientConfig{}).Verify(context.Background(), KindUUID, url, "c-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_VerifyMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{}).Verify(context.Background(), KindCode, srv.URL+RefTermPattern+"x", "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}
