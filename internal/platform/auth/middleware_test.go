package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/shr/shr/internal/platform/access"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func facilityClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-18",
			Issuer:    "shr-idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:   "Facility User",
		Groups: []string{"SHR_FACILITY", "SHR_PROVIDER", "Unrelated Group"},
		Profiles: []Profile{
			{Name: "facility", ID: "10000069", Catchment: []string{"3026", " "}},
			{Name: "provider", ID: "24", Catchment: []string{"302618"}},
		},
	}
}

func serve(t *testing.T, mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, access.Identity, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got access.Identity
	err := mw(func(c echo.Context) error {
		got = IdentityFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	})(c)
	return rec, got, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, _, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, facilityClaims(), testSigningKey)

	rec, id, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "shr-idp"}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if id.ID != "user-18" || id.Name != "Facility User" {
		t.Errorf("unexpected identity %+v", id)
	}
	if len(id.Roles) != 2 {
		t.Fatalf("expected 2 roles, got %+v", id.Roles)
	}
	if id.FacilityID() != "10000069" || id.ProviderID() != "24" {
		t.Errorf("unexpected role ids %+v", id.Roles)
	}
	if got := id.Roles[0].Catchments; len(got) != 1 || got[0] != "3026" {
		t.Errorf("expected blank catchments dropped, got %v", got)
	}
}

func TestJWTMiddleware_WrongIssuer(t *testing.T) {
	token := createTestToken(t, facilityClaims(), testSigningKey)
	_, _, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "someone-else"}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := facilityClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := createTestToken(t, claims, testSigningKey)

	_, _, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token := createTestToken(t, facilityClaims(), []byte("another-key"))
	_, _, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_NoSHRRole(t *testing.T) {
	claims := facilityClaims()
	claims.Groups = []string{"nurse"}
	token := createTestToken(t, claims, testSigningKey)

	_, _, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusForbidden)
}

func TestJWTMiddleware_JWKS(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(KeySetDocument{Keys: []JSONWebKey{{
			Kty: "RSA",
			Kid: "k1",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(priv.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, facilityClaims())
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, id, err := serve(t, JWTMiddleware(JWTConfig{JWKSURL: srv.URL}), "Bearer "+signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.FacilityID() != "10000069" {
		t.Errorf("unexpected identity %+v", id)
	}

	token.Header["kid"] = "unknown"
	signed, _ = token.SignedString(priv)
	_, _, err = serve(t, JWTMiddleware(JWTConfig{JWKSURL: srv.URL}), "Bearer "+signed)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/health")

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	if err != nil {
		t.Fatalf("expected skipped path to pass, got %v", err)
	}
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	_, id, err := serve(t, DevAuthMiddleware(testSigningKey), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.ID != "dev-user" || !id.Has(access.RoleSystemAdmin) {
		t.Errorf("expected dev system admin, got %+v", id)
	}
}

func TestDevAuthMiddleware_WithToken(t *testing.T) {
	token := createTestToken(t, facilityClaims(), testSigningKey)
	_, id, err := serve(t, DevAuthMiddleware(testSigningKey), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.ID != "user-18" || id.Has(access.RoleSystemAdmin) {
		t.Errorf("expected token identity, got %+v", id)
	}

	_, _, err = serve(t, DevAuthMiddleware(testSigningKey), "Bearer garbage")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestClaims_Identity(t *testing.T) {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
		Groups:           []string{"SHR_PATIENT", "SHR System Admin", "shr_patient"},
		Profiles:         []Profile{{Name: "patient", ID: "98001046534"}},
	}
	id := c.Identity()
	if len(id.Roles) != 2 {
		t.Fatalf("expected duplicate group collapsed, got %+v", id.Roles)
	}
	hid, ok := id.PatientID()
	if !ok || hid != "98001046534" {
		t.Errorf("expected patient id, got %q", hid)
	}
	if !id.Has(access.RoleSystemAdmin) {
		t.Error("expected system admin role")
	}
}

func TestIdentityFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	id := IdentityFromContext(req.Context())
	if id.ID != "" || len(id.Roles) != 0 {
		t.Errorf("expected zero identity, got %+v", id)
	}
}
