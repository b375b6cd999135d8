package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsesSpec(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:proj-a:asker|deployer, k2:proj-b:asker")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}

	identity, ok := validator.Validate(t.Context(), "k1")
	if !ok {
		t.Fatal("k1 should validate")
	}
	if identity.ProjectID != "proj-a" {
		t.Fatalf("ProjectID = %q", identity.ProjectID)
	}
	if !identity.HasRole("asker") || !identity.HasRole("deployer") {
		t.Fatalf("roles = %v", identity.Roles)
	}

	if _, ok := validator.Validate(t.Context(), "unknown"); ok {
		t.Fatal("unknown key should not validate")
	}
}

func TestStaticAPIKeyValidatorRejectsMalformedSpec(t *testing.T) {
	for _, spec := range []string{"k1", "k1:proj", "k1::asker", "k1:proj:"} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("spec %q should fail", spec)
		}
	}
}

func TestMiddlewareRejectsMissingAndInvalidKeys(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:proj-a:asker")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	var gotIdentity Identity
	h := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = IdentityFromContext(r.Context())
	}))

	missing := httptest.NewRecorder()
	h.ServeHTTP(missing, httptest.NewRequest(http.MethodPost, "/v1/asks", nil))
	if missing.Code != http.StatusUnauthorized {
		t.Fatalf("missing key status = %d", missing.Code)
	}

	invalid := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/asks", nil)
	req.Header.Set("X-API-Key", "nope")
	h.ServeHTTP(invalid, req)
	if invalid.Code != http.StatusUnauthorized {
		t.Fatalf("invalid key status = %d", invalid.Code)
	}

	ok := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/asks", nil)
	req.Header.Set("Authorization", "Bearer k1")
	h.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Fatalf("valid key status = %d", ok.Code)
	}
	if gotIdentity.ProjectID != "proj-a" {
		t.Fatalf("identity = %+v", gotIdentity)
	}
}
