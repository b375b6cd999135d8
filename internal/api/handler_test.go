package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/config"
)

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func testConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("querypilot-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointWithoutChecks(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"QUERYPILOT_AUTH_REQUIRED": "true",
	})
	validator, err := auth.NewStaticAPIKeyValidator("k1:proj-1:asker")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Assistant:      newFakeAssistant(),
	})

	body := `{"query": "how many orders", "deployment_id": "deploy-1"}`
	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodPost, "/v1/asks", strings.NewReader(body)))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodPost, "/v1/asks", strings.NewReader(body))
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body = %s", authResp.Code, authResp.Body.String())
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"QUERYPILOT_AUTH_REQUIRED": "true",
	})
	h := NewHandler(cfg, Dependencies{Assistant: newFakeAssistant()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/asks", strings.NewReader(`{"query":"q"}`)))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestHealthStaysPublicWhenAuthRequired(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"QUERYPILOT_AUTH_REQUIRED": "true",
	})
	validator, err := auth.NewStaticAPIKeyValidator("k1:proj-1:asker")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{AuthMiddleware: auth.Middleware(nil, validator)})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestReadinessChecksInspectConfig(t *testing.T) {
	empty := testConfig(t, map[string]string{
		"QUERYPILOT_VECTORSTORE_DSN": "",
	})
	if err := CheckVectorStoreDSN(empty)(context.Background()); err == nil {
		t.Fatal("expected missing dsn error")
	}
	if err := CheckLLMConfig(empty)(context.Background()); err == nil {
		t.Fatal("expected missing api key error")
	}

	full := testConfig(t, map[string]string{
		"QUERYPILOT_VECTORSTORE_DSN": "postgres://localhost/querypilot",
		"QUERYPILOT_LLM_API_KEY":     "sk-test",
	})
	if err := CheckVectorStoreDSN(full)(context.Background()); err != nil {
		t.Fatalf("dsn check failed: %v", err)
	}
	if err := CheckLLMConfig(full)(context.Background()); err != nil {
		t.Fatalf("llm check failed: %v", err)
	}
}
