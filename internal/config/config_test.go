package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("querypilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q", cfg.Profile)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Embedder.Dimension != 1536 {
		t.Fatalf("Embedder.Dimension = %d", cfg.Embedder.Dimension)
	}
	if cfg.Engine.Mode != "duckdb" {
		t.Fatalf("Engine.Mode = %q", cfg.Engine.Mode)
	}
	if cfg.Retrieval.TopK != 10 {
		t.Fatalf("Retrieval.TopK = %d", cfg.Retrieval.TopK)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	cfg, err := Load("querypilot-api", mapLookup(map[string]string{
		"QUERYPILOT_HTTP_ADDR":                ":9999",
		"QUERYPILOT_HTTP_READ_TIMEOUT":        "15s",
		"QUERYPILOT_VECTORSTORE_DSN":          "postgres://qa:qa@db:5432/qa",
		"QUERYPILOT_LLM_MODEL":                "gpt-4o",
		"QUERYPILOT_LLM_TEMPERATURE":          "0.7",
		"QUERYPILOT_LLM_MAX_RETRIES":          "5",
		"QUERYPILOT_EMBEDDER_DIMENSION":       "3072",
		"QUERYPILOT_ENGINE_MODE":              "remote",
		"QUERYPILOT_ENGINE_ENDPOINT":          "http://engine:8088",
		"QUERYPILOT_RETRIEVAL_CONTEXT_TOKENS": "4000",
		"QUERYPILOT_JOBS_RETAIN_FINISHED":     "5m",
		"QUERYPILOT_LOG_LEVEL":                "error",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 15*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.VectorStore.DSN != "postgres://qa:qa@db:5432/qa" {
		t.Fatalf("VectorStore.DSN = %q", cfg.VectorStore.DSN)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Fatalf("LLM.Temperature = %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxRetries != 5 {
		t.Fatalf("LLM.MaxRetries = %d", cfg.LLM.MaxRetries)
	}
	if cfg.Embedder.Dimension != 3072 {
		t.Fatalf("Embedder.Dimension = %d", cfg.Embedder.Dimension)
	}
	if cfg.Engine.Mode != "remote" || cfg.Engine.Endpoint != "http://engine:8088" {
		t.Fatalf("Engine = %+v", cfg.Engine)
	}
	if cfg.Retrieval.ContextTokens != 4000 {
		t.Fatalf("Retrieval.ContextTokens = %d", cfg.Retrieval.ContextTokens)
	}
	if cfg.Jobs.RetainFinished != 5*time.Minute {
		t.Fatalf("Jobs.RetainFinished = %v", cfg.Jobs.RetainFinished)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadProfileDefaults(t *testing.T) {
	testCfg, err := Load("querypilot-api", mapLookup(map[string]string{
		"QUERYPILOT_PROFILE": "test",
	}))
	if err != nil {
		t.Fatalf("Load(test) error = %v", err)
	}
	if testCfg.HTTP.Address != ":18080" {
		t.Fatalf("test HTTP.Address = %q", testCfg.HTTP.Address)
	}
	if testCfg.Engine.Mode != "none" {
		t.Fatalf("test Engine.Mode = %q", testCfg.Engine.Mode)
	}

	prodCfg, err := Load("querypilot-api", mapLookup(map[string]string{
		"QUERYPILOT_PROFILE": "prod",
	}))
	if err != nil {
		t.Fatalf("Load(prod) error = %v", err)
	}
	if !prodCfg.Auth.Required {
		t.Fatal("prod Auth.Required should be true")
	}
	if !prodCfg.ObjectStore.UseSSL {
		t.Fatal("prod ObjectStore.UseSSL should be true")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"profile":     {"QUERYPILOT_PROFILE": "staging"},
		"duration":    {"QUERYPILOT_HTTP_READ_TIMEOUT": "soon"},
		"int":         {"QUERYPILOT_RETRIEVAL_TOP_K": "many"},
		"float":       {"QUERYPILOT_LLM_TEMPERATURE": "warm"},
		"bool":        {"QUERYPILOT_AUTH_REQUIRED": "yep"},
		"log level":   {"QUERYPILOT_LOG_LEVEL": "loud"},
		"engine mode": {"QUERYPILOT_ENGINE_MODE": "oracle"},
	}
	for name, values := range cases {
		if _, err := Load("querypilot-api", mapLookup(values)); err == nil {
			t.Fatalf("Load() with invalid %s should fail", name)
		}
	}
}

func TestLoadRequiresServiceName(t *testing.T) {
	_, err := Load("", mapLookup(map[string]string{
		"QUERYPILOT_SERVICE_NAME": "  ",
	}))
	if err == nil || !strings.Contains(err.Error(), "service name") {
		t.Fatalf("err = %v", err)
	}
}
