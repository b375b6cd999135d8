package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querypilot/querypilot/internal/assistant"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/indexing"
	"github.com/querypilot/querypilot/internal/job"
	"github.com/querypilot/querypilot/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// AssistantService is the slice of the assistant the HTTP layer drives.
// Every submit hands back a job snapshot whose ID the client polls.
type AssistantService interface {
	SubmitAsk(req assistant.AskRequest) (job.Job, error)
	SubmitAskDetails(req assistant.AskDetailsRequest) (job.Job, error)
	SubmitSQLExpansion(req assistant.SQLExpansionRequest) (job.Job, error)
	SubmitSQLRegeneration(req assistant.SQLRegenerationRequest) (job.Job, error)
	SubmitSQLExplanation(req assistant.SQLExplanationRequest) (job.Job, error)
	SubmitChart(req assistant.ChartRequest) (job.Job, error)
	Result(id string) (job.Job, error)
	Stop(id string) error
}

type IndexingService interface {
	SubmitPreparation(req indexing.PreparationRequest) (job.Job, error)
	Status(id string) (job.Job, error)
	Stop(id string) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         AssistantService
	Indexing          IndexingService
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/asks", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitAsk(deps, w, r)
	})
	protected.HandleFunc("GET /v1/asks/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		handleAssistantResult(deps, w, r, job.KindAsk)
	})
	protected.HandleFunc("PATCH /v1/asks/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleAssistantStop(deps, w, r, job.KindAsk)
	})

	protected.HandleFunc("POST /v1/ask-details", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitAskDetails(deps, w, r)
	})
	protected.HandleFunc("GET /v1/ask-details/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		handleAssistantResult(deps, w, r, job.KindAskDetails)
	})

	protected.HandleFunc("POST /v1/sql-expansions", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitSQLExpansion(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sql-expansions/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		handleAssistantResult(deps, w, r, job.KindSQLExpansion)
	})
	protected.HandleFunc("PATCH /v1/sql-expansions/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleAssistantStop(deps, w, r, job.KindSQLExpansion)
	})

	protected.HandleFunc("POST /v1/sql-regenerations", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitSQLRegeneration(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sql-regenerations/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		handleAssistantResult(deps, w, r, job.KindSQLRegeneration)
	})

	protected.HandleFunc("POST /v1/sql-explanations", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitSQLExplanation(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sql-explanations/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		handleAssistantResult(deps, w, r, job.KindSQLExplanation)
	})

	protected.HandleFunc("POST /v1/charts", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitChart(deps, w, r)
	})
	protected.HandleFunc("GET /v1/charts/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		handleAssistantResult(deps, w, r, job.KindChart)
	})
	protected.HandleFunc("PATCH /v1/charts/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleAssistantStop(deps, w, r, job.KindChart)
	})

	protected.HandleFunc("POST /v1/semantics-preparations", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitPreparation(deps, w, r)
	})
	protected.HandleFunc("GET /v1/semantics-preparations/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		handlePreparationStatus(deps, w, r)
	})
	protected.HandleFunc("PATCH /v1/semantics-preparations/{id}", func(w http.ResponseWriter, r *http.Request) {
		handlePreparationStop(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/asks", protectedHandler)
	mux.Handle("GET /v1/asks/{id}/result", protectedHandler)
	mux.Handle("PATCH /v1/asks/{id}", protectedHandler)
	mux.Handle("POST /v1/ask-details", protectedHandler)
	mux.Handle("GET /v1/ask-details/{id}/result", protectedHandler)
	mux.Handle("POST /v1/sql-expansions", protectedHandler)
	mux.Handle("GET /v1/sql-expansions/{id}/result", protectedHandler)
	mux.Handle("PATCH /v1/sql-expansions/{id}", protectedHandler)
	mux.Handle("POST /v1/sql-regenerations", protectedHandler)
	mux.Handle("GET /v1/sql-regenerations/{id}/result", protectedHandler)
	mux.Handle("POST /v1/sql-explanations", protectedHandler)
	mux.Handle("GET /v1/sql-explanations/{id}/result", protectedHandler)
	mux.Handle("POST /v1/charts", protectedHandler)
	mux.Handle("GET /v1/charts/{id}/result", protectedHandler)
	mux.Handle("PATCH /v1/charts/{id}", protectedHandler)
	mux.Handle("POST /v1/semantics-preparations", protectedHandler)
	mux.Handle("GET /v1/semantics-preparations/{id}/status", protectedHandler)
	mux.Handle("PATCH /v1/semantics-preparations/{id}", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, observability.RecoveryMiddleware(deps.Logger))
	return chain(mux, middlewares...)
}

func CheckVectorStoreDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.VectorStore.DSN == "" {
			return errors.New("vector store dsn is not configured")
		}
		return nil
	}
}

func CheckLLMConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.LLM.APIKey == "" {
			return errors.New("llm api key is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
