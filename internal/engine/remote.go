package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/mdl"
)

type RemoteConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RemoteValidator submits dry runs to an external SQL engine over HTTP.
// A 2xx response means the statement is executable, a 4xx response
// carries the engine's rejection message, anything else is an engine
// failure.
type RemoteValidator struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRemoteValidator(cfg RemoteConfig) (*RemoteValidator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("engine base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RemoteValidator{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (v *RemoteValidator) Name() string { return "remote" }

func (v *RemoteValidator) DryRun(ctx context.Context, manifest mdl.Manifest, sql string) (ValidationResult, error) {
	payload := struct {
		Manifest mdl.Manifest `json:"manifest"`
		SQL      string       `json:"sql"`
		DryRun   bool         `json:"dryRun"`
	}{
		Manifest: manifest,
		SQL:      sql,
		DryRun:   true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("marshal dry run payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/dry-run", bytes.NewReader(body))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("build dry run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("request dry run: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("read dry run response body: %w", err)
	}

	switch {
	case resp.StatusCode < 300:
		return ValidationResult{Valid: true}, nil
	case resp.StatusCode < 500:
		return ValidationResult{Valid: false, Error: decodeEngineError(rawBody)}, nil
	default:
		return ValidationResult{}, fmt.Errorf("dry run failed status=%d body=%s", resp.StatusCode, string(rawBody))
	}
}

func decodeEngineError(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(body))
}

var _ Validator = (*RemoteValidator)(nil)
