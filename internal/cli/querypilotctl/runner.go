// Package querypilotctl implements the operator CLI. It is a thin HTTP
// client for the QueryPilot API: submit a question or an MDL deployment,
// poll for the result, request a stop.
package querypilotctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type Options struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
	HTTPClient   *http.Client
	Stdout       io.Writer
	Stderr       io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("querypilotctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "QueryPilot API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	deployment := fs.String("deployment", "", "deployment ID to ask against")
	wait := fs.Bool("wait", false, "poll until the submitted job reaches a terminal state")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")
	pollInterval := fs.Duration("poll-interval", durationOr(defaults.PollInterval, 500*time.Millisecond), "polling interval used with -wait")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	runner := &runner{
		client:       client,
		baseURL:      strings.TrimRight(*baseURL, "/"),
		apiKey:       strings.TrimSpace(*apiKey),
		wait:         *wait,
		pollInterval: *pollInterval,
		stdout:       stdout,
		stderr:       stderr,
	}

	command := strings.TrimSpace(fs.Arg(0))
	switch command {
	case "health":
		return runner.get(ctx, "/v1/health")
	case "ready":
		return runner.get(ctx, "/v1/ready")
	case "ask":
		question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		return runner.submitAsk(ctx, question, strings.TrimSpace(*deployment))
	case "result":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "result requires a query id")
			return 2
		}
		return runner.get(ctx, "/v1/asks/"+fs.Arg(1)+"/result")
	case "stop":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "stop requires a query id")
			return 2
		}
		return runner.stop(ctx, "/v1/asks/"+fs.Arg(1))
	case "deploy":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "deploy requires an mdl file")
			return 2
		}
		return runner.submitDeploy(ctx, fs.Arg(1))
	case "deploy-status":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "deploy-status requires a query id")
			return 2
		}
		return runner.get(ctx, "/v1/semantics-preparations/"+fs.Arg(1)+"/status")
	case "deploy-stop":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "deploy-stop requires a query id")
			return 2
		}
		return runner.stop(ctx, "/v1/semantics-preparations/"+fs.Arg(1))
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

type runner struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	wait         bool
	pollInterval time.Duration
	stdout       io.Writer
	stderr       io.Writer
}

func (r *runner) get(ctx context.Context, path string) int {
	code, body, err := r.request(ctx, http.MethodGet, path, nil)
	return r.report(code, body, err)
}

func (r *runner) stop(ctx context.Context, path string) int {
	code, body, err := r.request(ctx, http.MethodPatch, path, []byte(`{"status": "stopped"}`))
	return r.report(code, body, err)
}

func (r *runner) submitAsk(ctx context.Context, question, deployment string) int {
	payload, err := json.Marshal(map[string]string{
		"query":         question,
		"deployment_id": deployment,
	})
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "encode request: %v\n", err)
		return 1
	}
	return r.submit(ctx, "/v1/asks", payload, "/v1/asks/%s/result")
}

func (r *runner) submitDeploy(ctx context.Context, path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "read mdl file: %v\n", err)
		return 1
	}
	payload, err := json.Marshal(map[string]json.RawMessage{"mdl": raw})
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "encode request: %v\n", err)
		return 1
	}
	return r.submit(ctx, "/v1/semantics-preparations", payload, "/v1/semantics-preparations/%s/status")
}

func (r *runner) submit(ctx context.Context, path string, payload []byte, pollPattern string) int {
	code, body, err := r.request(ctx, http.MethodPost, path, payload)
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(r.stderr, "http %d: %s\n", code, strings.TrimSpace(string(body)))
		return 1
	}

	var submitted struct {
		QueryID string `json:"query_id"`
	}
	if err := json.Unmarshal(body, &submitted); err != nil || submitted.QueryID == "" {
		_, _ = fmt.Fprintf(r.stderr, "unexpected submit response: %s\n", strings.TrimSpace(string(body)))
		return 1
	}

	if !r.wait {
		return r.report(code, body, nil)
	}
	return r.poll(ctx, fmt.Sprintf(pollPattern, submitted.QueryID))
}

// poll reads the job until it settles. The job's own failure detail is
// part of a successful poll, so any terminal state exits zero.
func (r *runner) poll(ctx context.Context, path string) int {
	for {
		code, body, err := r.request(ctx, http.MethodGet, path, nil)
		if err != nil {
			_, _ = fmt.Fprintf(r.stderr, "request failed: %v\n", err)
			return 1
		}
		if code >= 400 {
			_, _ = fmt.Fprintf(r.stderr, "http %d: %s\n", code, strings.TrimSpace(string(body)))
			return 1
		}

		var snapshot struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &snapshot); err != nil {
			_, _ = fmt.Fprintf(r.stderr, "unexpected poll response: %s\n", strings.TrimSpace(string(body)))
			return 1
		}
		if isTerminalStatus(snapshot.Status) {
			return r.report(code, body, nil)
		}

		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintf(r.stderr, "polling cancelled: %v\n", ctx.Err())
			return 1
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *runner) request(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.apiKey != "" {
		req.Header.Set("X-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (r *runner) report(code int, body []byte, err error) int {
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(r.stderr, "http %d: %s\n", code, strings.TrimSpace(string(body)))
		return 1
	}
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(r.stdout, pretty)
		return 0
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(r.stdout, string(body))
	}
	return 0
}

func isTerminalStatus(status string) bool {
	switch status {
	case "finished", "failed", "stopped":
		return true
	default:
		return false
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: querypilotctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                    GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                     GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  ask <question>            POST /v1/asks (use -deployment, -wait)")
	_, _ = fmt.Fprintln(w, "  result <query-id>         GET /v1/asks/{id}/result")
	_, _ = fmt.Fprintln(w, "  stop <query-id>           PATCH /v1/asks/{id}")
	_, _ = fmt.Fprintln(w, "  deploy <mdl-file>         POST /v1/semantics-preparations (use -wait)")
	_, _ = fmt.Fprintln(w, "  deploy-status <query-id>  GET /v1/semantics-preparations/{id}/status")
	_, _ = fmt.Fprintln(w, "  deploy-stop <query-id>    PATCH /v1/semantics-preparations/{id}")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
