package cromwell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/animus-labs/cbas-go/internal/platform/env"
)

const (
	workflowType        = "WDL"
	workflowTypeVersion = "1.0"
)

type Config struct {
	BaseURL             string
	Token               string
	Timeout             time.Duration
	FinalWorkflowLogDir string
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("CBAS_CROMWELL_TIMEOUT", 60*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		BaseURL:             env.String("CBAS_CROMWELL_BASE_URL", "http://localhost:8000"),
		Token:               env.String("CBAS_CROMWELL_TOKEN", ""),
		Timeout:             timeout,
		FinalWorkflowLogDir: env.String("CBAS_CROMWELL_FINAL_WORKFLOW_LOG_DIR", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("CBAS_CROMWELL_BASE_URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("CBAS_CROMWELL_BASE_URL: %w", err)
	}
	if c.Timeout < 0 {
		return errors.New("CBAS_CROMWELL_TIMEOUT must be >= 0")
	}
	return nil
}

// APIError is a non-2xx response from the engine.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("engine api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("engine api error (status=%d): %s", e.StatusCode, e.Message)
}

// Client talks to the engine's WES endpoints for submission and status and to
// its native endpoints for outputs and failure metadata.
type Client struct {
	baseURL      string
	engineParams []byte
	http         *http.Client
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: cfg.Timeout}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		client.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   http.DefaultTransport,
		}
	}
	return NewWithHTTPClient(cfg, client)
}

func NewWithHTTPClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("http client is required")
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    httpClient,
	}
	if dir := strings.TrimSpace(cfg.FinalWorkflowLogDir); dir != "" {
		params, err := json.Marshal(map[string]string{"final_workflow_log_dir": dir})
		if err != nil {
			return nil, fmt.Errorf("encode engine parameters: %w", err)
		}
		c.engineParams = params
	}
	return c, nil
}

// SubmitWorkflow starts one workflow and returns the engine's run id.
func (c *Client) SubmitWorkflow(ctx context.Context, workflowURL string, params []byte) (string, error) {
	if c == nil || c.http == nil {
		return "", errors.New("engine client not initialized")
	}
	workflowURL = strings.TrimSpace(workflowURL)
	if workflowURL == "" {
		return "", errors.New("workflow url is required")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := [][2]string{
		{"workflow_url", workflowURL},
		{"workflow_params", string(params)},
		{"workflow_type", workflowType},
		{"workflow_type_version", workflowTypeVersion},
	}
	if len(c.engineParams) > 0 {
		fields = append(fields, [2]string{"workflow_engine_parameters", string(c.engineParams)})
	}
	for _, field := range fields {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return "", fmt.Errorf("encode %s: %w", field[0], err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ga4gh/wes/v1/runs", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.RunID) == "" {
		return "", errors.New("engine returned empty run id")
	}
	return out.RunID, nil
}

// Status returns the WES state string of one run.
func (c *Client) Status(ctx context.Context, engineID string) (string, error) {
	if c == nil || c.http == nil {
		return "", errors.New("engine client not initialized")
	}
	req, err := c.get(ctx, "/api/ga4gh/wes/v1/runs/%s/status", engineID)
	if err != nil {
		return "", err
	}
	var out struct {
		RunID string `json:"run_id"`
		State string `json:"state"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.State, nil
}

// Outputs returns the fully qualified outputs of a finished run.
func (c *Client) Outputs(ctx context.Context, engineID string) (map[string]any, error) {
	if c == nil || c.http == nil {
		return nil, errors.New("engine client not initialized")
	}
	req, err := c.get(ctx, "/api/workflows/v1/%s/outputs", engineID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Outputs map[string]any `json:"outputs"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.Outputs == nil {
		out.Outputs = map[string]any{}
	}
	return out.Outputs, nil
}

type failure struct {
	Message  string    `json:"message"`
	CausedBy []failure `json:"causedBy"`
}

// Failures returns every failure message of a run, depth first through causedBy.
func (c *Client) Failures(ctx context.Context, engineID string) ([]string, error) {
	if c == nil || c.http == nil {
		return nil, errors.New("engine client not initialized")
	}
	req, err := c.get(ctx, "/api/workflows/v1/%s/metadata?includeKey=failures", engineID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Failures []failure `json:"failures"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	messages := make([]string, 0)
	var walk func([]failure)
	walk = func(items []failure) {
		for _, item := range items {
			if msg := strings.TrimSpace(item.Message); msg != "" {
				messages = append(messages, msg)
			}
			walk(item.CausedBy)
		}
	}
	walk(out.Failures)
	return messages, nil
}

func (c *Client) get(ctx context.Context, pathFormat, engineID string) (*http.Request, error) {
	engineID = strings.TrimSpace(engineID)
	if engineID == "" {
		return nil, errors.New("engine id is required")
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+fmt.Sprintf(pathFormat, url.PathEscape(engineID)), nil)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if strings.TrimSpace(payload.Message) != "" {
			return strings.TrimSpace(payload.Message)
		}
		if strings.TrimSpace(payload.Msg) != "" {
			return strings.TrimSpace(payload.Msg)
		}
	}
	return strings.TrimSpace(string(body))
}
