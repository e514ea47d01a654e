package wds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/animus-labs/cbas-go/internal/domain"
	"github.com/animus-labs/cbas-go/internal/platform/env"
)

const apiVersion = "v0.2"

type Config struct {
	BaseURL    string
	InstanceID string
	Token      string
	Timeout    time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("CBAS_WDS_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		BaseURL:    env.String("CBAS_WDS_BASE_URL", "http://localhost:8001"),
		InstanceID: env.String("CBAS_WDS_INSTANCE_ID", ""),
		Token:      env.String("CBAS_WDS_TOKEN", ""),
		Timeout:    timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("CBAS_WDS_BASE_URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("CBAS_WDS_BASE_URL: %w", err)
	}
	if strings.TrimSpace(c.InstanceID) == "" {
		return errors.New("CBAS_WDS_INSTANCE_ID is required")
	}
	if c.Timeout < 0 {
		return errors.New("CBAS_WDS_TIMEOUT must be >= 0")
	}
	return nil
}

// APIError is a non-2xx response from the record store.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("record store error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("record store error (status=%d): %s", e.StatusCode, e.Message)
}

// Client reads and patches records in the workspace data service.
type Client struct {
	baseURL    string
	instanceID string
	http       *http.Client
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithHTTPClient(cfg, newHTTPClient(cfg))
}

func NewWithHTTPClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("http client is required")
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		instanceID: strings.TrimSpace(cfg.InstanceID),
		http:       httpClient,
	}, nil
}

// newHTTPClient attaches the configured bearer token through an oauth2 transport.
func newHTTPClient(cfg Config) *http.Client {
	client := &http.Client{Timeout: cfg.Timeout}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		client.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   http.DefaultTransport,
		}
	}
	return client
}

type recordPayload struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

func (c *Client) GetRecord(ctx context.Context, recordType, recordID string) (domain.Record, error) {
	if c == nil || c.http == nil {
		return domain.Record{}, errors.New("record store client not initialized")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordURL(recordType, recordID), nil)
	if err != nil {
		return domain.Record{}, err
	}
	var out recordPayload
	if err := c.do(req, &out); err != nil {
		return domain.Record{}, err
	}
	if out.Attributes == nil {
		out.Attributes = map[string]any{}
	}
	if out.ID == "" {
		out.ID = recordID
	}
	if out.Type == "" {
		out.Type = recordType
	}
	return domain.Record{ID: out.ID, Type: out.Type, Attributes: out.Attributes}, nil
}

func (c *Client) UpdateRecord(ctx context.Context, recordType, recordID string, attributes map[string]any) error {
	if c == nil || c.http == nil {
		return errors.New("record store client not initialized")
	}
	body, err := json.Marshal(map[string]any{"attributes": attributes})
	if err != nil {
		return fmt.Errorf("encode record attributes: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.recordURL(recordType, recordID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) recordURL(recordType, recordID string) string {
	return fmt.Sprintf("%s/%s/records/%s/%s/%s",
		c.baseURL,
		url.PathEscape(c.instanceID),
		apiVersion,
		url.PathEscape(recordType),
		url.PathEscape(recordID),
	)
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
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode record store response: %w", err)
	}
	return nil
}

// errorMessage prefers the "message" field of a JSON error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if strings.TrimSpace(payload.Message) != "" {
			return strings.TrimSpace(payload.Message)
		}
		if strings.TrimSpace(payload.Error) != "" {
			return strings.TrimSpace(payload.Error)
		}
	}
	return strings.TrimSpace(string(body))
}
