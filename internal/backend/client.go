// Package backend talks to the league API that owns teams, matches and
// standings.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorBodyLen = 4096
	tenantHeader    = "X-Tenant"
)

var (
	ErrNotFound  = errors.New("backend resource not found")
	ErrNoBaseURL = errors.New("backend base URL is required")
)

type Config struct {
	BaseURL string
	Token   string
	Tenant  string
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	token   string
	tenant  string
	http    *http.Client
	timeout time.Duration
	zones   singleflight.Group
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		tenant:  cfg.Tenant,
		http:    httpClient,
		timeout: timeout,
	}, nil
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s returned %d: %s", e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("backend %s returned %d", e.Path, e.Status)
}

// PublicMessage is the message the backend meant for the user, if any.
func (e *APIError) PublicMessage() string {
	return e.Message
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.tenant != "" {
		req.Header.Set(tenantHeader, c.tenant)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	log.Ctx(ctx).Debug().
		Str("component", "backend_client").
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Backend request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw), Path: path}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage pulls a human message out of an error body. Plain text
// bodies are used as they are.
func errorMessage(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	if raw[0] == '{' || raw[0] == '[' || raw[0] == '<' {
		return ""
	}
	return string(raw)
}
