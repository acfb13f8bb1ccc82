// Package github talks to the GitHub REST API: issues and comments on the
// source repository, workflow runs, and the CI output channel.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kazz187/issuelab/pkg/clog"
)

const (
	DefaultAPIURL  = "https://api.github.com"
	APIVersion     = "2022-11-28"
	RequestTimeout = 10 * time.Second
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GitHub API error: %s %s: status %d, body: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// API is a paced, versioned JSON client. Each call carries its own bearer token.
type API struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAPI paces requests to rps per second; rps <= 0 disables pacing.
func NewAPI(baseURL string, rps float64) *API {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: RequestTimeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

func (a *API) WithHTTPClient(c *http.Client) *API {
	a.httpClient = c
	return a
}

func (a *API) BaseURL() string {
	return a.baseURL
}

// Do sends in as JSON (when non-nil) and decodes the response into out (when
// non-nil). Transport errors are returned unwrapped from the http client so
// callers can classify them; HTTP errors are *StatusError.
func (a *API) Do(ctx context.Context, method, path, token string, in, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "github api request failed", "method", method, "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()

	slog.Log(ctx, clog.HTTPStatusToLevel(resp.StatusCode), "github api",
		"method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
