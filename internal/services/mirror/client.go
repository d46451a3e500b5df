package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"folio/internal/config"
	"folio/internal/logging"
	"folio/internal/quota"
	"folio/internal/services"
)

const (
	defaultRequestTimeout  = 60 * time.Second
	defaultDownloadTimeout = 15 * time.Minute
)

// Query carries the search terms for one item.
type Query struct {
	Title    string
	Author   string
	Language string
	Format   string
	Limit    int
}

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the mirror API. Searches and limit queries use the request
// timeout; file downloads use the longer download timeout.
type Client struct {
	baseURL string
	apiKey  string
	api     HTTPDoer
	stream  HTTPDoer
	logger  *slog.Logger
}

// Option customizes the mirror client.
type Option func(*Client)

// WithHTTPClient overrides both HTTP clients (used in tests).
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.api = doer
			c.stream = doer
		}
	}
}

// New constructs a mirror client from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &Client{
		logger: logging.NewComponentLogger(logger, "mirror"),
		api:    &http.Client{Timeout: defaultRequestTimeout},
		stream: &http.Client{Timeout: defaultDownloadTimeout},
	}
	if cfg != nil {
		client.baseURL = strings.TrimRight(strings.TrimSpace(cfg.Mirror.BaseURL), "/")
		client.apiKey = strings.TrimSpace(cfg.Mirror.APIKey)
		if cfg.Mirror.RequestTimeout > 0 {
			client.api = &http.Client{Timeout: time.Duration(cfg.Mirror.RequestTimeout) * time.Second}
		}
		if cfg.Mirror.DownloadTimeout > 0 {
			client.stream = &http.Client{Timeout: time.Duration(cfg.Mirror.DownloadTimeout) * time.Second}
		}
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Search queries the mirror for candidates matching the item. An empty
// result is not an error; qualifying candidates are the search stage's
// concern.
func (c *Client) Search(ctx context.Context, query Query) ([]Candidate, error) {
	if strings.TrimSpace(query.Title) == "" && strings.TrimSpace(query.Author) == "" {
		return nil, services.Wrap(services.ErrValidation, "search", "query mirror",
			"Search needs a title or an author", nil)
	}
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "search", "query mirror",
			"Mirror URL not configured; set mirror.base_url in your folio config.toml", nil)
	}

	params := url.Values{}
	if v := strings.TrimSpace(query.Title); v != "" {
		params.Set("title", v)
	}
	if v := strings.TrimSpace(query.Author); v != "" {
		params.Set("author", v)
	}
	if v := strings.TrimSpace(query.Language); v != "" {
		params.Set("language", v)
	}
	if v := strings.TrimSpace(query.Format); v != "" {
		params.Set("format", v)
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "search", "query mirror", "Failed to build search request", err)
	}
	c.applyHeaders(req)

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, services.WrapTransport("search", "query mirror", err)
	}
	defer resp.Body.Close()

	if err := services.WrapHTTPStatus("search", "query mirror", resp); err != nil {
		return nil, err
	}

	var payload struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "search", "query mirror", "Failed to decode search response", err)
	}
	c.logger.Debug("mirror search completed",
		logging.String("title", query.Title),
		logging.Int("candidates", len(payload.Candidates)))
	return payload.Candidates, nil
}

// Download streams a candidate file to destPath and returns the byte count.
// A partial file is removed before the error is returned.
func (c *Client) Download(ctx context.Context, downloadURL, destPath string) (int64, error) {
	downloadURL = strings.TrimSpace(downloadURL)
	if downloadURL == "" {
		return 0, services.Wrap(services.ErrValidation, "download", "fetch file",
			"Candidate has no download URL; rerun search", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "download", "fetch file", "Failed to build download request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return 0, services.WrapTransport("download", "fetch file", err)
	}
	defer resp.Body.Close()

	if err := services.WrapHTTPStatus("download", "fetch file", resp); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "download", "fetch file", "Failed to create staging directory", err)
	}
	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "download", "fetch file", "Failed to create staging file", err)
	}

	written, err := io.Copy(dest, resp.Body)
	if closeErr := dest.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(destPath)
		return 0, services.WrapTransport("download", "fetch file", err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = os.Remove(destPath)
		return 0, services.Wrap(services.ErrTransient, "download", "fetch file",
			fmt.Sprintf("Download truncated: got %d of %d bytes", written, resp.ContentLength), nil)
	}

	c.logger.Debug("download completed",
		logging.String("dest", destPath),
		logging.Int64("bytes", written))
	return written, nil
}

// QueryLimits reads the mirror's daily download allowance. Satisfies the
// quota manager's provider contract.
func (c *Client) QueryLimits(ctx context.Context) (quota.Snapshot, error) {
	if c.baseURL == "" {
		return quota.Snapshot{}, services.Wrap(services.ErrConfiguration, "download", "query limits",
			"Mirror URL not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/limits", nil)
	if err != nil {
		return quota.Snapshot{}, services.Wrap(services.ErrValidation, "download", "query limits", "Failed to build limits request", err)
	}
	c.applyHeaders(req)

	resp, err := c.api.Do(req)
	if err != nil {
		return quota.Snapshot{}, services.WrapTransport("download", "query limits", err)
	}
	defer resp.Body.Close()

	if err := services.WrapHTTPStatus("download", "query limits", resp); err != nil {
		return quota.Snapshot{}, err
	}

	var payload struct {
		Limit     int    `json:"limit"`
		Remaining int    `json:"remaining"`
		ResetsAt  string `json:"resets_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return quota.Snapshot{}, services.Wrap(services.ErrTransient, "download", "query limits", "Failed to decode limits response", err)
	}

	snapshot := quota.Snapshot{Remaining: payload.Remaining, Limit: payload.Limit}
	if raw := strings.TrimSpace(payload.ResetsAt); raw != "" {
		if reset, err := time.Parse(time.RFC3339, raw); err == nil {
			snapshot.NextReset = reset
		}
	}
	return snapshot, nil
}

// HealthCheck probes the mirror health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "search", "health check",
			"Mirror URL not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "search", "health check", "Failed to build health request", err)
	}
	c.applyHeaders(req)
	resp, err := c.api.Do(req)
	if err != nil {
		return services.WrapTransport("search", "health check", err)
	}
	defer resp.Body.Close()
	if err := services.WrapHTTPStatus("search", "health check", resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}
