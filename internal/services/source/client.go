package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"folio/internal/config"
	"folio/internal/logging"
	"folio/internal/services"
)

const defaultRequestTimeout = 30 * time.Second

// Detail is the metadata record the source API returns for one item.
type Detail struct {
	ExternalID  string `json:"external_id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Language    string `json:"language"`
	Year        int    `json:"year"`
	Publisher   string `json:"publisher"`
	Format      string `json:"format"`
	ISBN        string `json:"isbn"`
	Description string `json:"description"`
}

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client queries the catalog metadata API.
type Client struct {
	baseURL string
	apiKey  string
	http    HTTPDoer
	logger  *slog.Logger
}

// Option customizes the source client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// New constructs a source client from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &Client{
		logger: logging.NewComponentLogger(logger, "source"),
		http:   &http.Client{Timeout: defaultRequestTimeout},
	}
	if cfg != nil {
		client.baseURL = strings.TrimRight(strings.TrimSpace(cfg.Source.BaseURL), "/")
		client.apiKey = strings.TrimSpace(cfg.Source.APIKey)
		if cfg.Source.RequestTimeout > 0 {
			client.http = &http.Client{Timeout: time.Duration(cfg.Source.RequestTimeout) * time.Second}
		}
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Lookup fetches the metadata record for an external ID.
func (c *Client) Lookup(ctx context.Context, externalID string) (*Detail, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, services.Wrap(services.ErrValidation, "detail", "lookup",
			"External ID required for metadata lookup", nil)
	}
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "detail", "lookup",
			"Source API URL not configured; set source.base_url in your folio config.toml", nil)
	}

	endpoint := fmt.Sprintf("%s/items/%s", c.baseURL, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "detail", "lookup", "Failed to build metadata request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.WrapTransport("detail", "lookup", err)
	}
	defer resp.Body.Close()

	if err := services.WrapHTTPStatus("detail", "lookup", resp); err != nil {
		return nil, err
	}

	var detail Detail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, services.Wrap(services.ErrTransient, "detail", "lookup", "Failed to decode metadata response", err)
	}
	if detail.ExternalID == "" {
		detail.ExternalID = externalID
	}
	c.logger.Debug("metadata lookup completed",
		logging.String("external_id", externalID),
		logging.String("title", detail.Title))
	return &detail, nil
}

// HealthCheck probes the source API health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "detail", "health check",
			"Source API URL not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "detail", "health check", "Failed to build health request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return services.WrapTransport("detail", "health check", err)
	}
	defer resp.Body.Close()
	if err := services.WrapHTTPStatus("detail", "health check", resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
