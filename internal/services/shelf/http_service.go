package shelf

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"folio/internal/logging"
	"folio/internal/services"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type httpService struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
	logger  *slog.Logger
}

// NewHTTPService constructs a shelf service backed by a shelf server.
func NewHTTPService(baseURL, apiKey string, client HTTPDoer, logger *slog.Logger) Service {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &httpService{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
		logger:  logging.NewComponentLogger(logger, "shelf"),
	}
}

// Exists asks the shelf server whether it already holds this item.
func (s *httpService) Exists(ctx context.Context, meta Metadata) (bool, error) {
	if s.baseURL == "" {
		return false, services.Wrap(services.ErrConfiguration, "shelf", "lookup",
			"Shelf server URL not configured", nil)
	}
	query := url.Values{}
	if v := strings.TrimSpace(meta.ExternalID); v != "" {
		query.Set("external_id", v)
	}
	if v := strings.TrimSpace(meta.Title); v != "" {
		query.Set("title", v)
	}
	if v := strings.TrimSpace(meta.Author); v != "" {
		query.Set("author", v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/items/lookup?"+query.Encode(), nil)
	if err != nil {
		return false, services.Wrap(services.ErrValidation, "shelf", "lookup", "Failed to build lookup request", err)
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, services.WrapTransport("shelf", "lookup", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := services.WrapHTTPStatus("shelf", "lookup", resp); err != nil {
		return false, err
	}
	var result struct {
		Exists bool `json:"exists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, services.Wrap(services.ErrTransient, "shelf", "lookup", "Failed to decode lookup response", err)
	}
	return result.Exists, nil
}

// Upload streams the file to the shelf server as a multipart form and
// returns the path the server shelved it under.
func (s *httpService) Upload(ctx context.Context, sourcePath string, meta Metadata) (string, error) {
	if s.baseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "shelf", "upload",
			"Shelf server URL not configured", nil)
	}
	file, err := os.Open(sourcePath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "shelf", "upload",
			"Staged file missing; rerun download", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, file, filepath.Base(sourcePath), meta))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/items", pr)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "shelf", "upload", "Failed to build upload request", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", services.WrapTransport("shelf", "upload", err)
	}
	defer resp.Body.Close()
	if err := services.WrapHTTPStatus("shelf", "upload", resp); err != nil {
		return "", err
	}
	var result struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", services.Wrap(services.ErrTransient, "shelf", "upload", "Failed to decode upload response", err)
	}
	s.logger.Debug("file uploaded to shelf server",
		logging.String("external_id", meta.ExternalID),
		logging.String("path", result.Path))
	return result.Path, nil
}

// HealthCheck probes the shelf server health endpoint.
func (s *httpService) HealthCheck(ctx context.Context) error {
	if s.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "shelf", "health check",
			"Shelf server URL not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "shelf", "health check", "Failed to build health request", err)
	}
	s.applyHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return services.WrapTransport("shelf", "health check", err)
	}
	defer resp.Body.Close()
	if err := services.WrapHTTPStatus("shelf", "health check", resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *httpService) applyHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}
}

func writeUploadForm(form *multipart.Writer, file io.Reader, filename string, meta Metadata) error {
	fields := []struct {
		key   string
		value string
	}{
		{"external_id", meta.ExternalID},
		{"title", meta.Title},
		{"author", meta.Author},
		{"language", meta.Language},
		{"format", meta.Format},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if err := form.WriteField(field.key, field.value); err != nil {
			return err
		}
	}
	if meta.Year > 0 {
		if err := form.WriteField("year", strconv.Itoa(meta.Year)); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return form.Close()
}
