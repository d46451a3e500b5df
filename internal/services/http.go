package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// WrapTransport classifies a request-level failure, separating timeouts from
// other transport errors.
func WrapTransport(stage, operation string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return Wrap(ErrTimeout, stage, operation, "Request timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrTimeout, stage, operation, "Request timed out", err)
	}
	return Wrap(ErrTransient, stage, operation, "Request failed", err)
}

// WrapHTTPStatus converts an HTTP error response to the matching sentinel
// error. Returns nil for statuses below 400. The response body is consumed
// for the error message.
func WrapHTTPStatus(stage, operation string, resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Wrap(ErrNotFound, stage, operation,
			fmt.Sprintf("Resource not found: %s", message), nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Wrap(ErrAuth, stage, operation,
			fmt.Sprintf("Authentication rejected (%d): check the configured API key", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusConflict:
		return Wrap(ErrAlreadyExists, stage, operation,
			fmt.Sprintf("Resource already exists: %s", message), nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestEntityTooLarge:
		return Wrap(ErrQuotaExhausted, stage, operation,
			fmt.Sprintf("Rate limited (%d): %s", resp.StatusCode, message), nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return Wrap(ErrTransient, stage, operation,
			fmt.Sprintf("Server error (%d): %s", resp.StatusCode, message), nil)
	default:
		return Wrap(ErrTransient, stage, operation,
			fmt.Sprintf("Unexpected status %d: %s", resp.StatusCode, message), nil)
	}
}
