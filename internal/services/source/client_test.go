package source_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"folio/internal/services"
	"folio/internal/services/source"
	"folio/internal/testsupport"
)

func newClient(t *testing.T, serverURL string) *source.Client {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Source.BaseURL = serverURL
	cfg.Source.APIKey = "test-key"
	return source.New(cfg, nil)
}

func TestLookupDecodesDetail(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"external_id": "bk-42",
			"title": "Dune",
			"author": "Frank Herbert",
			"language": "en",
			"year": 1965,
			"publisher": "Chilton Books",
			"format": "epub",
			"isbn": "9780441013593"
		}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	detail, err := client.Lookup(context.Background(), "bk-42")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if gotPath != "/items/bk-42" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if detail.Title != "Dune" || detail.Author != "Frank Herbert" || detail.Year != 1965 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
}

func TestLookupFillsExternalIDWhenOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title": "Solaris"}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	detail, err := client.Lookup(context.Background(), "bk-7")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if detail.ExternalID != "bk-7" {
		t.Fatalf("expected external id backfilled, got %q", detail.ExternalID)
	}
}

func TestLookupMapsStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		marker error
	}{
		{"missing item", http.StatusNotFound, services.ErrNotFound},
		{"expired key", http.StatusUnauthorized, services.ErrAuth},
		{"forbidden", http.StatusForbidden, services.ErrAuth},
		{"rate limited", http.StatusTooManyRequests, services.ErrQuotaExhausted},
		{"server error", http.StatusInternalServerError, services.ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tc.name, tc.status)
			}))
			defer server.Close()

			client := newClient(t, server.URL)
			_, err := client.Lookup(context.Background(), "bk-1")
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v, got %v", tc.marker, err)
			}
		})
	}
}

func TestLookupRequiresExternalID(t *testing.T) {
	client := newClient(t, "http://localhost:1")
	_, err := client.Lookup(context.Background(), "  ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLookupRequiresBaseURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Source.BaseURL = ""
	client := source.New(cfg, nil)
	_, err := client.Lookup(context.Background(), "bk-1")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	if err := newClient(t, healthy.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	if err := newClient(t, down.URL).HealthCheck(context.Background()); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
