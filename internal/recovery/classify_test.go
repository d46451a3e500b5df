package recovery_test

import (
	"errors"
	"testing"

	"folio/internal/recovery"
	"folio/internal/services"
)

func TestClassifySentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category recovery.Category
		review   bool
	}{
		{"quota", services.Wrap(services.ErrQuotaExhausted, "download", "fetch", "mirror refused", nil), recovery.RateLimitOrQuota, false},
		{"auth", services.Wrap(services.ErrAuth, "search", "query", "session expired", nil), recovery.AuthRequired, true},
		{"not found", services.Wrap(services.ErrNotFound, "detail", "lookup", "page gone", nil), recovery.ResourceNotFound, false},
		{"no results", services.Wrap(services.ErrNoResults, "search", "query", "empty result page", nil), recovery.ResourceNotFound, false},
		{"timeout", services.Wrap(services.ErrTimeout, "download", "fetch", "deadline exceeded", nil), recovery.TransientNetwork, false},
		{"transient", services.Wrap(services.ErrTransient, "upload", "put", "server hiccup", nil), recovery.TransientNetwork, false},
		{"configuration", services.Wrap(services.ErrConfiguration, "upload", "put", "shelf url missing", nil), recovery.Fatal, true},
		{"validation", services.Wrap(services.ErrValidation, "detail", "parse", "bad payload", nil), recovery.Fatal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls := recovery.Classify(tc.err)
			if cls.Category != tc.category {
				t.Fatalf("expected category %s, got %s", tc.category, cls.Category)
			}
			if cls.RequiresReview != tc.review {
				t.Fatalf("expected review=%v, got %v", tc.review, cls.RequiresReview)
			}
		})
	}
}

func TestClassifyMessageHeuristics(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category recovery.Category
		review   bool
	}{
		{"connection reset", errors.New("read tcp 10.0.0.2:443: connection reset by peer"), recovery.TransientNetwork, false},
		{"bad gateway", errors.New("mirror returned 502 bad gateway"), recovery.TransientNetwork, false},
		{"service unavailable", errors.New("service temporarily unavailable"), recovery.TransientNetwork, false},
		{"forbidden", errors.New("HTTP 403 Forbidden"), recovery.AuthRequired, true},
		{"login wall", errors.New("mirror says login required"), recovery.AuthRequired, true},
		{"missing page", errors.New("book page not found (404)"), recovery.ResourceNotFound, false},
		{"daily cap", errors.New("daily limit reached for this account"), recovery.RateLimitOrQuota, false},
		{"throttled", errors.New("429 too many requests"), recovery.RateLimitOrQuota, false},
		{"disk", errors.New("not enough disk space in staging"), recovery.Fatal, true},
		{"permissions", errors.New("open /library/book.epub: permission denied"), recovery.Fatal, true},
		{"unknown", errors.New("unexpected payload shape"), recovery.Fatal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls := recovery.Classify(tc.err)
			if cls.Category != tc.category {
				t.Fatalf("expected category %s, got %s", tc.category, cls.Category)
			}
			if cls.RequiresReview != tc.review {
				t.Fatalf("expected review=%v, got %v", tc.review, cls.RequiresReview)
			}
		})
	}
}

func TestClassifyNilIsFatal(t *testing.T) {
	cls := recovery.Classify(nil)
	if cls.Category != recovery.Fatal {
		t.Fatalf("expected fatal for nil error, got %s", cls.Category)
	}
}

func TestRequiresReview(t *testing.T) {
	if !recovery.RequiresReview(services.Wrap(services.ErrAuth, "download", "fetch", "cookie rejected", nil)) {
		t.Fatal("expected auth failures to require review")
	}
	if recovery.RequiresReview(services.Wrap(services.ErrTimeout, "download", "fetch", "slow mirror", nil)) {
		t.Fatal("expected timeouts to stay mechanical")
	}
}
