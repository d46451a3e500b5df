package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"folio/internal/config"
	"folio/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventItemCompleted, notifications.Payload{"title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "item completed",
			event: notifications.EventItemCompleted,
			payload: notifications.Payload{
				"title": "Dune",
				"file":  "Dune.epub",
			},
			expectTitle:   "Folio - Completed",
			expectMessage: "✅ Shelved: Dune\nFile: Dune.epub",
			expectTags:    "folio,item,completed",
		},
		{
			name:  "item failed",
			event: notifications.EventItemFailed,
			payload: notifications.Payload{
				"title": "Dune",
				"stage": "download",
				"error": "mirror unreachable",
			},
			expectTitle:    "Folio - Failed",
			expectMessage:  "❌ Dune failed at download: mirror unreachable",
			expectTags:     "folio,item,failed",
			expectPriority: "high",
		},
		{
			name:  "no results",
			event: notifications.EventNoResults,
			payload: notifications.Payload{
				"title": "Obscure Monograph",
			},
			expectTitle:   "Folio - No Results",
			expectMessage: "No mirror results for: Obscure Monograph",
			expectTags:    "folio,search,no-results",
		},
		{
			name:  "quota exhausted",
			event: notifications.EventQuotaExhausted,
			payload: notifications.Payload{
				"reset": "2026-03-14T08:00:00Z",
			},
			expectTitle:    "Folio - Quota Exhausted",
			expectMessage:  "Download quota exhausted, next reset: 2026-03-14T08:00:00Z",
			expectTags:     "folio,quota,exhausted",
			expectPriority: "high",
		},
		{
			name:  "run completed clean",
			event: notifications.EventRunCompleted,
			payload: notifications.Payload{
				"processed": "7",
				"duration":  "3m20s",
			},
			expectTitle:   "Folio - Run Complete",
			expectMessage: "Run complete: 7 items processed in 3m20s",
			expectTags:    "folio,run,completed",
		},
		{
			name:  "run completed with failures",
			event: notifications.EventRunCompleted,
			payload: notifications.Payload{
				"processed": "5",
				"failed":    "2",
				"duration":  "4m",
			},
			expectTitle:   "Folio - Run Complete (with errors)",
			expectMessage: "Run complete: 5 succeeded, 2 failed in 4m",
			expectTags:    "folio,run,completed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsEventToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.ItemFailed = false
	cfg.Notifications.Runs = false

	svc := notifications.NewService(&cfg)
	disabled := []notifications.Event{
		notifications.EventItemFailed,
		notifications.EventRunStarted,
		notifications.EventRunCompleted,
	}
	for _, event := range disabled {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"title": "ignored"}); err != nil {
			t.Fatalf("expected no error for disabled event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceDeduplicatesRepeats(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	payload := notifications.Payload{"title": "Dune", "stage": "download", "error": "mirror unreachable"}
	for i := 0; i < 3; i++ {
		if err := svc.Publish(context.Background(), notifications.EventItemFailed, payload); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}
	if requests != 1 {
		t.Fatalf("expected repeated message suppressed, got %d requests", requests)
	}

	other := notifications.Payload{"title": "Dune Messiah", "stage": "download", "error": "mirror unreachable"}
	if err := svc.Publish(context.Background(), notifications.EventItemFailed, other); err != nil {
		t.Fatalf("publish distinct failed: %v", err)
	}
	if requests != 2 {
		t.Fatalf("expected distinct message delivered, got %d requests", requests)
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic over quota", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error from failing ntfy endpoint")
	}
}
