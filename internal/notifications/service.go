package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"folio/internal/config"
)

const userAgent = "Folio/0.1.0"

// Event identifies a pipeline milestone worth notifying about.
type Event string

const (
	EventItemCompleted  Event = "item_completed"
	EventItemFailed     Event = "item_failed"
	EventNoResults      Event = "no_results"
	EventQuotaExhausted Event = "quota_exhausted"
	EventQuotaRestored  Event = "quota_restored"
	EventRunStarted     Event = "run_started"
	EventRunCompleted   Event = "run_completed"
	EventTest           Event = "test"
)

// Payload carries the string fields rendered into a notification message.
type Payload map[string]string

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		enabled:     eventToggles(cfg),
		dedupWindow: time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		seen:        make(map[string]time.Time),
		now:         time.Now,
	}
}

func eventToggles(cfg *config.Config) map[Event]bool {
	n := cfg.Notifications
	return map[Event]bool{
		EventItemCompleted:  n.ItemCompleted,
		EventItemFailed:     n.ItemFailed,
		EventNoResults:      n.NoResults,
		EventQuotaExhausted: n.Quota,
		EventQuotaRestored:  n.Quota,
		EventRunStarted:     n.Runs,
		EventRunCompleted:   n.Runs,
		EventTest:           true,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	enabled     map[Event]bool
	dedupWindow time.Duration
	now         func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// Publish renders the event into an ntfy message and posts it. Disabled
// events and repeats inside the dedup window are dropped silently.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg := render(event, payload)
	if msg.body == "" {
		return nil
	}
	if n.suppressed(event, msg.body) {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) suppressed(event Event, body string) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	key := string(event) + "\x00" + body
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.seen[key]; ok && now.Sub(last) < n.dedupWindow {
		return true
	}
	if len(n.seen) > 64 {
		for k, at := range n.seen {
			if now.Sub(at) >= n.dedupWindow {
				delete(n.seen, k)
			}
		}
	}
	n.seen[key] = now
	return false
}

func render(event Event, payload Payload) message {
	get := func(key string) string {
		return strings.TrimSpace(payload[key])
	}
	switch event {
	case EventItemCompleted:
		body := fmt.Sprintf("✅ Shelved: %s", get("title"))
		if file := get("file"); file != "" {
			body = fmt.Sprintf("%s\nFile: %s", body, file)
		}
		return message{
			title: "Folio - Completed",
			body:  body,
			tags:  []string{"folio", "item", "completed"},
		}
	case EventItemFailed:
		stage := get("stage")
		if stage == "" {
			stage = "pipeline"
		}
		reason := get("error")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "Folio - Failed",
			body:     fmt.Sprintf("❌ %s failed at %s: %s", get("title"), stage, reason),
			tags:     []string{"folio", "item", "failed"},
			priority: "high",
		}
	case EventNoResults:
		return message{
			title: "Folio - No Results",
			body:  fmt.Sprintf("No mirror results for: %s", get("title")),
			tags:  []string{"folio", "search", "no-results"},
		}
	case EventQuotaExhausted:
		reset := get("reset")
		if reset == "" {
			reset = "unknown"
		}
		return message{
			title:    "Folio - Quota Exhausted",
			body:     fmt.Sprintf("Download quota exhausted, next reset: %s", reset),
			tags:     []string{"folio", "quota", "exhausted"},
			priority: "high",
		}
	case EventQuotaRestored:
		return message{
			title: "Folio - Quota Restored",
			body:  fmt.Sprintf("Download quota restored, re-admitted %s items", orZero(get("count"))),
			tags:  []string{"folio", "quota", "restored"},
		}
	case EventRunStarted:
		return message{
			title: "Folio - Run Started",
			body:  fmt.Sprintf("Started pipeline run with %s items", orZero(get("count"))),
			tags:  []string{"folio", "run", "started"},
		}
	case EventRunCompleted:
		duration := get("duration")
		if duration == "" {
			duration = "0s"
		}
		if failed := get("failed"); failed != "" && failed != "0" {
			return message{
				title: "Folio - Run Complete (with errors)",
				body:  fmt.Sprintf("Run complete: %s succeeded, %s failed in %s", orZero(get("processed")), failed, duration),
				tags:  []string{"folio", "run", "completed"},
			}
		}
		return message{
			title: "Folio - Run Complete",
			body:  fmt.Sprintf("Run complete: %s items processed in %s", orZero(get("processed")), duration),
			tags:  []string{"folio", "run", "completed"},
		}
	case EventTest:
		return message{
			title:    "Folio - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"folio", "test"},
			priority: "low",
		}
	default:
		return message{}
	}
}

func orZero(value string) string {
	if value == "" {
		return "0"
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
