package stages_test

import (
	"context"
	"os"
	"path/filepath"

	"folio/internal/notifications"
	"folio/internal/services"
	"folio/internal/services/mirror"
	"folio/internal/services/shelf"
	"folio/internal/services/source"
)

type stubSource struct {
	detail *source.Detail
	err    error
	calls  int
}

func (s *stubSource) Lookup(ctx context.Context, externalID string) (*source.Detail, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.detail, nil
}

type stubShelf struct {
	exists    bool
	existsErr error
	uploadErr error
	shelfPath string
	uploads   []string
	lastMeta  shelf.Metadata
}

func (s *stubShelf) Exists(ctx context.Context, meta shelf.Metadata) (bool, error) {
	s.lastMeta = meta
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.exists, nil
}

func (s *stubShelf) Upload(ctx context.Context, sourcePath string, meta shelf.Metadata) (string, error) {
	s.lastMeta = meta
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.uploads = append(s.uploads, sourcePath)
	if s.shelfPath != "" {
		return s.shelfPath, nil
	}
	return filepath.Join("library", meta.Author, meta.Title+".epub"), nil
}

func (s *stubShelf) HealthCheck(ctx context.Context) error {
	return nil
}

type recordedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	published []recordedEvent
}

func (n *recordingNotifier) Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error {
	n.published = append(n.published, recordedEvent{event: event, payload: payload})
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	total := 0
	for _, rec := range n.published {
		if rec.event == event {
			total++
		}
	}
	return total
}

type stubSearchMirror struct {
	search  func(query mirror.Query) ([]mirror.Candidate, error)
	queries []mirror.Query
}

func (m *stubSearchMirror) Search(ctx context.Context, query mirror.Query) ([]mirror.Candidate, error) {
	m.queries = append(m.queries, query)
	if m.search == nil {
		return nil, nil
	}
	return m.search(query)
}

type stubDownloadMirror struct {
	files map[string]string
	errs  map[string]error
	urls  []string
}

func (m *stubDownloadMirror) Download(ctx context.Context, downloadURL, destPath string) (int64, error) {
	m.urls = append(m.urls, downloadURL)
	if err, ok := m.errs[downloadURL]; ok {
		return 0, err
	}
	content, ok := m.files[downloadURL]
	if !ok {
		return 0, services.Wrap(services.ErrNotFound, "download", "fetch file", "candidate gone", nil)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(destPath, []byte(content), 0o644); err != nil {
		return 0, err
	}
	return int64(len(content)), nil
}

type stubQuota struct {
	available bool
	err       error
	consumed  int
}

func (q *stubQuota) Available(ctx context.Context) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	return q.available, nil
}

func (q *stubQuota) Consume(n int) {
	q.consumed += n
}
