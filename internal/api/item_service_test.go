package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"folio/internal/catalog"
)

type mockCatalogReader struct {
	items      []*catalog.Item
	stats      map[catalog.Status]int
	history    []*catalog.HistoryEntry
	itemErr    error
	statsErr   error
	historyErr error
}

func (m *mockCatalogReader) List(context.Context, ...catalog.Status) ([]*catalog.Item, error) {
	return m.items, m.itemErr
}

func (m *mockCatalogReader) Stats(context.Context) (map[catalog.Status]int, error) {
	return m.stats, m.statsErr
}

func (m *mockCatalogReader) GetByID(context.Context, int64) (*catalog.Item, error) {
	if len(m.items) == 0 {
		return nil, m.itemErr
	}
	return m.items[0], m.itemErr
}

func (m *mockCatalogReader) History(context.Context, int64, int) ([]*catalog.HistoryEntry, error) {
	return m.history, m.historyErr
}

func TestItemService_List(t *testing.T) {
	now := time.Now().UTC()
	reader := &mockCatalogReader{
		items: []*catalog.Item{{
			ID:         1,
			ExternalID: "OL123M",
			Title:      "The Example",
			Status:     catalog.StatusNew,
			CreatedAt:  now,
			UpdatedAt:  now,
		}},
	}
	svc := NewItemService(reader)
	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unexpected item count: %d", len(got))
	}
	if got[0].Title != "The Example" {
		t.Fatalf("unexpected title: %q", got[0].Title)
	}
	if got[0].Status != string(catalog.StatusNew) {
		t.Fatalf("unexpected status: %q", got[0].Status)
	}
	if got[0].CreatedAt == "" || got[0].UpdatedAt == "" {
		t.Fatalf("expected timestamps to be formatted")
	}
}

func TestItemService_ListError(t *testing.T) {
	errSentinel := errors.New("boom")
	svc := NewItemService(&mockCatalogReader{itemErr: errSentinel})
	_, err := svc.List(context.Background())
	if !errors.Is(err, errSentinel) {
		t.Fatalf("expected error %v, got %v", errSentinel, err)
	}
}

func TestItemService_Stats(t *testing.T) {
	svc := NewItemService(&mockCatalogReader{stats: map[catalog.Status]int{
		catalog.StatusNew:             2,
		catalog.StatusFailedPermanent: 1,
	}})
	got, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if got[string(catalog.StatusNew)] != 2 {
		t.Fatalf("expected new count 2, got %d", got[string(catalog.StatusNew)])
	}
	if got[string(catalog.StatusFailedPermanent)] != 1 {
		t.Fatalf("expected failed count 1, got %d", got[string(catalog.StatusFailedPermanent)])
	}
}

func TestItemService_Describe(t *testing.T) {
	reader := &mockCatalogReader{
		items: []*catalog.Item{{
			ID:         7,
			ExternalID: "OL7M",
			Title:      "Found",
			Status:     catalog.StatusCompleted,
		}},
	}
	svc := NewItemService(reader)
	got, err := svc.Describe(context.Background(), 7)
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if got == nil || got.ID != 7 {
		t.Fatalf("unexpected describe result: %+v", got)
	}
}

func TestItemService_DescribeMissing(t *testing.T) {
	svc := NewItemService(&mockCatalogReader{})
	got, err := svc.Describe(context.Background(), 99)
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing item, got %+v", got)
	}
}

func TestItemService_History(t *testing.T) {
	reader := &mockCatalogReader{
		history: []*catalog.HistoryEntry{{
			Seq:        1,
			FromStatus: catalog.StatusNew,
			ToStatus:   catalog.StatusDetailFetching,
			Note:       "detail started",
			Elapsed:    1500 * time.Millisecond,
			CreatedAt:  time.Now().UTC(),
		}},
	}
	svc := NewItemService(reader)
	got, err := svc.History(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unexpected entry count: %d", len(got))
	}
	if got[0].ToStatus != string(catalog.StatusDetailFetching) {
		t.Fatalf("unexpected to status: %q", got[0].ToStatus)
	}
	if got[0].ElapsedMS != 1500 {
		t.Fatalf("expected 1500ms elapsed, got %d", got[0].ElapsedMS)
	}
}

func TestItemService_NilReceiver(t *testing.T) {
	var svc *ItemService
	if items, err := svc.List(context.Background()); err != nil || items != nil {
		t.Fatalf("expected nil results from nil service, got %v %v", items, err)
	}
	if NewItemService(nil) != nil {
		t.Fatal("expected nil service for nil reader")
	}
}
