package api

import (
	"context"
	"errors"
	"testing"
)

type stubActionService struct {
	items     map[int64]*ItemSummary
	retryErr  error
	removeErr error
	retried   []int64
	removed   []int64
}

func (s *stubActionService) Describe(_ context.Context, id int64) (*ItemSummary, error) {
	return s.items[id], nil
}

func (s *stubActionService) Retry(_ context.Context, ids []int64) (int64, error) {
	if s.retryErr != nil {
		return 0, s.retryErr
	}
	s.retried = append(s.retried, ids...)
	return int64(len(ids)), nil
}

func (s *stubActionService) Remove(_ context.Context, ids []int64) (int64, error) {
	if s.removeErr != nil {
		return 0, s.removeErr
	}
	var count int64
	for _, id := range ids {
		if _, ok := s.items[id]; ok {
			delete(s.items, id)
			s.removed = append(s.removed, id)
			count++
		}
	}
	return count, nil
}

func TestRetryFailedItemsByID(t *testing.T) {
	service := &stubActionService{items: map[int64]*ItemSummary{
		1: {ID: 1, Status: "failed_permanent"},
		2: {ID: 2, Status: "completed"},
	}}

	result, err := RetryFailedItemsByID(context.Background(), service, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Fatalf("expected 1 update, got %d", result.UpdatedCount)
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 per-item results, got %d", len(result.Items))
	}
	if result.Items[0].Outcome != RetryItemUpdated {
		t.Errorf("item 1: expected retried, got %s", result.Items[0].Outcome)
	}
	if result.Items[1].Outcome != RetryItemNotFailed {
		t.Errorf("item 2: expected not_failed, got %s", result.Items[1].Outcome)
	}
	if result.Items[2].Outcome != RetryItemNotFound {
		t.Errorf("item 3: expected not_found, got %s", result.Items[2].Outcome)
	}
	if len(service.retried) != 1 || service.retried[0] != 1 {
		t.Errorf("unexpected retry calls: %v", service.retried)
	}
}

func TestRetryFailedItemsByIDPropagatesError(t *testing.T) {
	errSentinel := errors.New("boom")
	service := &stubActionService{
		items:    map[int64]*ItemSummary{1: {ID: 1, Status: "failed_permanent"}},
		retryErr: errSentinel,
	}
	_, err := RetryFailedItemsByID(context.Background(), service, []int64{1})
	if !errors.Is(err, errSentinel) {
		t.Fatalf("expected error %v, got %v", errSentinel, err)
	}
}

func TestRemoveItemsByID(t *testing.T) {
	service := &stubActionService{items: map[int64]*ItemSummary{
		5: {ID: 5, Status: "new"},
	}}

	result, err := RemoveItemsByID(context.Background(), service, []int64{5, 6})
	if err != nil {
		t.Fatalf("remove returned error: %v", err)
	}
	if result.RemovedCount != 1 {
		t.Fatalf("expected 1 removal, got %d", result.RemovedCount)
	}
	if result.Items[0].Outcome != RemoveItemRemoved {
		t.Errorf("item 5: expected removed, got %s", result.Items[0].Outcome)
	}
	if result.Items[1].Outcome != RemoveItemNotFound {
		t.Errorf("item 6: expected not_found, got %s", result.Items[1].Outcome)
	}
}
