// Package catalogaccess gives CLI commands one catalog surface that works
// with or without a running daemon: operations go over IPC when the daemon
// answers, and fall back to direct store access otherwise.
package catalogaccess

import (
	"context"
	"time"

	"folio/internal/api"
	"folio/internal/catalog"
	"folio/internal/ipc"
)

// Access provides catalog operations regardless of IPC or direct store backing.
type Access interface {
	Add(ctx context.Context, externalID, title, author string, priority int) (api.ItemSummary, bool, error)
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.ItemSummary, error)
	Describe(ctx context.Context, id int64) (*api.ItemSummary, error)
	History(ctx context.Context, id int64, limit int) ([]api.HistoryEntry, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	Remove(ctx context.Context, ids []int64) (int64, error)
	ResetStuck(ctx context.Context) (int64, error)
	RetryAll(ctx context.Context) (int64, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access. staleAfter
// bounds how long an item may sit in an active status before ResetStuck
// reclaims it.
func NewStoreAccess(store *catalog.Store, staleAfter time.Duration) Access {
	return &storeAccess{store: store, service: api.NewItemService(store), staleAfter: staleAfter}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Add(_ context.Context, externalID, title, author string, priority int) (api.ItemSummary, bool, error) {
	resp, err := a.client.Add(externalID, title, author, priority)
	if err != nil {
		return api.ItemSummary{}, false, err
	}
	return resp.Item, resp.Created, nil
}

func (a *ipcAccess) Stats(_ context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.ItemStats, nil
}

func (a *ipcAccess) List(_ context.Context, statuses []string) ([]api.ItemSummary, error) {
	resp, err := a.client.List(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *ipcAccess) Describe(_ context.Context, id int64) (*api.ItemSummary, error) {
	resp, err := a.client.Describe(id)
	if err != nil {
		return nil, err
	}
	if resp == nil || !resp.Found {
		return nil, nil
	}
	return &resp.Item, nil
}

func (a *ipcAccess) History(_ context.Context, id int64, limit int) ([]api.HistoryEntry, error) {
	resp, err := a.client.History(id, limit)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (a *ipcAccess) ClearAll(_ context.Context) (int64, error) {
	resp, err := a.client.Clear()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ClearCompleted(_ context.Context) (int64, error) {
	resp, err := a.client.ClearCompleted()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ClearFailed(_ context.Context) (int64, error) {
	resp, err := a.client.ClearFailed()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) Remove(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.Remove(ids)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ResetStuck(_ context.Context) (int64, error) {
	resp, err := a.client.Reset()
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) RetryAll(_ context.Context) (int64, error) {
	resp, err := a.client.Retry(nil)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Retry(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.Retry(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

type storeAccess struct {
	store      *catalog.Store
	service    *api.ItemService
	staleAfter time.Duration
}

func (a *storeAccess) Add(ctx context.Context, externalID, title, author string, priority int) (api.ItemSummary, bool, error) {
	item, created, err := a.store.Add(ctx, externalID, title, author, priority)
	if err != nil {
		return api.ItemSummary{}, false, err
	}
	return api.FromItem(item), created, nil
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.ItemSummary, error) {
	var filters []catalog.Status
	for _, raw := range statuses {
		if parsed, ok := catalog.ParseStatus(raw); ok {
			filters = append(filters, parsed)
		}
	}
	return a.service.List(ctx, filters...)
}

func (a *storeAccess) Describe(ctx context.Context, id int64) (*api.ItemSummary, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) History(ctx context.Context, id int64, limit int) ([]api.HistoryEntry, error) {
	return a.service.History(ctx, id, limit)
}

func (a *storeAccess) ClearAll(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}

func (a *storeAccess) ClearCompleted(ctx context.Context) (int64, error) {
	return a.store.ClearCompleted(ctx)
}

func (a *storeAccess) ClearFailed(ctx context.Context) (int64, error) {
	return a.store.ClearFailed(ctx)
}

func (a *storeAccess) Remove(ctx context.Context, ids []int64) (int64, error) {
	var count int64
	for _, id := range ids {
		removed, err := a.store.Remove(ctx, id)
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}
	return count, nil
}

func (a *storeAccess) ResetStuck(ctx context.Context) (int64, error) {
	staleAfter := a.staleAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return a.store.ResetStuck(ctx, time.Now().Add(-staleAfter))
}

func (a *storeAccess) RetryAll(ctx context.Context) (int64, error) {
	items, err := a.store.RetryFailed(ctx)
	return int64(len(items)), err
}

func (a *storeAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	items, err := a.store.RetryFailed(ctx, ids...)
	return int64(len(items)), err
}
